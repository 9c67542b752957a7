package tools

import (
	"context"

	"github.com/builder6/builder6/internal/github"
)

// RepoHost is the slice of the GitHub adapter the githubService tools
// invoke.
type RepoHost interface {
	CreateRepository(ctx context.Context, name, description string, private bool) (*github.Repository, error)
	ListRepositories(ctx context.Context) ([]*github.Repository, error)
	GetRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*github.PullRequest, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body string) (*github.PullRequest, error)
	ClosePullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	CreateIssue(ctx context.Context, owner, repo, title, body string) (*github.Issue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, title, body string) (*github.Issue, error)
	CloseIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	ConfigureGitClientInContainer(ctx context.Context, runner github.ScriptRunner, containerID, username, token string) (string, error)
}

// RegisterGitHubTools exposes the repository-host operations under the
// githubService namespace. The runner is used by configureGitClientInContainer.
func RegisterGitHubTools(r *Registry, host RepoHost, runner github.ScriptRunner, token string) {
	ownerRepoProps := map[string]any{
		"owner": StringProp("Repository owner"),
		"repo":  StringProp("Repository name"),
	}

	r.MustRegister(Tool{
		Name:        "githubService.createRepository",
		Description: "Create a repository under the authenticated user",
		Parameters: ObjectSchema(map[string]any{
			"name":        StringProp("Repository name"),
			"description": StringProp("Repository description"),
			"private":     BoolProp("Create as a private repository"),
		}, "name"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			private, _ := args["private"].(bool)
			return host.CreateRepository(ctx, name, optionalStringArg(args, "description"), private)
		},
	})

	r.MustRegister(Tool{
		Name:        "githubService.listRepositories",
		Description: "List repositories of the authenticated user",
		Parameters:  ObjectSchema(nil),
		Execute: func(ctx context.Context, _ map[string]any) (any, error) {
			return host.ListRepositories(ctx)
		},
	})

	r.MustRegister(Tool{
		Name:        "githubService.getRepository",
		Description: "Retrieve a repository; returns null when it does not exist",
		Parameters:  ObjectSchema(ownerRepoProps, "owner", "repo"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			owner, err := stringArg(args, "owner")
			if err != nil {
				return nil, err
			}
			repo, err := stringArg(args, "repo")
			if err != nil {
				return nil, err
			}
			return host.GetRepository(ctx, owner, repo)
		},
	})

	r.MustRegister(Tool{
		Name:        "githubService.createPullRequest",
		Description: "Open a pull request",
		Parameters: ObjectSchema(map[string]any{
			"owner": StringProp("Repository owner"),
			"repo":  StringProp("Repository name"),
			"title": StringProp("Pull request title"),
			"head":  StringProp("Branch with the changes"),
			"base":  StringProp("Branch to merge into"),
			"body":  StringProp("Pull request description"),
		}, "owner", "repo", "title", "head", "base"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			owner, err := stringArg(args, "owner")
			if err != nil {
				return nil, err
			}
			repo, err := stringArg(args, "repo")
			if err != nil {
				return nil, err
			}
			title, err := stringArg(args, "title")
			if err != nil {
				return nil, err
			}
			head, err := stringArg(args, "head")
			if err != nil {
				return nil, err
			}
			base, err := stringArg(args, "base")
			if err != nil {
				return nil, err
			}
			return host.CreatePullRequest(ctx, owner, repo, title, head, base, optionalStringArg(args, "body"))
		},
	})

	r.MustRegister(numberedTool("githubService.getPullRequest", "Read a pull request by number", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, _ map[string]any) (any, error) {
			return host.GetPullRequest(ctx, owner, repo, number)
		}))

	r.MustRegister(editTool("githubService.updatePullRequest", "Update a pull request's title and body", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, title, body string) (any, error) {
			return host.UpdatePullRequest(ctx, owner, repo, number, title, body)
		}))

	r.MustRegister(numberedTool("githubService.closePullRequest", "Close a pull request without merging", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, _ map[string]any) (any, error) {
			return host.ClosePullRequest(ctx, owner, repo, number)
		}))

	r.MustRegister(Tool{
		Name:        "githubService.createIssue",
		Description: "Open an issue",
		Parameters: ObjectSchema(map[string]any{
			"owner": StringProp("Repository owner"),
			"repo":  StringProp("Repository name"),
			"title": StringProp("Issue title"),
			"body":  StringProp("Issue description"),
		}, "owner", "repo", "title"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			owner, err := stringArg(args, "owner")
			if err != nil {
				return nil, err
			}
			repo, err := stringArg(args, "repo")
			if err != nil {
				return nil, err
			}
			title, err := stringArg(args, "title")
			if err != nil {
				return nil, err
			}
			return host.CreateIssue(ctx, owner, repo, title, optionalStringArg(args, "body"))
		},
	})

	r.MustRegister(numberedTool("githubService.getIssue", "Read an issue by number", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, _ map[string]any) (any, error) {
			return host.GetIssue(ctx, owner, repo, number)
		}))

	r.MustRegister(editTool("githubService.updateIssue", "Update an issue's title and body", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, title, body string) (any, error) {
			return host.UpdateIssue(ctx, owner, repo, number, title, body)
		}))

	r.MustRegister(numberedTool("githubService.closeIssue", "Close an issue", ownerRepoProps,
		func(ctx context.Context, owner, repo string, number int, _ map[string]any) (any, error) {
			return host.CloseIssue(ctx, owner, repo, number)
		}))

	r.MustRegister(Tool{
		Name:        "githubService.configureGitClientInContainer",
		Description: "Install a git identity and stored GitHub credential inside a container",
		Parameters: ObjectSchema(map[string]any{
			"containerId": StringProp("Id of the target container"),
			"username":    StringProp("GitHub username for commits and authentication"),
		}, "containerId", "username"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			containerID, err := stringArg(args, "containerId")
			if err != nil {
				return nil, err
			}
			username, err := stringArg(args, "username")
			if err != nil {
				return nil, err
			}
			return host.ConfigureGitClientInContainer(ctx, runner, containerID, username, token)
		},
	})
}

// numberedTool builds a tool taking owner/repo/number.
func numberedTool(name, description string, ownerRepoProps map[string]any,
	invoke func(ctx context.Context, owner, repo string, number int, args map[string]any) (any, error)) Tool {
	props := map[string]any{"number": IntProp("Pull request or issue number")}
	for k, v := range ownerRepoProps {
		props[k] = v
	}
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  ObjectSchema(props, "owner", "repo", "number"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			owner, err := stringArg(args, "owner")
			if err != nil {
				return nil, err
			}
			repo, err := stringArg(args, "repo")
			if err != nil {
				return nil, err
			}
			number, err := intArg(args, "number")
			if err != nil {
				return nil, err
			}
			return invoke(ctx, owner, repo, number, args)
		},
	}
}

// editTool builds a tool taking owner/repo/number plus optional title/body.
func editTool(name, description string, ownerRepoProps map[string]any,
	invoke func(ctx context.Context, owner, repo string, number int, title, body string) (any, error)) Tool {
	props := map[string]any{
		"number": IntProp("Pull request or issue number"),
		"title":  StringProp("New title; omit to keep"),
		"body":   StringProp("New body; omit to keep"),
	}
	for k, v := range ownerRepoProps {
		props[k] = v
	}
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  ObjectSchema(props, "owner", "repo", "number"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			owner, err := stringArg(args, "owner")
			if err != nil {
				return nil, err
			}
			repo, err := stringArg(args, "repo")
			if err != nil {
				return nil, err
			}
			number, err := intArg(args, "number")
			if err != nil {
				return nil, err
			}
			return invoke(ctx, owner, repo, number, optionalStringArg(args, "title"), optionalStringArg(args, "body"))
		},
	}
}
