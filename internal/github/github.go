// Package github adapts the GitHub REST API for the agent's repository
// operations: repo CRUD, pull requests, issues, and container-side git
// client configuration.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	gh "github.com/google/go-github/v66/github"
)

// Repository is the adapter's view of a GitHub repository.
type Repository struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	URL         string `json:"url"`
	CloneURL    string `json:"cloneUrl"`
}

// PullRequest is the adapter's view of a pull request.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// Issue is the adapter's view of an issue.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// ScriptRunner executes a shell script inside a managed container. The
// sandbox supervisor satisfies this.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, containerID, script string, timeout time.Duration) (string, error)
}

// reposAPI, pullsAPI and issuesAPI cover the slices of go-github the
// adapter calls, so tests can substitute fakes.
type reposAPI interface {
	Create(ctx context.Context, org string, repo *gh.Repository) (*gh.Repository, *gh.Response, error)
	ListByAuthenticatedUser(ctx context.Context, opts *gh.RepositoryListByAuthenticatedUserOptions) ([]*gh.Repository, *gh.Response, error)
	Get(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
}

type pullsAPI interface {
	Create(ctx context.Context, owner, repo string, pull *gh.NewPullRequest) (*gh.PullRequest, *gh.Response, error)
	Get(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, *gh.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, pull *gh.PullRequest) (*gh.PullRequest, *gh.Response, error)
}

type issuesAPI interface {
	Create(ctx context.Context, owner, repo string, issue *gh.IssueRequest) (*gh.Issue, *gh.Response, error)
	Get(ctx context.Context, owner, repo string, number int) (*gh.Issue, *gh.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, issue *gh.IssueRequest) (*gh.Issue, *gh.Response, error)
}

// Service talks to GitHub on behalf of the agent. Errors from the API are
// returned as-is: they carry the remote status and are not re-kinded.
type Service struct {
	repos  reposAPI
	pulls  pullsAPI
	issues issuesAPI
	log    logr.Logger
}

// NewService builds a Service authenticated with the token.
func NewService(token string, log logr.Logger) *Service {
	client := gh.NewClient(nil).WithAuthToken(token)
	return &Service{
		repos:  client.Repositories,
		pulls:  client.PullRequests,
		issues: client.Issues,
		log:    log.WithName("github"),
	}
}

// CreateRepository creates a repository under the authenticated user.
func (s *Service) CreateRepository(ctx context.Context, name, description string, private bool) (*Repository, error) {
	created, _, err := s.repos.Create(ctx, "", &gh.Repository{
		Name:        gh.String(name),
		Description: gh.String(description),
		Private:     gh.Bool(private),
	})
	if err != nil {
		return nil, err
	}
	s.log.V(1).Info("repository created", "name", created.GetFullName())
	return convertRepository(created), nil
}

// ListRepositories lists repositories of the authenticated user.
func (s *Service) ListRepositories(ctx context.Context) ([]*Repository, error) {
	repos, _, err := s.repos.ListByAuthenticatedUser(ctx, &gh.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, convertRepository(r))
	}
	return out, nil
}

// GetRepository retrieves a repository. A 404 yields (nil, nil).
func (s *Service) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	repo, resp, err := s.repos.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return convertRepository(repo), nil
}

// CreatePullRequest opens a pull request from head into base.
func (s *Service) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*PullRequest, error) {
	created, _, err := s.pulls.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(head),
		Base:  gh.String(base),
		Body:  gh.String(body),
	})
	if err != nil {
		return nil, err
	}
	return convertPullRequest(created), nil
}

// GetPullRequest reads a pull request by number.
func (s *Service) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, _, err := s.pulls.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return convertPullRequest(pr), nil
}

// UpdatePullRequest edits a pull request's title and body. Empty values
// leave the corresponding field untouched.
func (s *Service) UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body string) (*PullRequest, error) {
	patch := &gh.PullRequest{}
	if title != "" {
		patch.Title = gh.String(title)
	}
	if body != "" {
		patch.Body = gh.String(body)
	}
	pr, _, err := s.pulls.Edit(ctx, owner, repo, number, patch)
	if err != nil {
		return nil, err
	}
	return convertPullRequest(pr), nil
}

// ClosePullRequest closes a pull request without merging.
func (s *Service) ClosePullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, _, err := s.pulls.Edit(ctx, owner, repo, number, &gh.PullRequest{State: gh.String("closed")})
	if err != nil {
		return nil, err
	}
	return convertPullRequest(pr), nil
}

// CreateIssue opens an issue.
func (s *Service) CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error) {
	issue, _, err := s.issues.Create(ctx, owner, repo, &gh.IssueRequest{
		Title: gh.String(title),
		Body:  gh.String(body),
	})
	if err != nil {
		return nil, err
	}
	return convertIssue(issue), nil
}

// GetIssue reads an issue by number.
func (s *Service) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	issue, _, err := s.issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return convertIssue(issue), nil
}

// UpdateIssue edits an issue's title and body. Empty values leave the
// corresponding field untouched.
func (s *Service) UpdateIssue(ctx context.Context, owner, repo string, number int, title, body string) (*Issue, error) {
	patch := &gh.IssueRequest{}
	if title != "" {
		patch.Title = gh.String(title)
	}
	if body != "" {
		patch.Body = gh.String(body)
	}
	issue, _, err := s.issues.Edit(ctx, owner, repo, number, patch)
	if err != nil {
		return nil, err
	}
	return convertIssue(issue), nil
}

// CloseIssue closes an issue.
func (s *Service) CloseIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	issue, _, err := s.issues.Edit(ctx, owner, repo, number, &gh.IssueRequest{State: gh.String("closed")})
	if err != nil {
		return nil, err
	}
	return convertIssue(issue), nil
}

// ConfigureGitClientInContainer installs a git identity and a stored
// credential for github.com inside the container.
func (s *Service) ConfigureGitClientInContainer(ctx context.Context, runner ScriptRunner, containerID, username, token string) (string, error) {
	script := fmt.Sprintf(`git config --global user.name %q && `+
		`git config --global user.email %q && `+
		`git config --global credential.helper store && `+
		`printf 'https://%s:%s@github.com\n' > ~/.git-credentials`,
		username, username+"@users.noreply.github.com", username, token)
	return runner.ExecuteScript(ctx, containerID, script, 0)
}

func convertRepository(r *gh.Repository) *Repository {
	return &Repository{
		Owner:       r.GetOwner().GetLogin(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		Private:     r.GetPrivate(),
		URL:         r.GetHTMLURL(),
		CloneURL:    r.GetCloneURL(),
	}
}

func convertPullRequest(pr *gh.PullRequest) *PullRequest {
	return &PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
		State:  pr.GetState(),
		URL:    pr.GetHTMLURL(),
	}
}

func convertIssue(issue *gh.Issue) *Issue {
	return &Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  issue.GetState(),
		URL:    issue.GetHTMLURL(),
	}
}
