package tools

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builder6/builder6/internal/github"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

type fakeHost struct {
	configured []string
}

func (f *fakeHost) CreateRepository(_ context.Context, name, description string, private bool) (*github.Repository, error) {
	return &github.Repository{Name: name, Description: description, Private: private, Owner: "octocat"}, nil
}

func (f *fakeHost) ListRepositories(context.Context) ([]*github.Repository, error) {
	return []*github.Repository{{Name: "one"}, {Name: "two"}}, nil
}

func (f *fakeHost) GetRepository(_ context.Context, _, name string) (*github.Repository, error) {
	if name == "missing" {
		return nil, nil
	}
	return &github.Repository{Name: name}, nil
}

func (f *fakeHost) CreatePullRequest(_ context.Context, _, _, title, _, _, _ string) (*github.PullRequest, error) {
	return &github.PullRequest{Number: 7, Title: title, State: "open"}, nil
}

func (f *fakeHost) GetPullRequest(_ context.Context, _, _ string, number int) (*github.PullRequest, error) {
	return &github.PullRequest{Number: number, State: "open"}, nil
}

func (f *fakeHost) UpdatePullRequest(_ context.Context, _, _ string, number int, title, _ string) (*github.PullRequest, error) {
	return &github.PullRequest{Number: number, Title: title, State: "open"}, nil
}

func (f *fakeHost) ClosePullRequest(_ context.Context, _, _ string, number int) (*github.PullRequest, error) {
	return &github.PullRequest{Number: number, State: "closed"}, nil
}

func (f *fakeHost) CreateIssue(_ context.Context, _, _, title, _ string) (*github.Issue, error) {
	return &github.Issue{Number: 3, Title: title, State: "open"}, nil
}

func (f *fakeHost) GetIssue(_ context.Context, _, _ string, number int) (*github.Issue, error) {
	return &github.Issue{Number: number, State: "open"}, nil
}

func (f *fakeHost) UpdateIssue(_ context.Context, _, _ string, number int, title, _ string) (*github.Issue, error) {
	return &github.Issue{Number: number, Title: title, State: "open"}, nil
}

func (f *fakeHost) CloseIssue(_ context.Context, _, _ string, number int) (*github.Issue, error) {
	return &github.Issue{Number: number, State: "closed"}, nil
}

func (f *fakeHost) ConfigureGitClientInContainer(_ context.Context, _ github.ScriptRunner, containerID, username, _ string) (string, error) {
	f.configured = append(f.configured, containerID+":"+username)
	return "", nil
}

type nopRunner struct{}

func (nopRunner) ExecuteScript(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func newGitHubRegistry(host *fakeHost) *Registry {
	r := NewRegistry(logr.Discard())
	RegisterGitHubTools(r, host, nopRunner{}, "secret-token")
	return r
}

func TestGitHubGetRepositoryToolReturnsNilForMissing(t *testing.T) {
	r := newGitHubRegistry(&fakeHost{})

	result, err := r.ExecuteTool(context.Background(), "githubService.getRepository",
		map[string]any{"owner": "octocat", "repo": "missing"})
	require.NoError(t, err)
	assert.Nil(t, result.(*github.Repository))
}

func TestGitHubClosePullRequestTool(t *testing.T) {
	r := newGitHubRegistry(&fakeHost{})

	result, err := r.ExecuteTool(context.Background(), "githubService.closePullRequest",
		map[string]any{"owner": "octocat", "repo": "demo", "number": 7})
	require.NoError(t, err)
	assert.Equal(t, "closed", result.(*github.PullRequest).State)
}

func TestGitHubToolRejectsMissingNumber(t *testing.T) {
	r := newGitHubRegistry(&fakeHost{})

	_, err := r.ExecuteTool(context.Background(), "githubService.getIssue",
		map[string]any{"owner": "octocat", "repo": "demo"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolArgumentInvalid, apperrors.CodeOf(err))
}

func TestGitHubConfigureGitClientToolInjectsToken(t *testing.T) {
	host := &fakeHost{}
	r := newGitHubRegistry(host)

	_, err := r.ExecuteTool(context.Background(), "githubService.configureGitClientInContainer",
		map[string]any{"containerId": "ctr-1", "username": "octocat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ctr-1:octocat"}, host.configured)
}

func TestGitHubToolDeclarationsComplete(t *testing.T) {
	r := newGitHubRegistry(&fakeHost{})

	names := map[string]bool{}
	for _, d := range r.Declarations() {
		names[d.Name] = true
	}
	for _, want := range []string{
		"githubService.createRepository",
		"githubService.listRepositories",
		"githubService.getRepository",
		"githubService.createPullRequest",
		"githubService.getPullRequest",
		"githubService.updatePullRequest",
		"githubService.closePullRequest",
		"githubService.createIssue",
		"githubService.getIssue",
		"githubService.updateIssue",
		"githubService.closeIssue",
		"githubService.configureGitClientInContainer",
	} {
		assert.True(t, names[want], want)
	}
}
