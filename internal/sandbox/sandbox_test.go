package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-logr/logr"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

// fakeDocker is an in-memory stand-in for the Docker Engine client.
type fakeDocker struct {
	nextID     int
	running    map[string]bool
	execOutput string
	execErr    error
	createErr  error
	removeErr  error
	stopErr    error
	stopped    []string
	removed    []string
	pulled     []string
	execCmds   []string
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{running: make(map[string]bool), execOutput: "ok\n"}
}

func (f *fakeDocker) ContainerCreate(_ context.Context, _ *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.running[id] = true
	return nil
}

func (f *fakeDocker) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	f.running[id] = false
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: f.running[id]},
		},
	}, nil
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, options container.ExecOptions) (types.IDResponse, error) {
	f.execCmds = append(f.execCmds, strings.Join(options.Cmd, " "))
	return types.IDResponse{ID: "exec-1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(context.Context, string, container.ExecAttachOptions) (types.HijackedResponse, error) {
	if f.execErr != nil {
		return types.HijackedResponse{}, f.execErr
	}
	var framed bytes.Buffer
	w := stdcopy.NewStdWriter(&framed, stdcopy.Stdout)
	_, _ = w.Write([]byte(f.execOutput))
	conn, peer := net.Pipe()
	peer.Close()
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(&framed)}, nil
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader("")), nil
}

func newTestSupervisor(docker dockerAPI) *Supervisor {
	cfg := config.DockerConfig{
		ContainerPrefix: "builder6-container-",
		ContainerLimit:  2,
		IdleTimeout:     10 * time.Minute,
		DefaultImage:    "debian:stable-slim",
	}
	return newSupervisor(docker, cfg, logr.Discard())
}

func TestCreateContainerRegistersAndStarts(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)

	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "ctr-1", created.ID)
	assert.True(t, strings.HasPrefix(created.Name, "builder6-container-"))
	assert.Equal(t, "debian:stable-slim", created.Image)
	assert.Equal(t, StatusRunning, created.Status)
	assert.True(t, docker.running["ctr-1"])
	assert.Len(t, s.ListContainers(""), 1)
}

func TestCreateContainerEnforcesGroupQuota(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	ctx := context.Background()

	_, err := s.CreateContainer(ctx, CreateOptions{GroupID: "g1"})
	require.NoError(t, err)
	_, err = s.CreateContainer(ctx, CreateOptions{GroupID: "g1"})
	require.NoError(t, err)

	_, err = s.CreateContainer(ctx, CreateOptions{GroupID: "g1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerLimitReached, apperrors.CodeOf(err))

	// Quota is per group.
	_, err = s.CreateContainer(ctx, CreateOptions{GroupID: "g2"})
	assert.NoError(t, err)
}

func TestCreateContainerPullsMissingImage(t *testing.T) {
	docker := newFakeDocker()
	docker.createErr = errors.New("Error response from daemon: No such image: debian:stable-slim")
	s := newTestSupervisor(docker)

	// First create fails, the image is pulled, then create retries; the
	// fake keeps failing so the error surfaces, but the pull happened.
	_, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerCreationFailed, apperrors.CodeOf(err))
	assert.Equal(t, []string{"debian:stable-slim"}, docker.pulled)
}

func TestDestroyContainerUnknownID(t *testing.T) {
	s := newTestSupervisor(newFakeDocker())

	err := s.DestroyContainer(context.Background(), "never-registered")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerNotFound, apperrors.CodeOf(err))
}

func TestDestroyContainerIgnoresStopError(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)

	docker.stopErr = errors.New("stop failed")
	err = s.DestroyContainer(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, docker.removed)
	assert.Empty(t, s.ListContainers(""))
}

func TestExecuteScriptCollectsOutputAndBumpsLastUsed(t *testing.T) {
	docker := newFakeDocker()
	docker.execOutput = "hello from container\n"
	s := newTestSupervisor(docker)
	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)

	before := s.ListContainers("")[0].LastUsed
	assert.True(t, before.IsZero())

	out, err := s.ExecuteScript(context.Background(), created.ID, "echo hello from container", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello from container\n", out)
	assert.Equal(t, "/bin/sh -c echo hello from container", docker.execCmds[0])
	assert.False(t, s.ListContainers("")[0].LastUsed.IsZero())
}

func TestExecuteScriptStartsStoppedContainer(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)
	docker.running[created.ID] = false

	_, err = s.ExecuteScript(context.Background(), created.ID, "true", 0)
	require.NoError(t, err)
	assert.True(t, docker.running[created.ID])
}

func TestExecuteScriptStreamErrorLeavesLastUsed(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)

	docker.execErr = errors.New("attach refused")
	_, err = s.ExecuteScript(context.Background(), created.ID, "true", 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerExecutionFailed, apperrors.CodeOf(err))
	assert.True(t, s.ListContainers("")[0].LastUsed.IsZero())
}

func TestExecuteScriptUnknownContainer(t *testing.T) {
	s := newTestSupervisor(newFakeDocker())

	_, err := s.ExecuteScript(context.Background(), "missing", "true", 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeContainerNotFound, apperrors.CodeOf(err))
}

func TestIngestDirectoryQuotesPath(t *testing.T) {
	docker := newFakeDocker()
	docker.execOutput = "/work/a.go\n/work/b.go\n"
	s := newTestSupervisor(docker)
	created, err := s.CreateContainer(context.Background(), CreateOptions{GroupID: "g1"})
	require.NoError(t, err)

	manifest, err := s.IngestDirectory(context.Background(), created.ID, "/work dir")
	require.NoError(t, err)
	assert.Equal(t, "/work/a.go\n/work/b.go\n", manifest)
	assert.Contains(t, docker.execCmds[0], "find '/work dir' -type f")
}

func TestListContainersFiltersByGroup(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	ctx := context.Background()

	_, err := s.CreateContainer(ctx, CreateOptions{GroupID: "g"})
	require.NoError(t, err)
	_, err = s.CreateContainer(ctx, CreateOptions{GroupID: "g"})
	require.NoError(t, err)
	_, err = s.CreateContainer(ctx, CreateOptions{GroupID: "other"})
	require.NoError(t, err)

	grouped := s.ListContainers("g")
	require.Len(t, grouped, 2)
	for _, c := range grouped {
		assert.Equal(t, "g", c.GroupID)
	}

	assert.Len(t, s.ListContainers("other"), 1)
	assert.Len(t, s.ListContainers(""), 3)
	assert.Empty(t, s.ListContainers("unseen"))
}

func TestCleanupIdleContainers(t *testing.T) {
	docker := newFakeDocker()
	s := newTestSupervisor(docker)
	ctx := context.Background()

	stale, err := s.CreateContainer(ctx, CreateOptions{GroupID: "g1"})
	require.NoError(t, err)
	fresh, err := s.CreateContainer(ctx, CreateOptions{GroupID: "g2"})
	require.NoError(t, err)

	// Age the first container past the idle timeout.
	s.mu.Lock()
	s.registry[stale.ID].LastUsed = time.Now().Add(-time.Hour)
	s.registry[fresh.ID].LastUsed = time.Now()
	s.mu.Unlock()

	cleaned, err := s.CleanupIdleContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	remaining := s.ListContainers("")
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}
