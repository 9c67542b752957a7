// Package sandbox supervises the Docker containers the agent executes
// scripts in. The supervisor keeps its own registry of containers it
// created; operations against ids it never registered fail fast without
// querying the runtime.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/builder6/builder6/internal/metrics"
	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

const defaultExecTimeout = 5 * time.Minute

// Container lifecycle statuses tracked in the registry.
const (
	StatusCreating = "creating"
	StatusRunning  = "running"
	StatusExited   = "exited"
	StatusDead     = "dead"
)

// Container is the supervisor's record of a managed container.
type Container struct {
	ID        string
	Name      string
	Image     string
	GroupID   string
	Status    string
	CreatedAt time.Time
	LastUsed  time.Time
}

// CreateOptions parameterise CreateContainer. Image defaults to the
// configured default image when empty.
type CreateOptions struct {
	GroupID string
	Image   string
}

// dockerAPI is the slice of the Docker Engine client the supervisor uses.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerExecCreate(ctx context.Context, container string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Supervisor owns the container registry and mediates every runtime
// operation. The registry is authoritative: quota checks and lookups
// consult it, never the daemon.
type Supervisor struct {
	docker dockerAPI
	cfg    config.DockerConfig
	log    logr.Logger

	mu       sync.Mutex
	registry map[string]*Container

	now func() time.Time
}

// NewSupervisor connects to the Docker daemon, honouring the configured
// socket path override when set.
func NewSupervisor(cfg config.DockerConfig, log logr.Logger) (*Supervisor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.SocketPath != "" {
		opts = append(opts, client.WithHost("unix://"+cfg.SocketPath))
	}
	docker, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeContainerCreationFailed, "docker client init failed", err)
	}
	return newSupervisor(docker, cfg, log), nil
}

func newSupervisor(docker dockerAPI, cfg config.DockerConfig, log logr.Logger) *Supervisor {
	return &Supervisor{
		docker:   docker,
		cfg:      cfg,
		log:      log.WithName("sandbox"),
		registry: make(map[string]*Container),
		now:      time.Now,
	}
}

// CreateContainer creates and starts a container for the group, enforcing
// the per-group quota. The quota check and the create run under the
// registry lock so concurrent creates cannot overshoot the limit.
func (s *Supervisor) CreateContainer(ctx context.Context, opts CreateOptions) (*Container, error) {
	img := opts.Image
	if img == "" {
		img = s.cfg.DefaultImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.registry {
		if c.GroupID == opts.GroupID {
			count++
		}
	}
	if count >= s.cfg.ContainerLimit {
		return nil, apperrors.Newf(apperrors.ErrCodeContainerLimitReached,
			"container limit of %d reached for group %s", s.cfg.ContainerLimit, opts.GroupID)
	}

	name := s.cfg.ContainerPrefix + uuid.NewString()
	record := &Container{
		Name:      name,
		Image:     img,
		GroupID:   opts.GroupID,
		Status:    StatusCreating,
		CreatedAt: s.now(),
	}

	created, err := s.createAndStart(ctx, img, name)
	if err != nil {
		return nil, err
	}
	record.ID = created
	record.Status = StatusRunning

	s.registry[record.ID] = record
	metrics.ContainersCreated.Inc()
	s.log.V(1).Info("container created", "id", record.ID, "name", name, "image", img)
	out := *record
	return &out, nil
}

func (s *Supervisor) createAndStart(ctx context.Context, img, name string) (string, error) {
	cfg := &container.Config{
		Image: img,
		// Keep PID 1 alive so exec sessions have a running container.
		Cmd: []string{"sleep", "infinity"},
	}
	created, err := s.docker.ContainerCreate(ctx, cfg, nil, nil, nil, name)
	if err != nil {
		if !client.IsErrNotFound(err) && !strings.Contains(err.Error(), "No such image") {
			return "", apperrors.New(apperrors.ErrCodeContainerCreationFailed, "container create failed", err)
		}
		if err := s.pullImage(ctx, img); err != nil {
			return "", err
		}
		created, err = s.docker.ContainerCreate(ctx, cfg, nil, nil, nil, name)
		if err != nil {
			return "", apperrors.New(apperrors.ErrCodeContainerCreationFailed, "container create failed", err)
		}
	}
	if err := s.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", apperrors.New(apperrors.ErrCodeContainerCreationFailed, "container start failed", err)
	}
	return created.ID, nil
}

func (s *Supervisor) pullImage(ctx context.Context, img string) error {
	reader, err := s.docker.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return apperrors.New(apperrors.ErrCodeContainerCreationFailed,
			fmt.Sprintf("image pull failed for %s", img), err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeContainerCreationFailed,
			fmt.Sprintf("image pull failed for %s", img), err)
	}
	return nil
}

// DestroyContainer stops and removes a registered container. Stop errors
// are ignored in favour of best-effort removal; an id the supervisor never
// registered fails ContainerNotFound.
func (s *Supervisor) DestroyContainer(ctx context.Context, id string) error {
	s.mu.Lock()
	record, ok := s.registry[id]
	s.mu.Unlock()
	if !ok {
		return apperrors.Newf(apperrors.ErrCodeContainerNotFound, "container %s is not registered", id)
	}

	if err := s.docker.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		s.log.V(1).Info("container stop failed, removing anyway", "id", id, "error", err.Error())
	}
	if err := s.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		s.mu.Lock()
		record.Status = StatusDead
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeContainerDestructionFailed, "container remove failed", err)
	}

	s.mu.Lock()
	delete(s.registry, id)
	s.mu.Unlock()
	s.log.V(1).Info("container destroyed", "id", id, "name", record.Name)
	return nil
}

// ExecuteScript runs a shell script inside a registered container and
// returns the combined stdout+stderr. The container is started first if
// it is not running. LastUsed advances only when the exec stream completes
// cleanly.
func (s *Supervisor) ExecuteScript(ctx context.Context, id, script string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	record, ok := s.registry[id]
	s.mu.Unlock()
	if !ok {
		return "", apperrors.Newf(apperrors.ErrCodeContainerNotFound, "container %s is not registered", id)
	}

	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inspected, err := s.docker.ContainerInspect(execCtx, id)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeContainerExecutionFailed, "container inspect failed", err)
	}
	if inspected.State == nil || !inspected.State.Running {
		if err := s.docker.ContainerStart(execCtx, id, container.StartOptions{}); err != nil {
			return "", apperrors.New(apperrors.ErrCodeContainerExecutionFailed, "container start failed", err)
		}
	}
	s.mu.Lock()
	record.Status = StatusRunning
	s.mu.Unlock()

	execID, err := s.docker.ContainerExecCreate(execCtx, id, container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", script},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeContainerExecutionFailed, "exec create failed", err)
	}

	attached, err := s.docker.ContainerExecAttach(execCtx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeContainerExecutionFailed, "exec attach failed", err)
	}
	defer attached.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attached.Reader); err != nil {
		return "", apperrors.New(apperrors.ErrCodeContainerExecutionFailed, "exec stream failed", err)
	}

	s.mu.Lock()
	record.LastUsed = s.now()
	s.mu.Unlock()
	return buf.String(), nil
}

// IngestDirectory returns the file manifest under path inside the
// container, one file per line.
func (s *Supervisor) IngestDirectory(ctx context.Context, id, path string) (string, error) {
	script := fmt.Sprintf("find %s -type f", shellQuote(path))
	return s.ExecuteScript(ctx, id, script, 0)
}

// ListContainers returns a snapshot of the registry. A non-empty groupID
// restricts the listing to that group.
func (s *Supervisor) ListContainers(groupID string) []*Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Container, 0, len(s.registry))
	for _, c := range s.registry {
		if groupID != "" && c.GroupID != groupID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out
}

// CleanupIdleContainers destroys every registered container whose
// LastUsed (or CreatedAt when never used) is older than the idle timeout.
// Returns the number destroyed.
func (s *Supervisor) CleanupIdleContainers(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	stale := make([]string, 0)
	for id, c := range s.registry {
		lastUsed := c.LastUsed
		if lastUsed.IsZero() {
			lastUsed = c.CreatedAt
		}
		if lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	cleaned := 0
	for _, id := range stale {
		if err := s.DestroyContainer(ctx, id); err != nil {
			s.log.Error(err, "idle container cleanup failed", "id", id)
			continue
		}
		cleaned++
		metrics.ContainersReaped.Inc()
	}
	return cleaned, nil
}

// shellQuote single-quotes a string for safe use inside sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
