package tools

import (
	"context"
	"time"

	"github.com/builder6/builder6/internal/sandbox"
)

// ContainerManager is the slice of the sandbox supervisor the container
// tools invoke.
type ContainerManager interface {
	CreateContainer(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Container, error)
	DestroyContainer(ctx context.Context, id string) error
	ExecuteScript(ctx context.Context, id, script string, timeout time.Duration) (string, error)
	ListContainers(groupID string) []*sandbox.Container
	CleanupIdleContainers(ctx context.Context) (int, error)
	IngestDirectory(ctx context.Context, id, path string) (string, error)
}

// RegisterContainerTools exposes the sandbox supervisor operations under
// the dockerManager namespace.
func RegisterContainerTools(r *Registry, mgr ContainerManager) {
	r.MustRegister(Tool{
		Name:        "dockerManager.createContainer",
		Description: "Create and start a sandbox container for a group",
		Parameters: ObjectSchema(map[string]any{
			"groupId": StringProp("Quota group the container belongs to"),
			"image":   StringProp("Optional image; defaults to the configured image"),
		}, "groupId"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			groupID, err := stringArg(args, "groupId")
			if err != nil {
				return nil, err
			}
			created, err := mgr.CreateContainer(ctx, sandbox.CreateOptions{
				GroupID: groupID,
				Image:   optionalStringArg(args, "image"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"containerId": created.ID,
				"name":        created.Name,
				"image":       created.Image,
				"status":      created.Status,
			}, nil
		},
	})

	r.MustRegister(Tool{
		Name:        "dockerManager.destroyContainer",
		Description: "Stop and remove a sandbox container",
		Parameters: ObjectSchema(map[string]any{
			"containerId": StringProp("Id of the container to destroy"),
		}, "containerId"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "containerId")
			if err != nil {
				return nil, err
			}
			if err := mgr.DestroyContainer(ctx, id); err != nil {
				return nil, err
			}
			return map[string]any{"destroyed": id}, nil
		},
	})

	r.MustRegister(Tool{
		Name:        "dockerManager.executeScript",
		Description: "Run a shell script inside a sandbox container and return its output",
		Parameters: ObjectSchema(map[string]any{
			"containerId":    StringProp("Id of the target container"),
			"script":         StringProp("Shell script to run"),
			"timeoutSeconds": IntProp("Optional timeout in seconds"),
		}, "containerId", "script"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "containerId")
			if err != nil {
				return nil, err
			}
			script, err := stringArg(args, "script")
			if err != nil {
				return nil, err
			}
			var timeout time.Duration
			if seconds, ok := optionalIntArg(args, "timeoutSeconds"); ok && seconds > 0 {
				timeout = time.Duration(seconds) * time.Second
			}
			return mgr.ExecuteScript(ctx, id, script, timeout)
		},
	})

	r.MustRegister(Tool{
		Name:        "dockerManager.listContainers",
		Description: "List the sandbox containers currently registered",
		Parameters: ObjectSchema(map[string]any{
			"groupId": StringProp("Optional group to restrict the listing to"),
		}),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			containers := mgr.ListContainers(optionalStringArg(args, "groupId"))
			out := make([]map[string]any, 0, len(containers))
			for _, c := range containers {
				out = append(out, map[string]any{
					"containerId": c.ID,
					"name":        c.Name,
					"image":       c.Image,
					"groupId":     c.GroupID,
					"status":      c.Status,
				})
			}
			return out, nil
		},
	})

	r.MustRegister(Tool{
		Name:        "dockerManager.cleanupIdleContainers",
		Description: "Destroy containers idle beyond the configured timeout",
		Parameters:  ObjectSchema(nil),
		Execute: func(ctx context.Context, _ map[string]any) (any, error) {
			cleaned, err := mgr.CleanupIdleContainers(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"cleaned": cleaned}, nil
		},
	})

	r.MustRegister(Tool{
		Name:        "dockerManager.ingestDirectory",
		Description: "Return the file manifest under a directory inside a container",
		Parameters: ObjectSchema(map[string]any{
			"containerId": StringProp("Id of the target container"),
			"path":        StringProp("Directory to enumerate"),
		}, "containerId", "path"),
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "containerId")
			if err != nil {
				return nil, err
			}
			path, err := stringArg(args, "path")
			if err != nil {
				return nil, err
			}
			return mgr.IngestDirectory(ctx, id, path)
		},
	})
}
