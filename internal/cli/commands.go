package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/builder6/builder6/internal/agent"
	"github.com/builder6/builder6/internal/store"
)

// NewPlanCmd creates a session and generates its plan.
func NewPlanCmd() *cobra.Command {
	var (
		prompt   string
		repoURL  string
		deadline time.Duration
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate an ordered execution plan for a development task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			orchestrator, err := app.orchestrator(cmd)
			if err != nil {
				return err
			}

			req := agent.PlanRequest{Prompt: prompt, RepoURL: repoURL}
			if deadline > 0 {
				d := time.Now().Add(deadline)
				req.Deadline = &d
			}

			sess, tasks, err := orchestrator.StartPlanning(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"sessionId": sess.ID,
				"status":    sess.Status,
				"tasks":     tasks,
			})
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "Development task to plan (required)")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Repository the task applies to")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Optional session deadline, e.g. 30m")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// NewExecuteCmd runs a confirmed plan.
func NewExecuteCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a session's confirmed plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			orchestrator, err := app.orchestrator(cmd)
			if err != nil {
				return err
			}

			result, err := orchestrator.ExecutePlan(cmd.Context(), sessionID)
			if result != nil {
				if printErr := printJSON(cmd, result); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session to execute (required)")
	cmd.MarkFlagRequired("session-id")
	return cmd
}

// NewCleanupContainersCmd reaps idle sandbox containers.
func NewCleanupContainersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-containers",
		Short: "Destroy sandbox containers idle beyond the configured timeout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			supervisor, err := app.supervisor()
			if err != nil {
				return err
			}
			cleaned, err := supervisor.CleanupIdleContainers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d containers\n", cleaned)
			return nil
		},
	}
}

// NewListSessionsCmd prints recent sessions.
func NewListSessionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list-sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sessions, err := app.store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, sess := range sessions {
				printSessionLine(cmd, sess)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

// NewRunEvaluationCmd triggers the external evaluation harness.
func NewRunEvaluationCmd() *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "run-evaluation",
		Short: "Run the evaluation harness against recorded sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fmt.Errorf("the evaluation harness is not linked into this build")
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Emit an HTML report")
	return cmd
}

func printSessionLine(cmd *cobra.Command, sess store.Session) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-22s  %s\n",
		sess.ID, sess.Status, sess.CreatedAt.Format(time.RFC3339))
}

func printJSON(cmd *cobra.Command, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}
