// Package cli assembles the command-line surface of the agent.
package cli

import (
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/builder6/builder6/internal/agent"
	"github.com/builder6/builder6/internal/github"
	"github.com/builder6/builder6/internal/sandbox"
	"github.com/builder6/builder6/internal/store"
	"github.com/builder6/builder6/pkg/config"
	"github.com/builder6/builder6/pkg/llm"
	"github.com/builder6/builder6/pkg/tools"
)

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "builder6",
		Short:         "Autonomous coding agent: plan a development task, then execute it with tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		NewPlanCmd(),
		NewExecuteCmd(),
		NewCleanupContainersCmd(),
		NewListSessionsCmd(),
		NewRunEvaluationCmd(),
	)
	return cmd
}

// app bundles the wired subsystems a command needs.
type app struct {
	cfg   *config.Config
	log   logr.Logger
	store *store.Store
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	stdr.SetVerbosity(0)
	if cfg.DebugEnabled {
		stdr.SetVerbosity(1)
	}
	log := stdr.New(stdlog.New(cmd.ErrOrStderr(), "", stdlog.LstdFlags))

	st, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// orchestrator wires the model runner, the tool registry and their
// backing services.
func (a *app) orchestrator(cmd *cobra.Command) (*agent.Orchestrator, error) {
	provider, err := llm.NewProviderFromConfig(cmd.Context(), a.cfg.LLM)
	if err != nil {
		return nil, err
	}

	supervisor, err := sandbox.NewSupervisor(a.cfg.Docker, a.log)
	if err != nil {
		return nil, err
	}
	ghService := github.NewService(a.cfg.GitHub.Token, a.log)

	registry := tools.NewRegistry(a.log)
	tools.RegisterBuiltins(registry, a.cfg.Search, &http.Client{Timeout: 30 * time.Second})
	tools.RegisterContainerTools(registry, supervisor)
	tools.RegisterGitHubTools(registry, ghService, supervisor, a.cfg.GitHub.Token)

	runner := llm.NewRunner(provider, registry, a.cfg.LLM, a.log)
	return agent.New(a.store, runner, a.log), nil
}

func (a *app) supervisor() (*sandbox.Supervisor, error) {
	return sandbox.NewSupervisor(a.cfg.Docker, a.log)
}
