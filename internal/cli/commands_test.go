package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasAllSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"plan", "execute", "cleanup-containers", "list-sessions", "run-evaluation"} {
		assert.True(t, names[want], want)
	}
}

func TestPlanCmdRequiresPrompt(t *testing.T) {
	cmd := NewPlanCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")
}

func TestExecuteCmdRequiresSessionID(t *testing.T) {
	cmd := NewExecuteCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session-id")
}

func TestRunEvaluationReportsUnavailable(t *testing.T) {
	cmd := NewRunEvaluationCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--html"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evaluation harness")
}
