// Package agent orchestrates sessions: it plans with the model, persists
// the plan, and drives each task through a reason-act loop against the
// tool registry.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/builder6/builder6/internal/store"
	apperrors "github.com/builder6/builder6/pkg/errors"
	"github.com/builder6/builder6/pkg/llm"
)

const (
	// maxHistoryItems bounds how many recent react entries are included
	// verbatim in each prompt.
	maxHistoryItems = 5
	// maxLoopSteps is the hard safety bound per task.
	maxLoopSteps = 50
	// completionSentinel ends a task's react loop.
	completionSentinel = "TASK_COMPLETE"
	// maxEmptyResponses bounds consecutive model turns that carry neither
	// content nor tool calls before the task is abandoned.
	maxEmptyResponses = 3
)

// ReactEntry records one iteration of the reason-act loop.
type ReactEntry struct {
	ToolCalls   []llm.ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []llm.ToolResult `json:"toolResults,omitempty"`
	Content     string           `json:"content,omitempty"`
	Observation []any            `json:"observation,omitempty"`
}

// PlanRequest parameterises StartPlanning.
type PlanRequest struct {
	Prompt   string
	RepoURL  string
	Deadline *time.Time
}

// ExecutionResult is the outcome of ExecutePlan.
type ExecutionResult struct {
	Status store.SessionStatus `json:"status"`
	Log    []ReactEntry        `json:"log"`
}

// Orchestrator coordinates the store, the model runner and the tool
// registry for a session's lifecycle.
type Orchestrator struct {
	store *store.Store
	model llm.Client
	log   logr.Logger
	now   func() time.Time
}

// New builds an orchestrator.
func New(st *store.Store, model llm.Client, log logr.Logger) *Orchestrator {
	return &Orchestrator{
		store: st,
		model: model,
		log:   log.WithName("agent"),
		now:   time.Now,
	}
}

// StartPlanning creates a session, asks the model for an ordered plan and
// persists it. The session ends in AWAITING_CONFIRMATION with the plan
// snapshot stored on it.
func (o *Orchestrator) StartPlanning(ctx context.Context, req PlanRequest) (*store.Session, []store.Task, error) {
	sess, err := o.store.CreateSession(ctx, &store.Session{
		Status:   store.SessionStatusPlanning,
		Deadline: req.Deadline,
	})
	if err != nil {
		return nil, nil, err
	}
	o.log.Info("planning started", "sessionID", sess.ID)

	descriptions, err := o.generatePlan(ctx, planningPrompt(req.Prompt, req.RepoURL))
	if err != nil {
		return nil, nil, err
	}

	tasks, err := o.insertPlan(ctx, sess.ID, descriptions)
	if err != nil {
		return nil, nil, err
	}

	sess, err = o.snapshotPlan(ctx, sess.ID, tasks)
	if err != nil {
		return nil, nil, err
	}
	return sess, tasks, nil
}

// RefinePlan asks the model for a revised plan given the existing task
// descriptions and a refinement instruction. The new tasks replace the
// prior plan snapshot.
func (o *Orchestrator) RefinePlan(ctx context.Context, sessionID, refinement string) (*store.Session, []store.Task, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session not found: %s", sessionID)
	}

	existing, err := o.store.ListTasks(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	descriptions := make([]string, 0, len(existing))
	for _, t := range existing {
		descriptions = append(descriptions, t.Description)
	}

	revised, err := o.generatePlan(ctx, refinementPrompt(descriptions, refinement))
	if err != nil {
		return nil, nil, err
	}

	tasks, err := o.insertPlan(ctx, sessionID, revised)
	if err != nil {
		return nil, nil, err
	}

	sess, err = o.snapshotPlan(ctx, sessionID, tasks)
	if err != nil {
		return nil, nil, err
	}
	return sess, tasks, nil
}

// ExecutePlan runs the session's pending tasks sequentially, each through
// its own react loop, until the plan completes, the deadline passes, or
// the model fails fatally.
func (o *Orchestrator) ExecutePlan(ctx context.Context, sessionID string) (*ExecutionResult, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session not found: %s", sessionID)
	}
	if sess.Status != store.SessionStatusAwaitingConfirmation {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionStateInvalid,
			"session %s is %s, expected %s", sessionID, sess.Status, store.SessionStatusAwaitingConfirmation)
	}

	if _, err := o.setStatus(ctx, sessionID, store.SessionStatusExecuting); err != nil {
		return nil, err
	}
	o.log.Info("execution started", "sessionID", sessionID)

	result := &ExecutionResult{Log: []ReactEntry{}}
	for {
		if sess.Deadline != nil && o.now().After(*sess.Deadline) {
			o.log.Info("session deadline exceeded", "sessionID", sessionID)
			result.Status = store.SessionStatusDeadlineExceeded
			_, err := o.setStatus(ctx, sessionID, store.SessionStatusDeadlineExceeded)
			return result, err
		}

		tasks, err := o.store.ListTasks(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		var next *store.Task
		for i := range tasks {
			if tasks[i].Status == store.TaskStatusPending {
				next = &tasks[i]
				break
			}
		}
		if next == nil {
			result.Status = store.SessionStatusCompleted
			_, err := o.setStatus(ctx, sessionID, store.SessionStatusCompleted)
			return result, err
		}

		if _, err := o.store.UpdateTaskStatus(ctx, next.ID, store.TaskStatusInProgress); err != nil {
			return nil, err
		}

		entries, finalStatus, taskErr := o.runTask(ctx, next)
		result.Log = append(result.Log, entries...)
		if _, err := o.store.UpdateTaskStatus(ctx, next.ID, finalStatus); err != nil {
			return nil, err
		}
		if taskErr != nil {
			result.Status = store.SessionStatusFailed
			if _, err := o.setStatus(ctx, sessionID, store.SessionStatusFailed); err != nil {
				return nil, err
			}
			return result, taskErr
		}
	}
}

// runTask drives one task's react loop. It returns the entries produced in
// this run, the task's final status and, for model failures, the error
// that aborted the loop.
func (o *Orchestrator) runTask(ctx context.Context, task *store.Task) ([]ReactEntry, store.TaskStatus, error) {
	history := decodeHistory(task.History)
	start := len(history)
	emptyResponses := 0

	for {
		prompt := reactPrompt(task.Description, history)
		resp, err := o.model.GenerateWithTools(ctx, prompt)
		if err != nil {
			o.log.Error(err, "model call failed, aborting task", "taskID", task.ID)
			return history[start:], store.TaskStatusFailed, err
		}

		// A turn with neither content nor tool calls makes no progress
		// and recording it would only recycle the same prompt. Tolerate
		// a few, then give the task up.
		if resp.Content == "" && len(resp.ToolCalls) == 0 {
			emptyResponses++
			o.log.Info("model returned an empty turn", "taskID", task.ID, "consecutive", emptyResponses)
			if emptyResponses >= maxEmptyResponses {
				return history[start:], store.TaskStatusFailed, nil
			}
			continue
		}
		emptyResponses = 0

		entry := ReactEntry{Content: resp.Content, ToolCalls: resp.ToolCalls}
		if len(resp.ToolCalls) > 0 {
			results, err := o.model.ExecuteToolCalls(ctx, resp.ToolCalls)
			if err != nil {
				return history[start:], store.TaskStatusFailed, err
			}
			entry.ToolResults = results
			for _, r := range results {
				entry.Observation = append(entry.Observation, r.Result)
			}
		}

		history = append(history, entry)
		if err := o.persistHistory(ctx, task.ID, history); err != nil {
			return history[start:], store.TaskStatusFailed, err
		}

		if strings.Contains(entry.Content, completionSentinel) {
			o.log.V(1).Info("task completed", "taskID", task.ID, "steps", len(history))
			return history[start:], store.TaskStatusCompleted, nil
		}
		if len(history) > maxLoopSteps {
			o.log.Info("task exceeded step bound", "taskID", task.ID, "steps", len(history))
			return history[start:], store.TaskStatusFailed, nil
		}
	}
}

func (o *Orchestrator) persistHistory(ctx context.Context, taskID string, history []ReactEntry) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeInternal, "failed to serialize task history", err)
	}
	encoded := string(raw)
	_, err = o.store.UpdateTask(ctx, taskID, store.TaskUpdate{History: &encoded})
	return err
}

// generatePlan asks the model for a JSON plan and extracts the ordered
// task descriptions.
func (o *Orchestrator) generatePlan(ctx context.Context, prompt string) ([]string, error) {
	value, err := o.model.GenerateJSON(ctx, prompt)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInternal) {
			return nil, apperrors.New(apperrors.ErrCodePlanParseFailed, "model returned an unparseable plan", err)
		}
		return nil, err
	}
	descriptions, err := parsePlan(value)
	if err != nil {
		return nil, err
	}
	if len(descriptions) == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodePlanParseFailed, "model returned an empty plan")
	}
	return descriptions, nil
}

func (o *Orchestrator) insertPlan(ctx context.Context, sessionID string, descriptions []string) ([]store.Task, error) {
	tasks := make([]store.Task, 0, len(descriptions))
	for _, description := range descriptions {
		task, err := o.store.InsertTask(ctx, sessionID, description, nil)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

// snapshotPlan stores the plan JSON on the session and advances it to
// AWAITING_CONFIRMATION.
func (o *Orchestrator) snapshotPlan(ctx context.Context, sessionID string, tasks []store.Task) (*store.Session, error) {
	raw, err := json.Marshal(tasks)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to serialize plan", err)
	}
	plan := string(raw)
	status := store.SessionStatusAwaitingConfirmation
	return o.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		Status:  &status,
		RawPlan: &plan,
	})
}

func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, status store.SessionStatus) (*store.Session, error) {
	return o.store.UpdateSession(ctx, sessionID, store.SessionUpdate{Status: &status})
}

// parsePlan accepts a JSON array of {"description": string} objects.
func parsePlan(value any) ([]string, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodePlanParseFailed, "plan is not a JSON array")
	}
	descriptions := make([]string, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrCodePlanParseFailed, "plan entry %d is not an object", i)
		}
		description, ok := obj["description"].(string)
		if !ok || description == "" {
			return nil, apperrors.Newf(apperrors.ErrCodePlanParseFailed, "plan entry %d has no description", i)
		}
		descriptions = append(descriptions, description)
	}
	return descriptions, nil
}

func decodeHistory(raw string) []ReactEntry {
	if raw == "" {
		return nil
	}
	var history []ReactEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil
	}
	return history
}

func planningPrompt(goal, repoURL string) string {
	var sb strings.Builder
	sb.WriteString("You are a software engineering planner. Produce an ordered plan for the goal below.\n")
	fmt.Fprintf(&sb, "Goal: %s\n", goal)
	if repoURL != "" {
		fmt.Fprintf(&sb, "Repository: %s\n", repoURL)
	}
	sb.WriteString(`Respond with a JSON array of objects, each {"description": "<step>"}. No other text.`)
	return sb.String()
}

func refinementPrompt(existing []string, refinement string) string {
	var sb strings.Builder
	sb.WriteString("Revise the following plan.\n")
	fmt.Fprintf(&sb, "Current plan: %s\n", strings.Join(existing, ", "))
	fmt.Fprintf(&sb, "Refinement: %s\n", refinement)
	sb.WriteString(`Respond with a JSON array of objects, each {"description": "<step>"}. No other text.`)
	return sb.String()
}

func reactPrompt(description string, history []ReactEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", description)

	recent := history
	if len(history) > maxHistoryItems {
		fmt.Fprintf(&sb, "[%d earlier actions omitted]\n", len(history)-maxHistoryItems)
		recent = history[len(history)-maxHistoryItems:]
	}
	for _, entry := range recent {
		content := entry.Content
		if content == "" {
			content = "(tool actions)"
		}
		fmt.Fprintf(&sb, "- %s\n", content)
	}

	fmt.Fprintf(&sb, "Use the available tools as needed. When the task is finished, reply with %s.", completionSentinel)
	return sb.String()
}
