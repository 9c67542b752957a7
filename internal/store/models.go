package store

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusOpen                 SessionStatus = "OPEN"
	SessionStatusPlanning             SessionStatus = "PLANNING"
	SessionStatusAwaitingConfirmation SessionStatus = "AWAITING_CONFIRMATION"
	SessionStatusExecuting            SessionStatus = "EXECUTING"
	SessionStatusCompleted            SessionStatus = "COMPLETED"
	SessionStatusFailed               SessionStatus = "FAILED"
	SessionStatusDeadlineExceeded     SessionStatus = "DEADLINE_EXCEEDED"
)

// Terminal reports whether no further status transitions are allowed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusDeadlineExceeded:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Session is a unit of work bounded by a user prompt and optional deadline.
// RawPlan holds the serialized plan snapshot; the payload is opaque to the
// store and must round-trip exactly.
type Session struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	Status    SessionStatus `gorm:"not null" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
	RawPlan   string        `json:"raw_plan,omitempty"`
}

// Task is an ordered atomic step within a session's plan. History holds the
// serialized react history, opaque to the store.
type Task struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	SessionID   string     `gorm:"not null;index;uniqueIndex:idx_session_order,priority:1" json:"session_id"`
	Order       int        `gorm:"column:task_order;not null;uniqueIndex:idx_session_order,priority:2" json:"order"`
	Description string     `gorm:"not null" json:"description"`
	Status      TaskStatus `gorm:"not null" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	History     string     `json:"history,omitempty"`
}
