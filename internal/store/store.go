// Package store provides durable persistence for sessions and tasks.
// It is backed by Postgres when the database URL carries a postgresql://
// scheme and by pure-Go SQLite otherwise.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/builder6/builder6/pkg/errors"
)

// Store persists sessions and tasks.
type Store struct {
	db  *gorm.DB
	log logr.Logger

	// insertMu serialises order computation per session so that
	// max(order)+1 stays monotonic under concurrent inserts.
	mu       sync.Mutex
	insertMu map[string]*sync.Mutex
}

// Open connects to the database named by databaseURL and runs migrations.
func Open(databaseURL string, log logr.Logger) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgresql://") || strings.HasPrefix(databaseURL, "postgres://") {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(strings.TrimPrefix(databaseURL, "file:"))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to open database", err)
	}

	if err := db.AutoMigrate(&Session{}, &Task{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to migrate schema", err)
	}

	return &Store{
		db:       db,
		log:      log,
		insertMu: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) sessionMutex(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.insertMu[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.insertMu[sessionID] = m
	}
	return m
}

// CreateSession inserts a new session. Zero fields of initial receive
// defaults: a fresh uuid, status OPEN, and the current time.
func (s *Store) CreateSession(ctx context.Context, initial *Session) (*Session, error) {
	sess := &Session{}
	if initial != nil {
		*sess = *initial
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = SessionStatusOpen
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to create session", err)
	}
	s.log.V(1).Info("session created", "sessionID", sess.ID, "status", sess.Status)
	return sess, nil
}

// GetSession returns the session or nil when the id is unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to retrieve session", err)
	}
	return &sess, nil
}

// SessionUpdate holds the mutable session fields. Nil fields are left
// untouched.
type SessionUpdate struct {
	Status   *SessionStatus
	RawPlan  *string
	Deadline *time.Time
}

// UpdateSession applies the partial update and returns the stored session.
// Fails with SessionNotFound when the id is unknown and with
// SessionStateInvalid when a status update would move a terminal session
// to a different status.
func (s *Store) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	fields := map[string]any{}
	if update.Status != nil {
		current, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session not found: %s", id)
		}
		if current.Status.Terminal() && *update.Status != current.Status {
			return nil, apperrors.Newf(apperrors.ErrCodeSessionStateInvalid,
				"session %s is %s and cannot transition to %s", id, current.Status, *update.Status)
		}
		fields["status"] = *update.Status
	}
	if update.RawPlan != nil {
		fields["raw_plan"] = *update.RawPlan
	}
	if update.Deadline != nil {
		fields["deadline"] = *update.Deadline
	}

	res := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to update session", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session not found: %s", id)
	}
	s.log.V(1).Info("session updated", "sessionID", id)
	return s.GetSession(ctx, id)
}

// ListSessions returns up to limit sessions, newest first. A non-positive
// limit returns all sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	var sessions []Session
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to list sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and every task that belongs to it.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Task{}).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeInternal, "failed to delete tasks", err)
		}
		if err := tx.Delete(&Session{}, "id = ?", id).Error; err != nil {
			return apperrors.New(apperrors.ErrCodeInternal, "failed to delete session", err)
		}
		return nil
	})
}

// ListTasks returns the session's tasks in strictly ascending order.
func (s *Store) ListTasks(ctx context.Context, sessionID string) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("task_order ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to list tasks", err)
	}
	return tasks, nil
}

// InsertTask appends a task to the session. When order is nil the task
// receives max(order)+1, or 0 for the first task. The max(order) read and
// the insert run inside one transaction, serialised per session.
func (s *Store) InsertTask(ctx context.Context, sessionID, description string, order *int) (*Task, error) {
	if description == "" {
		return nil, apperrors.Newf(apperrors.ErrCodeInternal, "task description must not be empty")
	}

	m := s.sessionMutex(sessionID)
	m.Lock()
	defer m.Unlock()

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Description: description,
		Status:      TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order != nil {
			task.Order = *order
		} else {
			var maxOrder *int
			row := tx.Model(&Task{}).
				Where("session_id = ?", sessionID).
				Select("MAX(task_order)").
				Row()
			if err := row.Scan(&maxOrder); err != nil {
				return err
			}
			if maxOrder != nil {
				task.Order = *maxOrder + 1
			}
		}
		return tx.Create(task).Error
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to insert task", err)
	}
	s.log.V(1).Info("task inserted", "taskID", task.ID, "sessionID", sessionID, "order", task.Order)
	return task, nil
}

// GetTask returns the task or nil when the id is unknown.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to retrieve task", err)
	}
	return &task, nil
}

// TaskUpdate holds the mutable task fields. Nil fields are left untouched.
type TaskUpdate struct {
	Status  *TaskStatus
	History *string
}

// UpdateTask applies the partial update and returns the stored task. Fails
// with TaskNotFound when the id is unknown.
func (s *Store) UpdateTask(ctx context.Context, id string, update TaskUpdate) (*Task, error) {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.History != nil {
		fields["history"] = *update.History
	}

	res := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to update task", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodeTaskNotFound, "task not found: %s", id)
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskStatus sets the task status and advances updated-at. Unknown
// ids return (nil, nil) rather than an error.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status TaskStatus) (*Task, error) {
	res := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to update task status", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	s.log.V(1).Info("task status updated", "taskID", id, "status", status)
	return s.GetTask(ctx, id)
}
