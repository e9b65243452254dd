package tasks

import (
	"sync"
	"time"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/google/uuid"
)

// Tracker is the in-memory registry of batch consolidation jobs. One writer
// (the batch worker) and any number of status pollers may touch a task
// concurrently; all access goes through the mutex and reads return value
// copies, so a poller never observes a half-written update.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]*domain.ConsolidationTask
}

// NewTracker creates an empty task tracker
func NewTracker() *Tracker {
	return &Tracker{tasks: make(map[string]*domain.ConsolidationTask)}
}

// CreateTask registers a new QUEUED task and returns its id.
func (t *Tracker) CreateTask() string {
	now := time.Now()
	task := &domain.ConsolidationTask{
		ID:        uuid.New().String(),
		Status:    domain.TaskStatusQueued,
		Message:   "Aguardando processamento",
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.tasks[task.ID] = task
	t.mu.Unlock()

	return task.ID
}

// MarkProcessing moves a QUEUED task to PROCESSING.
func (t *Tracker) MarkProcessing(id string) error {
	return t.update(id, func(task *domain.ConsolidationTask) {
		task.Status = domain.TaskStatusProcessing
		task.Message = "Processando pagamentos consolidados"
	})
}

// UpdateProgress records batch progress. Values are clamped to [0,100].
func (t *Tracker) UpdateProgress(id string, percentage int) error {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return t.update(id, func(task *domain.ConsolidationTask) {
		task.ProgressPercentage = percentage
	})
}

// MarkCompleted transitions the task to its COMPLETED terminal state.
func (t *Tracker) MarkCompleted(id string) error {
	return t.update(id, func(task *domain.ConsolidationTask) {
		task.Status = domain.TaskStatusCompleted
		task.ProgressPercentage = 100
		task.Message = "Processamento concluído"
	})
}

// MarkFailed transitions the task to FAILED, keeping the per-group errors
// collected during the run.
func (t *Tracker) MarkFailed(id string, message string, errs []string) error {
	return t.update(id, func(task *domain.ConsolidationTask) {
		task.Status = domain.TaskStatusFailed
		task.Message = message
		task.Errors = append([]string(nil), errs...)
	})
}

// GetStatus returns a snapshot copy of the task.
func (t *Tracker) GetStatus(id string) (domain.ConsolidationTask, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	task, ok := t.tasks[id]
	if !ok {
		return domain.ConsolidationTask{}, domain.ErrTaskNotFound
	}

	snapshot := *task
	snapshot.Errors = append([]string(nil), task.Errors...)
	return snapshot, nil
}

// update applies fn under the write lock. Transitions only move forward:
// once a task is terminal, further updates are rejected so a finished
// result is never corrupted.
func (t *Tracker) update(id string, fn func(*domain.ConsolidationTask)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		return domain.ErrTaskTerminal
	}

	fn(task)
	task.UpdatedAt = time.Now()
	return nil
}
