// Package board holds the client-side cache of visible tasks and resolves
// drag gestures into status transitions. It is single-writer: the UI event
// source serializes pointer gestures, so the board does no internal locking.
package board

import (
	"context"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Column identifiers used as drop targets, one per status.
const (
	ColumnToDo       = "todo"
	ColumnInProgress = "in-progress"
	ColumnReview     = "review"
	ColumnDone       = "done"
)

var columnStatus = map[string]domain.Status{
	ColumnToDo:       domain.StatusToDo,
	ColumnInProgress: domain.StatusInProgress,
	ColumnReview:     domain.StatusReview,
	ColumnDone:       domain.StatusDone,
}

// Columns lists the four fixed drop targets in board order.
var Columns = [4]string{ColumnToDo, ColumnInProgress, ColumnReview, ColumnDone}

// PersistFunc pushes a confirmed status transition to the backend.
type PersistFunc func(ctx context.Context, taskID string, status domain.Status) error

// Outcome reports the result of one persistence call. The board applies the
// optimistic change before the call completes and never rolls it back itself;
// a reconciliation layer can drain Outcomes and revert failed transitions.
type Outcome struct {
	TaskID string
	Status domain.Status
	Err    error
}

// Board is the optimistic cache plus the in-flight drag gesture.
type Board struct {
	tasks    map[string]*domain.Task
	order    []string
	dragging string
	persist  PersistFunc
	outcomes chan Outcome
	logger   *log.Logger
}

// New builds a board over the given task snapshot. persist may be nil when
// the board is used read-only.
func New(tasks []domain.Task, persist PersistFunc, logger *log.Logger) *Board {
	b := &Board{
		tasks:    make(map[string]*domain.Task, len(tasks)),
		order:    make([]string, 0, len(tasks)),
		persist:  persist,
		outcomes: make(chan Outcome, 64),
		logger:   logger,
	}
	for i := range tasks {
		t := tasks[i]
		if _, dup := b.tasks[t.ID]; dup {
			continue
		}
		b.tasks[t.ID] = &t
		b.order = append(b.order, t.ID)
	}
	return b
}

// Outcomes exposes persistence results for a future reconciliation layer.
func (b *Board) Outcomes() <-chan Outcome { return b.outcomes }

// Dragging returns the task currently being dragged, if any.
func (b *Board) Dragging() (string, bool) {
	return b.dragging, b.dragging != ""
}

// TasksIn returns the column's tasks in cache order.
func (b *Board) TasksIn(status domain.Status) []domain.Task {
	out := make([]domain.Task, 0, len(b.order))
	for _, id := range b.order {
		if t := b.tasks[id]; t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// DragStart enters the dragging state when the task exists in the cache.
// Unknown ids leave the board idle.
func (b *Board) DragStart(taskID string) bool {
	if _, ok := b.tasks[taskID]; !ok {
		return false
	}
	b.dragging = taskID
	return true
}

// DragEnd resolves the drop target to a status: a column id maps directly,
// another task's id infers that task's current column, anything else abandons
// the gesture. When the resolved status differs from the dragged task's, the
// cache is updated in place and the transition is persisted without waiting
// for the result. The board always returns to idle.
func (b *Board) DragEnd(dropTargetID string) {
	taskID := b.dragging
	b.dragging = ""
	if taskID == "" {
		return
	}
	task, ok := b.tasks[taskID]
	if !ok {
		return
	}

	newStatus, ok := b.resolveStatus(dropTargetID)
	if !ok || task.Status == newStatus {
		return
	}

	task.Status = newStatus
	if b.persist == nil {
		return
	}
	go func() {
		err := b.persist(context.Background(), taskID, newStatus)
		select {
		case b.outcomes <- Outcome{TaskID: taskID, Status: newStatus, Err: err}:
		default:
			if b.logger != nil {
				b.logger.WithFields(log.Fields{"task": taskID, "status": string(newStatus)}).
					Warn("dropping unobserved persistence outcome")
			}
		}
	}()
}

func (b *Board) resolveStatus(dropTargetID string) (domain.Status, bool) {
	if s, ok := columnStatus[dropTargetID]; ok {
		return s, true
	}
	if target, ok := b.tasks[dropTargetID]; ok {
		return target.Status, true
	}
	return "", false
}
