package domain

import "github.com/bytedance/sonic"

// Event types published to the task event queue for downstream consumers.
const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
)

// TaskEvent describes a committed task mutation. Delivery is best-effort and
// asynchronous; consumers must treat events as notifications, not as the
// source of truth.
type TaskEvent struct {
	ID        string                 `json:"id"`
	TaskID    string                 `json:"taskId"`
	TeamID    string                 `json:"teamId"`
	Type      string                 `json:"type"`
	Data      sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
