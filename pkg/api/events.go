package api

import "time"

// EventType identifies a task history event.
type EventType string

const (
	EventTaskQueued    EventType = "task.queued"
	EventTaskStarted   EventType = "task.started"
	EventTaskProcessed EventType = "task.processed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"
	EventTaskRemoved   EventType = "task.removed"
)

// TaskEvent is a minimal append-only history record for audit/debugging.
type TaskEvent struct {
	SchedulerID string
	TaskID      int
	At          time.Time
	Type        EventType

	Worker string

	// Small, human-oriented details (e.g. error string). Do not put
	// task payloads here.
	Detail string
}
