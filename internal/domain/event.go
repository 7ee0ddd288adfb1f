package domain

import "time"

// EventType is the closed set of execution events the core emits for
// supervisory readers (a websocket hub, a REST status poller, a logger
// observer). Rendering anything on top of this stream is out of scope;
// only the emission shape is specified here.
type EventType string

const (
	EventTypeTaskStarted    EventType = "task.started"
	EventTypeTaskCompleted  EventType = "task.completed"
	EventTypeTaskFailed     EventType = "task.failed"
	EventTypeWaveStarted    EventType = "wave.started"
	EventTypeWorkerStarted  EventType = "worker.started"
	EventTypeWorkerVerified EventType = "worker.verified"
	EventTypeWorkerFailed   EventType = "worker.failed"
	EventTypeWorkerSkipped  EventType = "worker.skipped"
	EventTypeRefineIter     EventType = "refine.iteration"
	EventTypeCuratorTick    EventType = "curator.tick"
	EventTypeHealthChanged  EventType = "health.changed"
)

// ExecutionEvent is a single, immutable occurrence broadcast during a
// task's run through the pipeline.
type ExecutionEvent struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	TaskID      string    `json:"task_id"`
	Timestamp   time.Time `json:"timestamp"`
	WorkerIndex int       `json:"worker_index,omitempty"`
	Iteration   int       `json:"iteration,omitempty"`
	Status      string    `json:"status,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// NewExecutionEvent stamps an event with the current time.
func NewExecutionEvent(t EventType, sessionID, taskID string) ExecutionEvent {
	return ExecutionEvent{
		Type:      t,
		SessionID: sessionID,
		TaskID:    taskID,
		Timestamp: time.Now(),
	}
}
