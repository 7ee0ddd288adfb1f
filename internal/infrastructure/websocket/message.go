package websocket

import (
	"time"

	"github.com/synthloom/core/internal/domain"
)

// Command types (client -> server)
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// WSEvent is a domain.ExecutionEvent reshaped for the wire (spec §6:
// "rendering the stream is out of scope; only its emission shape is
// specified").
type WSEvent struct {
	Type        domain.EventType `json:"type"`
	Timestamp   time.Time        `json:"timestamp"`
	SessionID   string           `json:"session_id"`
	TaskID      string           `json:"task_id"`
	WorkerIndex int              `json:"worker_index,omitempty"`
	Iteration   int              `json:"iteration,omitempty"`
	Status      string           `json:"status,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// WSCommand represents a command sent from client to server
type WSCommand struct {
	Action string `json:"action"`
	TaskID string `json:"task_id,omitempty"`
}

// WSResponse represents a response to a client command
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewWSEventFromExecution reshapes a domain.ExecutionEvent for broadcast.
func NewWSEventFromExecution(ev domain.ExecutionEvent) *WSEvent {
	return &WSEvent{
		Type:        ev.Type,
		Timestamp:   ev.Timestamp,
		SessionID:   ev.SessionID,
		TaskID:      ev.TaskID,
		WorkerIndex: ev.WorkerIndex,
		Iteration:   ev.Iteration,
		Status:      ev.Status,
		Message:     ev.Message,
	}
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{
		Type:    responseType,
		Success: true,
		Message: message,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(responseType, errorMsg string) *WSResponse {
	return &WSResponse{
		Type:    responseType,
		Success: false,
		Error:   errorMsg,
	}
}
