package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synthloom/core/internal/domain"
)

func TestNewWSEventFromExecution(t *testing.T) {
	ev := domain.NewExecutionEvent(domain.EventTypeWorkerVerified, "sess-1", "task-123")
	ev.WorkerIndex = 2
	ev.Message = "all tests passed"

	wsEvent := NewWSEventFromExecution(ev)

	assert.Equal(t, domain.EventTypeWorkerVerified, wsEvent.Type)
	assert.Equal(t, "sess-1", wsEvent.SessionID)
	assert.Equal(t, "task-123", wsEvent.TaskID)
	assert.Equal(t, 2, wsEvent.WorkerIndex)
	assert.Equal(t, "all tests passed", wsEvent.Message)
	assert.Equal(t, ev.Timestamp, wsEvent.Timestamp)
}

func TestNewWSEventFromExecution_AllEventTypes(t *testing.T) {
	eventTypes := []domain.EventType{
		domain.EventTypeTaskStarted,
		domain.EventTypeTaskCompleted,
		domain.EventTypeTaskFailed,
		domain.EventTypeWaveStarted,
		domain.EventTypeWorkerStarted,
		domain.EventTypeWorkerVerified,
		domain.EventTypeWorkerFailed,
		domain.EventTypeWorkerSkipped,
		domain.EventTypeRefineIter,
		domain.EventTypeCuratorTick,
		domain.EventTypeHealthChanged,
	}

	for _, et := range eventTypes {
		t.Run(string(et), func(t *testing.T) {
			ev := domain.NewExecutionEvent(et, "sess", "task")
			wsEvent := NewWSEventFromExecution(ev)
			assert.Equal(t, et, wsEvent.Type)
		})
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(CmdSubscribe, "subscribed successfully")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.True(t, resp.Success)
	assert.Equal(t, "subscribed successfully", resp.Message)
	assert.Empty(t, resp.Error)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(CmdSubscribe, "invalid task_id")

	assert.Equal(t, CmdSubscribe, resp.Type)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Message)
	assert.Equal(t, "invalid task_id", resp.Error)
}

func TestWSEvent_JSONSerialization(t *testing.T) {
	ev := domain.NewExecutionEvent(domain.EventTypeRefineIter, "sess-1", "task-123")
	ev.Iteration = 2
	ev.Status = "scored"
	event := NewWSEventFromExecution(ev)

	data, err := json.Marshal(event)
	assert.NoError(t, err)

	var decoded WSEvent
	err = json.Unmarshal(data, &decoded)
	assert.NoError(t, err)

	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.TaskID, decoded.TaskID)
	assert.Equal(t, event.SessionID, decoded.SessionID)
	assert.Equal(t, event.Iteration, decoded.Iteration)
	assert.Equal(t, event.Status, decoded.Status)
}

func TestWSEvent_JSONOmitEmpty(t *testing.T) {
	ev := domain.NewExecutionEvent(domain.EventTypeTaskStarted, "", "task-123")
	event := NewWSEventFromExecution(ev)

	data, err := json.Marshal(event)
	assert.NoError(t, err)

	var m map[string]interface{}
	err = json.Unmarshal(data, &m)
	assert.NoError(t, err)

	assert.Contains(t, m, "type")
	assert.Contains(t, m, "task_id")
	assert.Contains(t, m, "timestamp")

	assert.NotContains(t, m, "worker_index")
	assert.NotContains(t, m, "iteration")
	assert.NotContains(t, m, "status")
	assert.NotContains(t, m, "message")
}

func TestWSCommand_JSONDeserialization(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected WSCommand
	}{
		{
			name:     "subscribe to task",
			json:     `{"action":"subscribe","task_id":"task-123"}`,
			expected: WSCommand{Action: CmdSubscribe, TaskID: "task-123"},
		},
		{
			name:     "subscribe to everything",
			json:     `{"action":"subscribe"}`,
			expected: WSCommand{Action: CmdSubscribe},
		},
		{
			name:     "unsubscribe from task",
			json:     `{"action":"unsubscribe","task_id":"task-123"}`,
			expected: WSCommand{Action: CmdUnsubscribe, TaskID: "task-123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd WSCommand
			err := json.Unmarshal([]byte(tt.json), &cmd)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestWSResponse_JSONSerialization(t *testing.T) {
	tests := []struct {
		name     string
		response *WSResponse
	}{
		{
			name:     "success response",
			response: NewSuccessResponse(CmdSubscribe, "subscribed"),
		},
		{
			name:     "error response",
			response: NewErrorResponse(CmdSubscribe, "invalid id"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response)
			assert.NoError(t, err)

			var decoded WSResponse
			err = json.Unmarshal(data, &decoded)
			assert.NoError(t, err)

			assert.Equal(t, tt.response.Type, decoded.Type)
			assert.Equal(t, tt.response.Success, decoded.Success)
			assert.Equal(t, tt.response.Message, decoded.Message)
			assert.Equal(t, tt.response.Error, decoded.Error)
		})
	}
}

func TestCommandTypeConstants(t *testing.T) {
	assert.Equal(t, "subscribe", CmdSubscribe)
	assert.Equal(t, "unsubscribe", CmdUnsubscribe)
}
