package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/infrastructure/storage"
	"github.com/synthloom/core/internal/infrastructure/websocket"

	"github.com/stretchr/testify/assert"
)

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)
	return NewServer(storage.NewMemoryStore(), hub, websocket.NewNoAuth(), logger)
}

func TestServer_Healthz_ReportsOKAndPeerCount(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["connected_peers"])
}

func TestServer_RecentEvents_ReturnsAppendedEvents(t *testing.T) {
	events := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(events, websocket.NewHub(logger), websocket.NewNoAuth(), logger)

	event := domain.NewExecutionEvent(domain.EventTypeTaskStarted, "sess-1", "task-1")
	assert.NoError(t, events.AppendEvent(context.Background(), event))

	req := httptest.NewRequest(http.MethodGet, "/events/recent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []domain.ExecutionEvent
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)
	assert.Equal(t, "task-1", got[0].TaskID)
}

func TestServer_TaskEvents_FiltersByTaskID(t *testing.T) {
	events := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(events, websocket.NewHub(logger), websocket.NewNoAuth(), logger)
	ctx := context.Background()

	assert.NoError(t, events.AppendEvent(ctx, domain.NewExecutionEvent(domain.EventTypeTaskStarted, "sess-1", "task-1")))
	assert.NoError(t, events.AppendEvent(ctx, domain.NewExecutionEvent(domain.EventTypeTaskStarted, "sess-2", "task-2")))

	req := httptest.NewRequest(http.MethodGet, "/events/task/task-1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var got []domain.ExecutionEvent
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)
	assert.Equal(t, "task-1", got[0].TaskID)
}

func TestServer_UnknownRoute_404s(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
