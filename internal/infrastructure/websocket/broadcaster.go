package websocket

import (
	"context"

	"github.com/synthloom/core/internal/domain"
)

// BroadcastingEventStore decorates a domain.EventStore so every appended
// event is also fanned out to connected websocket clients, keyed by
// task ID (spec §6: the hub is a passive reader of the same event
// stream the persistence layer records).
type BroadcastingEventStore struct {
	domain.EventStore
	hub Broadcaster
}

// NewBroadcastingEventStore wraps inner, broadcasting through hub on
// every AppendEvent.
func NewBroadcastingEventStore(inner domain.EventStore, hub Broadcaster) *BroadcastingEventStore {
	return &BroadcastingEventStore{EventStore: inner, hub: hub}
}

// AppendEvent broadcasts ev before delegating to the wrapped store.
func (b *BroadcastingEventStore) AppendEvent(ctx context.Context, ev domain.ExecutionEvent) error {
	b.hub.Broadcast("", ev.TaskID, NewWSEventFromExecution(ev))
	return b.EventStore.AppendEvent(ctx, ev)
}
