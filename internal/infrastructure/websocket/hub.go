package websocket

import (
	"log/slog"
	"sync"
)

// Broadcaster broadcasts a reshaped event to subscribed clients. This
// interface enables a future Redis adapter for horizontal scaling
// without touching the call sites.
type Broadcaster interface {
	Broadcast(userID, taskID string, event *WSEvent)
}

// broadcastMsg represents a message to be broadcast to clients
type broadcastMsg struct {
	userID string
	taskID string
	event  *WSEvent
}

// Hub manages WebSocket connections and broadcasts the execution event
// stream to subscribed clients (spec §6's websocket hub collaborator).
// It implements the Broadcaster interface.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Channel for broadcasting events
	broadcast chan *broadcastMsg

	// Subscriptions indexes for fast lookup
	byUserID map[string]map[*Client]bool
	byTaskID map[string]map[*Client]bool

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byUserID:   make(map[string]map[*Client]bool),
		byTaskID:   make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main event loop.
// This should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if client.userID != "" {
		if h.byUserID[client.userID] == nil {
			h.byUserID[client.userID] = make(map[*Client]bool)
		}
		h.byUserID[client.userID][client] = true
	}

	h.logger.Debug("client registered",
		"client_id", client.id,
		"user_id", client.userID,
		"total_clients", len(h.clients))
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	if client.userID != "" {
		if clients, ok := h.byUserID[client.userID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byUserID, client.userID)
			}
		}
	}

	client.subs.mu.RLock()
	for taskID := range client.subs.tasks {
		if clients, ok := h.byTaskID[taskID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byTaskID, taskID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug("client unregistered",
		"client_id", client.id,
		"user_id", client.userID,
		"total_clients", len(h.clients))
}

// Broadcast sends an event to relevant clients.
// Implements the Broadcaster interface.
func (h *Hub) Broadcast(userID, taskID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{
		userID: userID,
		taskID: taskID,
		event:  event,
	}
}

// broadcastEvent sends an event to all matching clients
func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)

	if msg.userID != "" {
		if clients, ok := h.byUserID[msg.userID]; ok {
			for client := range clients {
				if client.shouldReceive(msg.taskID) {
					targets[client] = true
				}
			}
		}
	} else {
		// Clients with a specific subscription to this task
		if msg.taskID != "" {
			if clients, ok := h.byTaskID[msg.taskID]; ok {
				for client := range clients {
					targets[client] = true
				}
			}
		}
		// Clients subscribed to every task
		for client := range h.clients {
			if client.shouldReceive("") && len(client.subs.tasks) == 0 {
				targets[client] = true
			}
		}
	}

	for client := range targets {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn("client buffer full, dropping message",
				"client_id", client.id,
				"event_type", msg.event.Type)
		}
	}
}

// Subscribe adds a subscription for a client. An empty taskID changes
// nothing: a client with no task subscriptions already receives every
// task's events, and one with subscriptions keeps only those.
func (h *Hub) Subscribe(client *Client, taskID string) {
	if taskID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	client.subs.tasks[taskID] = true
	if h.byTaskID[taskID] == nil {
		h.byTaskID[taskID] = make(map[*Client]bool)
	}
	h.byTaskID[taskID][client] = true

	h.logger.Debug("client subscribed to task",
		"client_id", client.id,
		"task_id", taskID)
}

// Unsubscribe removes a subscription for a client
func (h *Hub) Unsubscribe(client *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.subs.mu.Lock()
	defer client.subs.mu.Unlock()

	delete(client.subs.tasks, taskID)
	if clients, ok := h.byTaskID[taskID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byTaskID, taskID)
		}
	}

	h.logger.Debug("client unsubscribed from task",
		"client_id", client.id,
		"task_id", taskID)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
