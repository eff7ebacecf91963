// Package livefeed streams reports to WebSocket clients as they are
// delivered. Clients connect per subscriber and receive only that
// subscriber's reports; nothing is replayed on connect.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
)

const maxClientsPerSubscriber = 10

var (
	ErrTooManyClients = errors.New("too many live feed clients for subscriber")
	ErrClosed         = errors.New("live feed closed")
)

// Message is the JSON frame sent for each report.
type Message struct {
	SubscriberID string    `json:"subscriber_id"`
	Region       string    `json:"region"`
	Text         string    `json:"text"`
	SentAt       time.Time `json:"sent_at"`
}

// Hub implements domain.Deliverer by fanning reports out to the WebSocket
// clients of the report's subscriber.
type Hub struct {
	upgrader   websocket.Upgrader
	clock      clockwork.Clock
	metrics    *metrics.LiveFeedMetrics
	maxClients int

	mu      sync.Mutex
	clients map[domain.SubscriberID]map[*client]struct{}
	closed  bool
}

var _ domain.Deliverer = (*Hub)(nil)

func NewHub(checkOrigin func(r *http.Request) bool, clock clockwork.Clock, m *metrics.LiveFeedMetrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clock:      clock,
		metrics:    m,
		maxClients: maxClientsPerSubscriber,
		clients:    make(map[domain.SubscriberID]map[*client]struct{}),
	}
}

// Serve upgrades the request and streams id's reports until the client
// disconnects or the hub closes. Errors are returned only before the
// upgrade; afterwards the connection itself carries the outcome.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id domain.SubscriberID) error {
	h.mu.Lock()
	closed, full := h.closed, len(h.clients[id]) >= h.maxClients
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if full {
		return ErrTooManyClients
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		slog.WarnContext(r.Context(), "Live feed upgrade failed", "subscriber", id, "error", err)
		return nil
	}

	c := newClient(conn, h.clock, h.metrics)
	if err := h.add(id, c); err != nil {
		c.stop(websocket.CloseTryAgainLater, err.Error())
		return nil
	}
	slog.DebugContext(r.Context(), "Live feed client connected", "subscriber", id)

	c.readUntilClosed()

	h.remove(id, c)
	c.stop(websocket.CloseNormalClosure, "")
	slog.DebugContext(r.Context(), "Live feed client disconnected", "subscriber", id)
	return nil
}

func (h *Hub) Deliver(ctx context.Context, r domain.Report) error {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients[r.SubscriberID]))
	for c := range h.clients[r.SubscriberID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{
		SubscriberID: string(r.SubscriberID),
		Region:       r.Region,
		Text:         r.Text,
		SentAt:       h.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal live feed message: %w", err)
	}

	for _, c := range targets {
		if !c.enqueue(payload) {
			h.metrics.MessagesDropped.Inc()
			slog.WarnContext(ctx, "Live feed client too slow, report dropped", "subscriber", r.SubscriberID, "region", r.Region)
		}
	}
	return nil
}

// Clients returns the number of connected clients for id.
func (h *Hub) Clients(id domain.SubscriberID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[id])
}

// Close disconnects every client with a going-away frame and rejects new
// connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.stop(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) add(id domain.SubscriberID, c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	set := h.clients[id]
	if set == nil {
		set = make(map[*client]struct{})
		h.clients[id] = set
	}
	set[c] = struct{}{}
	h.metrics.Clients.Inc()
	return nil
}

func (h *Hub) remove(id domain.SubscriberID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[id]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, id)
	}
	h.metrics.Clients.Dec()
}
