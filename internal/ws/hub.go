// Package ws streams scan-progress events to dashboard clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kmikeym/branch/internal/metrics"
)

// Hub channel buffer sizes.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
)

// Scan event types.
const (
	EventScanStarted  = "scan_started"
	EventRepoScanned  = "repo_scanned"
	EventScanFinished = "scan_finished"
	EventScanFailed   = "scan_failed"
)

// ScanEvent is one progress update for a running repository scan.
type ScanEvent struct {
	Type     string    `json:"type"` // "scan_started" | "repo_scanned" | "scan_finished" | "scan_failed"
	UserID   int64     `json:"user_id"`
	RepoName string    `json:"repo_name,omitempty"`
	Facts    int       `json:"facts,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// userBroadcast is sent through the broadcast channel to the Run goroutine.
type userBroadcast struct {
	userID int64
	msg    []byte
}

// Hub manages active WebSocket clients and broadcasts scan events.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan userBroadcast
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan userBroadcast, broadcastBuffer),
		done:       make(chan struct{}),
		log:        log,
	}
}

// maxClients caps concurrent dashboard connections.
const maxClients = 256

// Run starts the hub event loop. It should be run as a goroutine and
// exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.closeSend()
			}

			return

		case client := <-h.register:
			if len(h.clients) >= maxClients {
				h.log.Warn("websocket connection limit reached, dropping client")
				client.closeSend()

				continue
			}

			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Set(float64(len(h.clients)))

		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				client.closeSend()
			}

			h.count.Store(int64(len(h.clients)))
			metrics.WSConnections.Set(float64(len(h.clients)))

		case b := <-h.broadcast:
			for client := range h.clients {
				// Clients watch one user's scans; skip the rest.
				if client.UserID != b.userID {
					continue
				}

				select {
				case client.send <- b.msg:
				default:
					// Slow consumer: drop it rather than block the hub.
					delete(h.clients, client)
					client.closeSend()
				}
			}
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish broadcasts a scan event to clients watching the event's user.
// Best-effort: if the hub is saturated the event is dropped.
func (h *Hub) Publish(ev ScanEvent) {
	ev.Time = time.Now()

	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Warn("marshalling scan event")

		return
	}

	select {
	case h.broadcast <- userBroadcast{userID: ev.UserID, msg: msg}:
	default:
		h.log.WithField("type", ev.Type).Warn("scan event dropped, hub saturated")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int64 {
	return h.count.Load()
}
