package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
)

// Hub fans encoded frames out to connected clients. Rooms hand it frames
// through Broadcast; a single consumer loop delivers them, so frames
// queued by one room loop reach each client in the order they were sent.
type Hub struct {
	clients   map[string]*Client
	broadcast chan *protocol.BroadcastMessage
	mu        sync.RWMutex
	closed    bool
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan *protocol.BroadcastMessage, 256),
	}
}

// Run consumes the broadcast queue until ctx is cancelled, then drains
// whatever is still queued and closes every remaining client socket.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-h.broadcast:
					h.deliver(msg)
				default:
					h.closeAll()
					return
				}
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// add registers the client before its read loop starts, so frames
// addressed to the session cannot race the registration.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.session.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": c.session.ID,
		"total":      total,
	}).Info("Client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.session.ID]
	if ok && current == c {
		delete(h.clients, c.session.ID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		logrus.WithFields(logrus.Fields{
			"session_id": c.session.ID,
			"total":      total,
		}).Info("Client disconnected")
	}
}

func (h *Hub) deliver(msg *protocol.BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.IsGlobal() {
		for id, client := range h.clients {
			if err := client.Send(msg.Data); err != nil {
				logrus.Warnf("Client %s send buffer full, dropping message", id)
			}
		}
		return
	}

	for _, target := range msg.To {
		client, ok := h.clients[target]
		if !ok {
			continue
		}
		if err := client.Send(msg.Data); err != nil {
			logrus.Warnf("Client %s send buffer full, dropping message", target)
		}
	}
}

// Broadcast queues a frame for the named sessions, or for everyone when
// no targets are given. Drops the frame rather than stalling the caller.
func (h *Hub) Broadcast(data []byte, targets ...string) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.broadcast <- protocol.NewBroadcast(data, targets...):
	default:
		logrus.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
