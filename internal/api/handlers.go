package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/game"
)

type Handler struct {
	match   *game.MatchMaker
	hub     Hub
	broker  Broker
	started time.Time
}

type Hub interface {
	ClientCount() int
}

type Broker interface {
	Ready() bool
	Balances() map[string]float64
}

func NewHandler(match *game.MatchMaker, hub Hub, broker Broker) *Handler {
	return &Handler{
		match:   match,
		hub:     hub,
		broker:  broker,
		started: time.Now(),
	}
}

// Health check endpoint
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":       "healthy",
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"rooms":        h.match.RoomCount(),
		"ws_clients":   h.hub.ClientCount(),
		"broker_ready": h.broker.Ready(),
	}
	WriteJSON(w, http.StatusOK, response)
}

// List live rooms with phase, occupancy and pot
func (h *Handler) HandleGetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.match.Rooms()
	response := map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	}
	WriteJSON(w, http.StatusOK, response)
}

// Snapshot of the server's off-chain asset balances
func (h *Handler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	if !h.broker.Ready() {
		WriteError(w, http.StatusServiceUnavailable, errors.New("broker offline"))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"balances": h.broker.Balances(),
	})
}
