package api

import (
	"github.com/gorilla/mux"
)

// Register mounts the status API under /api on the shared router. The
// middleware chain applies only to these routes, not the websocket path.
func (h *Handler) Register(r *mux.Router) {
	sub := r.PathPrefix("/api").Subrouter()

	// Apply middleware
	sub.Use(CORSMiddleware)
	sub.Use(LoggingMiddleware)
	sub.Use(RecoveryMiddleware)

	sub.HandleFunc("/health", h.HandleHealth).Methods("GET", "OPTIONS")
	sub.HandleFunc("/rooms", h.HandleGetRooms).Methods("GET", "OPTIONS")
	sub.HandleFunc("/balances", h.HandleGetBalances).Methods("GET", "OPTIONS")
}
