package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/api"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/config"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/game"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
)

// Server owns the listener. One port carries both the websocket gateway
// at /ws and the status API under /api.
type Server struct {
	cfg    *config.Config
	hub    *Hub
	match  *game.MatchMaker
	http   *http.Server
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg *config.Config, hub *Hub, match *game.MatchMaker, status *api.Handler) *Server {
	s := &Server{cfg: cfg, hub: hub, match: match}
	s.runCtx, s.cancel = context.WithCancel(context.Background())

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebSocket)
	status.Register(router)

	s.http = &http.Server{
		Addr:         cfg.GameAddr(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the combined gateway and API routing table.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the hub loop and serves the listener until Stop is called.
// Bind failures come back to the caller so startup can abort the process.
func (s *Server) Start() error {
	go s.hub.Run(s.runCtx)

	logrus.WithField("addr", s.cfg.GameAddr()).Info("Game server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("game server failed: %w", err)
	}
	return nil
}

// Stop drains the listener, settles and retires every room, then drops
// the remaining client sockets.
func (s *Server) Stop(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		logrus.Warnf("Listener shutdown: %v", err)
	}

	s.match.Shutdown()
	s.cancel()
	logrus.Info("Server stopped")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	client, err := newClient(s, w, r)
	if err != nil {
		logrus.Errorf("Failed to upgrade client: %v", err)
		return
	}

	s.hub.add(client)
	client.run()
}

func (s *Server) dropClient(c *Client) {
	s.hub.remove(c)
	s.match.Disconnect(c.session.ID)
}

// dispatch routes one parsed message. JoinRoom binds the session to a
// room; everything else goes to the room the session already sits in.
func (s *Server) dispatch(c *Client, msg *protocol.Message) {
	if msg.Type == protocol.TypeJoinRoom {
		s.handleJoinRoom(c, msg)
		return
	}

	room, ok := s.match.Route(c.session.ID)
	if !ok {
		c.sendError(protocol.ErrTextNotInRoom)
		return
	}
	room.Deliver(c.session.ID, msg)
}

func (s *Server) handleJoinRoom(c *Client, msg *protocol.Message) {
	var payload protocol.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.sendError(protocol.ErrTextBadPayload)
		return
	}
	if err := protocol.ValidateAddress(payload.Address); err != nil {
		c.sendError(protocol.ErrTextBadAddress)
		return
	}

	c.session.Address = payload.Address
	if _, err := s.match.Join(c.session); err != nil {
		if errors.Is(err, game.ErrAlreadyInRoom) {
			c.sendError(protocol.ErrTextAlreadyInRoom)
			return
		}
		c.log.Warnf("Join failed: %v", err)
		c.sendError(protocol.ErrTextJoinFailed)
	}
}
