package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/game"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/transport"
)

// Client ties one websocket to one player session. The binding lasts for
// the life of the socket; when the socket drops the session leaves its
// room and is never reused.
type Client struct {
	session *game.PlayerSession
	conn    *transport.Conn
	server  *Server
	log     *logrus.Entry
}

func newClient(server *Server, w http.ResponseWriter, r *http.Request) (*Client, error) {
	raw, err := transport.DefaultUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	session := game.NewSession(uuid.New().String(), "")
	return &Client{
		session: session,
		conn:    transport.NewConn(raw),
		server:  server,
		log: logrus.WithFields(logrus.Fields{
			"session_id": session.ID,
			"remote":     raw.RemoteAddr().String(),
		}),
	}, nil
}

func (c *Client) run() {
	go c.conn.WriteLoop()
	go c.conn.ReadLoop(c.handleFrame, c.disconnected)
}

// handleFrame parses one inbound frame. Frames that are not JSON at all
// are dropped without a reply; parseable messages go to the dispatcher.
func (c *Client) handleFrame(data []byte) error {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debugf("Dropping unparseable frame: %v", err)
		return nil
	}
	if err := protocol.ValidateMessage(&msg); err != nil {
		c.sendError(protocol.ErrTextUnknownType)
		return nil
	}

	c.log.WithFields(logrus.Fields{
		"type":    msg.Type,
		"payload": len(msg.Payload),
	}).Debug("Received message")

	c.server.dispatch(c, &msg)
	return nil
}

func (c *Client) disconnected() {
	c.server.dropClient(c)
}

// Send queues an encoded frame for the write loop. Fails instead of
// blocking when the client cannot keep up.
func (c *Client) Send(data []byte) error {
	return c.conn.Send(data)
}

func (c *Client) sendError(text string) {
	data, err := protocol.Encode(protocol.TypeError, protocol.ErrorPayload{Message: text})
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		c.log.Warnf("Dropping error reply: %v", err)
	}
}

func (c *Client) Close() {
	c.conn.Close()
}
