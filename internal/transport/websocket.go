package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	WriteWait        = 10 * time.Second
	PongWait         = 60 * time.Second
	PingPeriod       = (PongWait * 9) / 10
	MaxMessageSize   = 512 * 1024
	HandshakeTimeout = 10 * time.Second

	// SendBuffer bounds the outbound queue; Send fails instead of blocking
	// when a consumer cannot keep up.
	SendBuffer = 256
)

var DefaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Conn wraps a websocket with buffered writes and ping/pong keepalive. The
// same wrapper serves accepted player sockets and the dialed broker socket;
// the read and write pumps each run on their own goroutine.
type Conn struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{
		conn: conn,
		send: make(chan []byte, SendBuffer),
	}
}

// Dial connects to a websocket endpoint and wraps the resulting socket.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewConn(conn), nil
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadLoop delivers inbound frames until the connection drops, then runs
// onClose. It owns the read side of the socket: the read limit, deadlines,
// and the pong handler that keeps a healthy link alive.
func (c *Conn) ReadLoop(onMessage func([]byte) error, onClose func()) {
	defer func() {
		c.conn.Close()
		if onClose != nil {
			onClose()
		}
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket read error: %v", err)
			}
			break
		}

		if onMessage != nil {
			if err := onMessage(message); err != nil {
				logrus.Errorf("Message handler error: %v", err)
			}
		}
	}
}

// WriteLoop drains the send queue and emits keepalive pings. Frames queued
// behind the first write are flushed into the same websocket message,
// newline separated, so readers must split on '\n'.
func (c *Conn) WriteLoop() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (c *Conn) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Close is safe to call more than once; pump teardown and owner shutdown
// may race to it.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SplitFrames cuts a websocket frame into the individual messages WriteLoop
// may have batched into it.
func SplitFrames(frame []byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i < len(frame); i++ {
		if frame[i] == '\n' {
			if i > start {
				out = append(out, frame[start:i])
			}
			start = i + 1
		}
	}
	if start < len(frame) {
		out = append(out, frame[start:])
	}
	return out
}
