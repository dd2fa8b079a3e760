package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipe upgrades one websocket and hands back both ends: the wrapped server
// side and the raw client side.
func pipe(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := DefaultUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		accepted <- NewConn(raw)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("no upgraded connection")
		return nil, nil
	}
}

func TestQueuedFramesBatchIntoOneMessage(t *testing.T) {
	server, client := pipe(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, server.Send([]byte(fmt.Sprintf("frame-%d", i))))
	}
	go server.WriteLoop()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	frames := SplitFrames(data)
	require.Len(t, frames, 5)
	for i, frame := range frames {
		assert.Equal(t, fmt.Sprintf("frame-%d", i), string(frame))
	}
}

func TestSendFailsWhenBufferFull(t *testing.T) {
	server, _ := pipe(t)

	// No write loop draining, so the queue fills to capacity.
	for i := 0; i < SendBuffer; i++ {
		require.NoError(t, server.Send([]byte("x")))
	}

	err := server.Send([]byte("overflow"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send buffer full")
}

func TestSendJSONRoundTrip(t *testing.T) {
	server, client := pipe(t)
	go server.WriteLoop()

	require.NoError(t, server.SendJSON(map[string]interface{}{"op": "sync", "seq": 9}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var decoded struct {
		Op  string `json:"op"`
		Seq int    `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "sync", decoded.Op)
	assert.Equal(t, 9, decoded.Seq)
}

func TestReadLoopRunsOnCloseWhenPeerDrops(t *testing.T) {
	server, client := pipe(t)

	received := make(chan []byte, 4)
	closed := make(chan struct{})
	go server.ReadLoop(func(data []byte) error {
		received <- append([]byte(nil), data...)
		return nil
	}, func() { close(closed) })

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the handler")
	}

	require.NoError(t, client.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("onClose never ran")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, _ := pipe(t)

	require.NotPanics(t, func() {
		server.Close()
		server.Close()
	})
}

func TestDialRejectsUnreachableEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial")
}

func TestSplitFrames(t *testing.T) {
	assert.Empty(t, SplitFrames(nil))
	assert.Empty(t, SplitFrames([]byte("\n\n")))

	single := SplitFrames([]byte(`{"a":1}`))
	require.Len(t, single, 1)
	assert.Equal(t, `{"a":1}`, string(single[0]))

	multi := SplitFrames([]byte("one\ntwo\nthree"))
	require.Len(t, multi, 3)
	assert.Equal(t, "two", string(multi[1]))

	trailing := SplitFrames([]byte("one\n"))
	require.Len(t, trailing, 1)
}
