package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw, time.Second, 2*time.Second)
		defer conn.Close()

		var msg RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Action == ActionPing {
			conn.WriteTyped(PongResponse{Event: EventPong})
		} else {
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RequestPayload{Action: ActionPing}))

	var pong PongResponse
	require.NoError(t, client.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)
}

func TestConnWriteErrorSendsTypedEvent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw, time.Second, 2*time.Second)
		defer conn.Close()
		conn.WriteError("invalid q_id format")
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	var resp ErrorResponse
	require.NoError(t, client.ReadJSON(&resp))
	assert.Equal(t, EventError, resp.Event)
	assert.Equal(t, "invalid q_id format", resp.Error)
}

func TestConnReadDeadlineActsAsIdleTimeout(t *testing.T) {
	readErrs := make(chan error, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw, time.Second, 50*time.Millisecond)
		defer conn.Close()

		var msg RequestPayload
		readErrs <- conn.ReadJSON(&msg)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	// The client stays silent past the deadline.
	select {
	case err := <-readErrs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not time out")
	}
}
