package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newWAMPServer starts a WebSocket server that welcomes each client, echoes
// CALLs back as CALLRESULTs carrying the call arguments, and answers a PUBLISH
// with the matching EVENT.
func newWAMPServer(t *testing.T, received chan<- []any) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("accept failed: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`[0, "interop-session", 1, "coder/websocket"]`)); err != nil {
			return
		}

		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText {
				continue
			}

			var msg []any
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			received <- msg

			var reply []any
			switch msg[0] {
			case float64(2):
				reply = []any{3, msg[1], msg[3:]}
			case float64(7):
				reply = []any{8, msg[1], msg[2]}
			default:
				continue
			}

			out, _ := json.Marshal(reply)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestInteropWithWebSocketServer(t *testing.T) {
	received := make(chan []any, 16)
	srv := newWAMPServer(t, received)

	s, err := NewSession().
		WithURL(srv.URL).
		WithLogger(zaptest.NewLogger(t)).
		WithStrictHandshake(true).
		WithIOTimeout(5 * time.Second).
		Build()
	require.NoError(t, err)
	defer s.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := s.Connect(ctx, "/ws")
	require.NoError(t, err)
	assert.Equal(t, "interop-session", id)

	callID, err := s.Call(ctx, "http://example.com/arith#add", 1, 2)
	require.NoError(t, err)

	msg, err := s.ReadMessage(ctx)
	require.NoError(t, err)
	result, err := msg.CallResult()
	require.NoError(t, err)
	assert.Equal(t, callID, result.CallID)
	assert.Equal(t, []any{float64(1), float64(2)}, result.Result)

	require.NoError(t, s.Publish(ctx, "http://example.com/topic", map[string]any{"n": 7}))

	msg, err = s.ReadMessage(ctx)
	require.NoError(t, err)
	ev, err := msg.Event()
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/topic", ev.TopicURI)
	assert.Equal(t, map[string]any{"n": float64(7)}, ev.Payload)

	select {
	case call := <-received:
		assert.Equal(t, []any{float64(2), callID, "http://example.com/arith#add", float64(1), float64(2)}, call)
	case <-time.After(time.Second):
		t.Fatal("server did not record the CALL")
	}

	assert.True(t, s.Disconnect())
}
