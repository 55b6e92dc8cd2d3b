package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	qs := decodeFrame([]byte(`{"type":"trade","data":[{"s":"EURUSD","p":1.0856,"v":2,"t":1700000000000}]}`))
	require.Len(t, qs, 1)
	assert.Equal(t, "EURUSD", qs[0].Symbol)
	assert.InDelta(t, 1.0856, qs[0].Price, 1e-12)
	assert.Equal(t, int64(1700000000), qs[0].Time.Unix())

	assert.Empty(t, decodeFrame([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeFrame([]byte(`not json`)))
}

func TestStream_SubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg subscribeMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg.Symbol
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"EURUSD","p":1.085,"v":1,"t":1700000000000}]}`))
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New("secret", wsURL, []string{"EURUSD"}, 10*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	require.True(t, s.IsConnected())
	require.NoError(t, s.Subscribe(ctx))
	assert.Equal(t, "EURUSD", <-subscribed)

	quotes, _ := s.Read(ctx)
	select {
	case q := <-quotes:
		require.NotNil(t, q)
		assert.Equal(t, "EURUSD", q.Symbol)
		assert.InDelta(t, 1.085, q.Price, 1e-12)
	case <-ctx.Done():
		t.Fatal("no quote received")
	}

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}

func TestStream_SubscribeRequiresConnection(t *testing.T) {
	s := New("", "ws://127.0.0.1:1", []string{"EURUSD"}, 0, 0, nil)
	assert.Error(t, s.Subscribe(context.Background()))
}
