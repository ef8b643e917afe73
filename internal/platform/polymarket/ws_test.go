package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestUserChannel_DispatchesAndEndsOnServerClose(t *testing.T) {
	var sub userSubscribe
	pings := make(chan struct{}, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = json.Unmarshal(msg, &sub)

		// Wait for one heartbeat before pushing events.
		_, msg, err = conn.ReadMessage()
		if err != nil || string(msg) != "PING" {
			return
		}
		pings <- struct{}{}

		_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"event_type":"order","id":"0xa","status":"MATCHED"}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"trade","taker_order_id":"0xb","maker_orders":[{"order_id":"0xc"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	uc := NewUserChannel(wsURL(srv), testCreds, 20*time.Millisecond, slog.Default())

	err := uc.Run(t.Context(), func(ev domain.FillEvent) {
		mu.Lock()
		got = append(got, ev.OrderID)
		mu.Unlock()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWSDisconnect))

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
	assert.Equal(t, "user", sub.Type)
	assert.Equal(t, []string{}, sub.Markets)
	assert.Equal(t, "api-key", sub.Auth.APIKey)
	assert.Equal(t, "c2VjcmV0", sub.Auth.Secret)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, got)
}

func TestUserChannel_ContextCancelReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	uc := NewUserChannel(wsURL(srv), testCreds, 10*time.Millisecond, slog.Default())
	err := uc.Run(ctx, func(domain.FillEvent) {})
	assert.NoError(t, err)
}

func TestUserChannel_DialFailure(t *testing.T) {
	uc := NewUserChannel("ws://127.0.0.1:1/ws/user", testCreds, time.Second, slog.Default())
	err := uc.Run(t.Context(), func(domain.FillEvent) {})
	assert.Error(t, err)
}
