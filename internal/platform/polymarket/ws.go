package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// defaultHeartbeat is the interval between text PING frames.
	defaultHeartbeat = 10 * time.Second

	pingFrame = "PING"
	pongFrame = "PONG"
)

// FillHandler receives every order-state event pushed on the user channel.
type FillHandler func(domain.FillEvent)

// UserChannel is one authenticated subscription to the CLOB user channel,
// e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/user". It does not
// reconnect: Run returns when the connection ends.
type UserChannel struct {
	wsURL     string
	creds     crypto.APICreds
	heartbeat time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewUserChannel creates a user-channel client. heartbeat <= 0 uses 10s.
func NewUserChannel(wsURL string, creds crypto.APICreds, heartbeat time.Duration, logger *slog.Logger) *UserChannel {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &UserChannel{
		wsURL:     wsURL,
		creds:     creds,
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "polymarket_user_ws")),
		now:       time.Now,
	}
}

// Run connects, subscribes and dispatches events to handle until ctx is
// cancelled (nil error) or the connection fails or is closed by the server
// (error wrapping domain.ErrWSDisconnect).
func (u *UserChannel) Run(ctx context.Context, handle FillHandler) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(msgType, data)
	}

	sub, err := json.Marshal(userSubscribe{
		Markets: []string{},
		Type:    "user",
		Auth: userWSAuth{
			APIKey:     u.creds.Key,
			Secret:     u.creds.Secret,
			Passphrase: u.creds.Passphrase,
		},
	})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	if err := write(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	u.logger.InfoContext(ctx, "subscribed to user channel")

	g, gctx := errgroup.WithContext(ctx)

	// Heartbeat. A missing PONG is not a failure; only write errors are.
	g.Go(func() error {
		ticker := time.NewTicker(u.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := write(websocket.TextMessage, []byte(pingFrame)); err != nil {
					return fmt.Errorf("polymarket/ws: %w: heartbeat: %v", domain.ErrWSDisconnect, err)
				}
			}
		}
	})

	// Closing the connection is the only way to unblock ReadMessage.
	g.Go(func() error {
		<-gctx.Done()
		writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		writeMu.Unlock()
		_ = conn.Close()
		return nil
	})

	g.Go(func() error {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("polymarket/ws: %w: %v", domain.ErrWSDisconnect, err)
			}
			u.dispatch(msg, handle)
		}
	})

	return g.Wait()
}

func (u *UserChannel) dispatch(msg []byte, handle FillHandler) {
	if len(msg) == 0 || string(msg) == pongFrame {
		return
	}
	events, err := decodeUserFrame(msg)
	if err != nil {
		u.logger.Debug("dropping undecodable frame",
			slog.String("error", err.Error()),
			slog.String("raw", truncate(string(msg), 256)),
		)
		return
	}
	now := u.now()
	for _, ev := range events {
		for _, fe := range ev.fillEvents(now) {
			if fe.OrderID != "" {
				handle(fe)
			}
		}
	}
}
