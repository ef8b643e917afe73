package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/notify"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
)

// UserStream is one authenticated user-channel subscription.
type UserStream interface {
	Run(ctx context.Context, handle polymarket.FillHandler) error
}

// FillListener reports order-state events for orders in the ledger. The
// tracked set is loaded once when Run starts.
type FillListener struct {
	ledger domain.OrderLedger
	stream UserStream
	sink   outcomeSink
	logger *slog.Logger

	reported atomic.Int64
}

// NewFillListener creates a FillListener. audit and notifier may be nil.
func NewFillListener(ledger domain.OrderLedger, stream UserStream, audit domain.AuditStore, notifier *notify.Notifier, logger *slog.Logger) *FillListener {
	logger = logger.With(slog.String("component", "fill_listener"))
	return &FillListener{
		ledger: ledger,
		stream: stream,
		sink:   outcomeSink{audit: audit, notifier: notifier, logger: logger},
		logger: logger,
	}
}

// Reported returns how many tracked events have been reported.
func (l *FillListener) Reported() int64 {
	return l.reported.Load()
}

// Run loads the tracked ids and listens until ctx ends (nil) or the stream
// fails. It does not reconnect.
func (l *FillListener) Run(ctx context.Context) error {
	ids, err := l.ledger.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("service/fills: load ledger: %w", err)
	}
	tracked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		tracked[id] = struct{}{}
	}
	l.logger.InfoContext(ctx, "fill listener started", slog.Int("tracked", len(tracked)))

	err = l.stream.Run(ctx, func(ev domain.FillEvent) {
		if _, ok := tracked[ev.OrderID]; ok {
			l.report(ctx, ev)
		}
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "fill listener stopped", slog.String("error", err.Error()))
		l.sink.notify(context.WithoutCancel(ctx), notify.EventListenerDown, "Fill listener stopped",
			map[string]string{"error": err.Error()})
		return fmt.Errorf("service/fills: %w", err)
	}
	l.logger.InfoContext(ctx, "fill listener stopped")
	return nil
}

func (l *FillListener) report(ctx context.Context, ev domain.FillEvent) {
	l.reported.Add(1)
	l.logger.InfoContext(ctx, "tracked order event",
		slog.String("order_id", ev.OrderID),
		slog.String("event_type", ev.EventType),
		slog.String("status", ev.Status),
		slog.String("market", ev.Market),
		slog.String("asset_id", ev.AssetID),
		slog.String("side", ev.Side),
		slog.String("price", ev.Price),
		slog.String("size_matched", ev.SizeMatched),
	)

	// The read loop is blocked while we report; bound it.
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	l.sink.record(rctx, "order_fill", map[string]any{
		"order_id":     ev.OrderID,
		"event_type":   ev.EventType,
		"status":       ev.Status,
		"market":       ev.Market,
		"price":        ev.Price,
		"size_matched": ev.SizeMatched,
	})
	l.sink.notify(rctx, notify.EventOrderFilled, "Order event", map[string]string{
		"order":  ev.OrderID,
		"type":   ev.EventType,
		"status": ev.Status,
		"price":  ev.Price,
		"size":   ev.SizeMatched,
	})
}
