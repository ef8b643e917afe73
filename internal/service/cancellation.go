package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// OrderCanceler issues one bulk cancellation.
type OrderCanceler interface {
	CancelOrders(ctx context.Context, ids []string) (domain.CancelResult, error)
}

// CancellationService cancels every order the ledger knows about. The
// ledger itself is never modified.
type CancellationService struct {
	ledger domain.OrderLedger
	api    OrderCanceler
	sink   outcomeSink
	logger *slog.Logger
}

// NewCancellationService creates a CancellationService. audit may be nil.
func NewCancellationService(ledger domain.OrderLedger, api OrderCanceler, audit domain.AuditStore, logger *slog.Logger) *CancellationService {
	logger = logger.With(slog.String("component", "cancellation"))
	return &CancellationService{
		ledger: ledger,
		api:    api,
		sink:   outcomeSink{audit: audit, logger: logger},
		logger: logger,
	}
}

// CancelAll cancels every id in every market with a single API call. An
// empty ledger is a no-op.
func (s *CancellationService) CancelAll(ctx context.Context) (domain.CancelResult, error) {
	ids, err := s.ledger.LoadAll(ctx)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("service/cancel: load ledger: %w", err)
	}
	return s.cancel(ctx, "", ids)
}

// CancelMarket cancels every id recorded for one market.
func (s *CancellationService) CancelMarket(ctx context.Context, market string) (domain.CancelResult, error) {
	ids, err := s.ledger.Load(ctx, market)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("service/cancel: load ledger %s: %w", market, err)
	}
	return s.cancel(ctx, market, ids)
}

func (s *CancellationService) cancel(ctx context.Context, market string, ids []string) (domain.CancelResult, error) {
	ids = dedupIDs(ids)
	log := s.logger
	if market != "" {
		log = log.With(slog.String("market", market))
	}
	if len(ids) == 0 {
		log.InfoContext(ctx, "no order ids to cancel")
		return domain.CancelResult{}, nil
	}

	log.InfoContext(ctx, "cancelling orders", slog.Int("count", len(ids)))
	res, err := s.api.CancelOrders(ctx, ids)
	if err != nil {
		log.ErrorContext(ctx, "cancel request failed",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()),
		)
		return domain.CancelResult{}, fmt.Errorf("service/cancel: %w", err)
	}

	log.InfoContext(ctx, "cancel response",
		slog.Any("canceled", res.Canceled),
		slog.Any("not_canceled", res.NotCanceled),
	)
	s.sink.record(ctx, "cancellation_issued", map[string]any{
		"market":       market,
		"requested":    len(ids),
		"canceled":     len(res.Canceled),
		"not_canceled": res.NotCanceled,
	})
	return res, nil
}

// dedupIDs drops empty and repeated ids, keeping first-seen order.
func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
