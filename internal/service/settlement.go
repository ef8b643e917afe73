package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// SettlementCapture records closed markets so the redemption engine can
// pick them up after the eligibility delay.
type SettlementCapture struct {
	store  domain.SettlementStore
	now    func() time.Time
	logger *slog.Logger
}

// NewSettlementCapture creates a SettlementCapture over store.
func NewSettlementCapture(store domain.SettlementStore, logger *slog.Logger) *SettlementCapture {
	return &SettlementCapture{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "settlement_capture")),
	}
}

// Capture stores {conditionID, now} under slug, replacing any earlier
// record for the same slug.
func (c *SettlementCapture) Capture(ctx context.Context, slug, conditionID string) (domain.SettlementRecord, error) {
	if slug == "" {
		return domain.SettlementRecord{}, fmt.Errorf("service/settlement: empty slug")
	}
	cond, err := domain.NormalizeConditionID(conditionID)
	if err != nil {
		return domain.SettlementRecord{}, fmt.Errorf("service/settlement: %s: %w", slug, err)
	}

	rec := domain.SettlementRecord{Slug: slug, ConditionID: cond, CapturedAt: c.now().UTC().Truncate(time.Second)}
	if err := c.store.Put(ctx, rec); err != nil {
		return domain.SettlementRecord{}, fmt.Errorf("service/settlement: put %s: %w", slug, err)
	}
	c.logger.InfoContext(ctx, "settlement captured",
		slog.String("slug", slug),
		slog.String("condition_id", cond),
		slog.Time("captured_at", rec.CapturedAt),
	)
	return rec, nil
}
