package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/notify"
)

// sweepLockKey names the lock that serialises redemption sweeps.
const sweepLockKey = "redemption-sweep"

// ConditionalTokens is the on-chain surface the redemption engine needs.
type ConditionalTokens interface {
	Holder() string
	OutcomeSlotCount(ctx context.Context, conditionID string) (int, error)
	PositionID(ctx context.Context, collateral, conditionID string, indexSet *big.Int) (*big.Int, error)
	BalanceOf(ctx context.Context, positionID *big.Int) (*big.Int, error)
	Redeem(ctx context.Context, collateral, conditionID string, indexSets []*big.Int) (string, error)
}

// RedemptionConfig controls eligibility and locking.
type RedemptionConfig struct {
	// Delay is how long after capture a record becomes eligible.
	Delay time.Duration
	// Collaterals are the collateral tokens positions are checked against.
	Collaterals []string
	LockTTL     time.Duration
	// RecordTimeout caps the chain work for one record so a stalled RPC
	// endpoint cannot hold up the rest of the sweep.
	RecordTimeout time.Duration
}

// SweepReport lists what happened to each eligible record.
type SweepReport struct {
	Pending  int
	Eligible int
	Outcomes []domain.RedemptionOutcome
	// Skipped is set when another sweep held the lock.
	Skipped bool
}

// Err joins the errors of failed outcomes.
func (r SweepReport) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Slug, o.Err))
		}
	}
	return errors.Join(errs...)
}

// RedemptionEngine redeems winning positions of captured markets.
type RedemptionEngine struct {
	store  domain.SettlementStore
	chain  ConditionalTokens
	locks  domain.LockManager
	cfg    RedemptionConfig
	sink   outcomeSink
	now    func() time.Time
	logger *slog.Logger
}

// NewRedemptionEngine creates a RedemptionEngine. audit and notifier may be nil.
func NewRedemptionEngine(
	store domain.SettlementStore,
	chain ConditionalTokens,
	locks domain.LockManager,
	cfg RedemptionConfig,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *RedemptionEngine {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	logger = logger.With(slog.String("component", "redemption"))
	return &RedemptionEngine{
		store:  store,
		chain:  chain,
		locks:  locks,
		cfg:    cfg,
		sink:   outcomeSink{audit: audit, notifier: notifier, logger: logger},
		now:    time.Now,
		logger: logger,
	}
}

// Eligible returns the records whose delay has fully elapsed at now. A
// record captured exactly Delay ago is eligible.
func (r *RedemptionEngine) Eligible(records []domain.SettlementRecord, now time.Time) []domain.SettlementRecord {
	out := make([]domain.SettlementRecord, 0, len(records))
	for _, rec := range records {
		if !now.Before(rec.EligibleAt(r.cfg.Delay)) {
			out = append(out, rec)
		}
	}
	return out
}

// Sweep redeems every eligible record under the sweep lock. Per-record
// failures are reported in the outcomes and leave the record for the next
// sweep; only lock and store listing errors are returned.
func (r *RedemptionEngine) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	unlock, err := r.locks.Acquire(ctx, sweepLockKey, r.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.InfoContext(ctx, "sweep already running elsewhere, skipping")
			report.Skipped = true
			return report, nil
		}
		return report, fmt.Errorf("service/redemption: lock: %w", err)
	}
	defer unlock()

	records, err := r.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("service/redemption: list records: %w", err)
	}
	eligible := r.Eligible(records, r.now())
	report.Pending, report.Eligible = len(records), len(eligible)
	r.logger.InfoContext(ctx, "redemption sweep",
		slog.Int("pending", len(records)),
		slog.Int("eligible", len(eligible)),
		slog.String("holder", r.chain.Holder()),
	)

	for _, rec := range eligible {
		if ctx.Err() != nil {
			break
		}
		recCtx, cancel := context.WithTimeout(ctx, r.cfg.RecordTimeout)
		report.Outcomes = append(report.Outcomes, r.redeemRecord(recCtx, rec)...)
		cancel()
	}
	return report, nil
}

// redeemRecord checks every outcome position of rec under each collateral
// and sends one redeem per collateral that holds a balance.
func (r *RedemptionEngine) redeemRecord(ctx context.Context, rec domain.SettlementRecord) []domain.RedemptionOutcome {
	log := r.logger.With(slog.String("slug", rec.Slug), slog.String("condition_id", rec.ConditionID))
	failed := func(err error) []domain.RedemptionOutcome {
		log.ErrorContext(ctx, "redemption failed", slog.String("error", err.Error()))
		return []domain.RedemptionOutcome{{
			Slug: rec.Slug, ConditionID: rec.ConditionID, State: domain.RedemptionFailed, Err: err,
		}}
	}

	cond, err := domain.NormalizeConditionID(rec.ConditionID)
	if err != nil {
		return failed(err)
	}
	slots, err := r.chain.OutcomeSlotCount(ctx, cond)
	if err != nil {
		return failed(err)
	}

	var outcomes []domain.RedemptionOutcome
	var errs []error
	for _, collateral := range r.cfg.Collaterals {
		positions, err := r.positions(ctx, collateral, cond, slots)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(positions) == 0 {
			continue
		}

		indexSet := new(big.Int)
		for _, p := range positions {
			indexSet.SetBit(indexSet, p.OutcomeIndex, 1)
		}
		txHash, err := r.chain.Redeem(ctx, collateral, cond, []*big.Int{indexSet})
		out := domain.RedemptionOutcome{
			Slug:        rec.Slug,
			ConditionID: cond,
			State:       domain.RedemptionRedeemed,
			IndexSet:    indexSet,
			Positions:   positions,
			TxHash:      txHash,
		}
		if err != nil {
			out.State, out.Err = domain.RedemptionFailed, err
			errs = append(errs, err)
			log.ErrorContext(ctx, "redeem transaction failed",
				slog.String("collateral", collateral),
				slog.String("index_set", indexSet.String()),
				slog.String("tx", txHash),
				slog.String("error", err.Error()),
			)
		}
		outcomes = append(outcomes, out)
	}

	if len(errs) > 0 {
		if len(outcomes) == 0 {
			return failed(errors.Join(errs...))
		}
		return outcomes
	}

	if err := r.store.Delete(ctx, rec.Slug); err != nil {
		log.ErrorContext(ctx, "settlement record delete failed", slog.String("error", err.Error()))
	}

	if len(outcomes) == 0 {
		log.InfoContext(ctx, "no redeemable balance, record removed")
		r.sink.record(ctx, "redemption_empty", map[string]any{"slug": rec.Slug, "condition_id": cond})
		return []domain.RedemptionOutcome{{Slug: rec.Slug, ConditionID: cond, State: domain.RedemptionNoBalance}}
	}

	for _, o := range outcomes {
		log.InfoContext(ctx, "positions redeemed",
			slog.String("index_set", o.IndexSet.String()),
			slog.Int("positions", len(o.Positions)),
			slog.String("tx", o.TxHash),
		)
		r.sink.record(ctx, "redemption_confirmed", map[string]any{
			"slug":         rec.Slug,
			"condition_id": cond,
			"index_set":    o.IndexSet.String(),
			"tx":           o.TxHash,
		})
		r.sink.notify(ctx, notify.EventRedeemed, "Positions redeemed", map[string]string{
			"market":    rec.Slug,
			"index_set": o.IndexSet.String(),
			"tx":        o.TxHash,
		})
	}
	return outcomes
}

// positions returns the outcome positions of cond under collateral that
// hold a non-zero balance.
func (r *RedemptionEngine) positions(ctx context.Context, collateral, cond string, slots int) ([]domain.RedeemablePosition, error) {
	var out []domain.RedeemablePosition
	for i := range slots {
		indexSet := new(big.Int).Lsh(big.NewInt(1), uint(i))
		posID, err := r.chain.PositionID(ctx, collateral, cond, indexSet)
		if err != nil {
			return nil, fmt.Errorf("position id outcome %d: %w", i, err)
		}
		bal, err := r.chain.BalanceOf(ctx, posID)
		if err != nil {
			return nil, fmt.Errorf("balance outcome %d: %w", i, err)
		}
		if bal.Sign() > 0 {
			out = append(out, domain.RedeemablePosition{
				Collateral:   collateral,
				ConditionID:  cond,
				OutcomeIndex: i,
				PositionID:   posID,
				Balance:      bal,
			})
		}
	}
	return out, nil
}
