// Package executor turns a market's ladder intents into signed batch
// submissions and records every accepted order id in the ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// ErrRecentlyLaddered is returned when the same market was laddered within
// the dedup TTL.
var ErrRecentlyLaddered = errors.New("market laddered recently")

// OrderAPI is the exchange surface the executor needs.
type OrderAPI interface {
	CreateSignedOrder(intent domain.OrderIntent, tokenID string, negRisk bool) (domain.SignedOrder, error)
	PostOrders(ctx context.Context, orders []domain.SignedOrder) (domain.BatchResponse, error)
}

// Config controls batching and pacing.
type Config struct {
	BatchSize        int
	BatchesPerSecond float64
	RequestTimeout   time.Duration
	DedupTTL         time.Duration
}

// BatchResult is the outcome of one submitted batch.
type BatchResult struct {
	Index    int
	Size     int
	Response domain.BatchResponse
}

// Report summarises one Execute call.
type Report struct {
	Market  string
	Batches []BatchResult
	// IDs lists every accepted order id in submission order.
	IDs []string
	// Added is how many ids were new to the ledger.
	Added int
	// LedgerErr is set when accepted ids could not be persisted.
	LedgerErr error
}

// Failures counts rejected or unbuildable orders across all batches.
func (r Report) Failures() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Response.Failures)
		if b.Response.Status == domain.BatchError {
			n += b.Size
		}
	}
	return n
}

// Executor submits ladders batch by batch.
type Executor struct {
	api     OrderAPI
	ledger  domain.OrderLedger
	counter domain.OrderCounter
	audit   domain.AuditStore
	limiter *rate.Limiter
	dedup   *Dedup
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor. counter may be nil.
func New(api OrderAPI, ledger domain.OrderLedger, counter domain.OrderCounter, cfg Config, logger *slog.Logger) (*Executor, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("executor: batch size must be positive, got %d", cfg.BatchSize)
	}
	limit := rate.Inf
	if cfg.BatchesPerSecond > 0 {
		limit = rate.Limit(cfg.BatchesPerSecond)
	}
	return &Executor{
		api:     api,
		ledger:  ledger,
		counter: counter,
		limiter: rate.NewLimiter(limit, 1),
		dedup:   NewDedup(cfg.DedupTTL),
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}, nil
}

// SetAudit enables audit logging of batch outcomes.
func (e *Executor) SetAudit(a domain.AuditStore) {
	e.audit = a
}

// CleanupDedup drops expired dedup entries.
func (e *Executor) CleanupDedup() {
	e.dedup.Cleanup()
}

// Execute partitions intents, builds and signs each batch, and submits the
// batches in order. A failed batch never stops later ones. Accepted ids are
// appended to the ledger after each batch; a ledger failure is recorded in
// Report.LedgerErr and also returned.
func (e *Executor) Execute(ctx context.Context, market domain.MarketWindow, intents []domain.OrderIntent) (Report, error) {
	report := Report{Market: market.Slug}
	if len(intents) == 0 {
		return report, nil
	}
	if !e.dedup.Claim(market.Slug) {
		return report, fmt.Errorf("executor: %s: %w", market.Slug, ErrRecentlyLaddered)
	}

	log := e.logger.With(slog.String("market", market.Slug))
	var ledgerErrs []error

	for i, batch := range Partition(intents, e.cfg.BatchSize) {
		if err := e.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("executor: %s: batch %d: %w", market.Slug, i, err)
		}

		resp := e.submit(ctx, market, batch)
		report.Batches = append(report.Batches, BatchResult{Index: i, Size: len(batch), Response: resp})
		e.logBatch(ctx, log, market.Slug, i, batch, resp)

		if len(resp.IDs) == 0 {
			continue
		}
		report.IDs = append(report.IDs, resp.IDs...)

		added, err := e.ledger.Append(ctx, market.Slug, resp.IDs)
		if err != nil {
			log.ErrorContext(ctx, "ledger append failed",
				slog.Int("batch", i),
				slog.Any("order_ids", resp.IDs),
				slog.String("error", err.Error()),
			)
			ledgerErrs = append(ledgerErrs, err)
		}
		report.Added += added

		if e.counter != nil {
			if total, err := e.counter.Add(len(resp.IDs)); err != nil {
				log.WarnContext(ctx, "order counter update failed", slog.String("error", err.Error()))
			} else {
				log.DebugContext(ctx, "order counter updated", slog.Int64("total_orders", total))
			}
		}
	}

	if len(ledgerErrs) > 0 {
		report.LedgerErr = errors.Join(ledgerErrs...)
		return report, fmt.Errorf("executor: %s: ledger: %w", market.Slug, report.LedgerErr)
	}
	return report, nil
}

// submit builds every order in batch and posts the ones that signed. Build
// failures are reported as per-order failures at their batch index.
func (e *Executor) submit(ctx context.Context, market domain.MarketWindow, batch []domain.OrderIntent) domain.BatchResponse {
	signed := make([]domain.SignedOrder, 0, len(batch))
	positions := make([]int, 0, len(batch))
	var local []domain.OrderFailure

	for i, intent := range batch {
		tokenID, ok := market.TokenID(intent.OutcomeIndex)
		if !ok {
			local = append(local, domain.OrderFailure{
				Index:  i,
				Reason: fmt.Sprintf("no token for outcome %d", intent.OutcomeIndex),
			})
			continue
		}
		order, err := e.api.CreateSignedOrder(intent, tokenID, market.NegRisk)
		if err != nil {
			local = append(local, domain.OrderFailure{Index: i, Reason: err.Error()})
			continue
		}
		signed = append(signed, order)
		positions = append(positions, i)
	}

	if len(signed) == 0 {
		return domain.NewBatchResponse(nil, local)
	}

	callCtx := ctx
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := e.api.PostOrders(callCtx, signed)
	if err != nil {
		return domain.BatchErrorResponse(err.Error())
	}
	if resp.Status == domain.BatchError {
		return resp
	}

	// Exchange failure indices refer to the submitted slice.
	failures := append([]domain.OrderFailure(nil), local...)
	for _, f := range resp.Failures {
		if f.Index >= 0 && f.Index < len(positions) {
			f.Index = positions[f.Index]
		}
		failures = append(failures, f)
	}
	return domain.NewBatchResponse(resp.IDs, failures)
}

func (e *Executor) logBatch(ctx context.Context, log *slog.Logger, market string, index int, batch []domain.OrderIntent, resp domain.BatchResponse) {
	attrs := []any{
		slog.Int("batch", index),
		slog.Int("size", len(batch)),
		slog.String("status", string(resp.Status)),
		slog.Any("order_ids", resp.IDs),
	}
	switch resp.Status {
	case domain.BatchSuccess:
		log.InfoContext(ctx, "batch posted", attrs...)
	case domain.BatchPartialFailure:
		log.WarnContext(ctx, "batch partially rejected", attrs...)
		for _, f := range resp.Failures {
			log.WarnContext(ctx, "order rejected",
				slog.Int("batch", index),
				slog.Int("index", f.Index),
				slog.String("reason", f.Reason),
			)
		}
	default:
		log.ErrorContext(ctx, "batch failed", append(attrs, slog.String("reason", resp.Reason))...)
	}

	if e.audit != nil {
		detail := map[string]any{
			"market":    market,
			"batch":     index,
			"size":      len(batch),
			"status":    string(resp.Status),
			"order_ids": resp.IDs,
			"failures":  len(resp.Failures),
		}
		if resp.Reason != "" {
			detail["reason"] = resp.Reason
		}
		if err := e.audit.Log(ctx, "batch_posted", detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}
