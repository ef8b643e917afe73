package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/executor"
	"github.com/alanyoungcy/polyladder/internal/ladder"
	"github.com/alanyoungcy/polyladder/internal/notify"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
)

// MarketSource discovers and resolves market windows.
type MarketSource interface {
	DiscoverSlugs(ctx context.Context, f polymarket.DiscoveryFilter) ([]string, error)
	MarketBySlug(ctx context.Context, slug string) (domain.MarketWindow, error)
}

// LadderExecutor submits a market's ladder.
type LadderExecutor interface {
	Execute(ctx context.Context, market domain.MarketWindow, intents []domain.OrderIntent) (executor.Report, error)
}

// SchedulerConfig sets the cadence of each job. A zero interval disables
// that job.
type SchedulerConfig struct {
	Tick             time.Duration
	CycleInterval    time.Duration
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	// WindowLength is added to a window's start to get its close time.
	WindowLength   time.Duration
	RequestTimeout time.Duration
	Discovery      polymarket.DiscoveryFilter
	Policy         ladder.Policy
}

// CycleReport summarises one discovery and ladder cycle.
type CycleReport struct {
	Discovered int
	Skipped    int
	Laddered   int
	Failed     int
}

type pendingClosure struct {
	conditionID string
	closesAt    time.Time
}

// Scheduler drives discovery, laddering, closure capture, redemption and
// snapshots from a single goroutine.
type Scheduler struct {
	markets    MarketSource
	exec       LadderExecutor
	ledger     domain.OrderLedger
	capture    *SettlementCapture
	redemption *RedemptionEngine
	snapshots  *Snapshotter
	notifier   *notify.Notifier
	cfg        SchedulerConfig
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingClosure

	firstCycle     chan struct{}
	firstCycleOnce sync.Once
}

// NewScheduler creates a Scheduler. redemption, snapshots and notifier may
// be nil.
func NewScheduler(
	markets MarketSource,
	exec LadderExecutor,
	ledger domain.OrderLedger,
	capture *SettlementCapture,
	redemption *RedemptionEngine,
	snapshots *Snapshotter,
	notifier *notify.Notifier,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	return &Scheduler{
		markets:    markets,
		exec:       exec,
		ledger:     ledger,
		capture:    capture,
		redemption: redemption,
		snapshots:  snapshots,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "scheduler")),
		pending:    make(map[string]pendingClosure),
		firstCycle: make(chan struct{}),
	}
}

// FirstCycleDone is closed once Run has finished its first ladder cycle,
// successful or not, or has returned.
func (s *Scheduler) FirstCycleDone() <-chan struct{} {
	return s.firstCycle
}

func (s *Scheduler) markFirstCycle() {
	s.firstCycleOnce.Do(func() { close(s.firstCycle) })
}

// Pending returns the number of laddered windows awaiting closure capture.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run executes the first cycle immediately and then ticks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("tick", s.cfg.Tick),
		slog.Duration("cycle_interval", s.cfg.CycleInterval),
		slog.Duration("sweep_interval", s.cfg.SweepInterval),
	)
	defer s.logger.Info("scheduler stopped")
	defer s.markFirstCycle()

	start := s.now()
	nextCycle, nextSweep, nextSnapshot := start, start, start.Add(s.cfg.SnapshotInterval)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		now := s.now()
		s.CaptureDue(ctx, now)

		if s.cfg.CycleInterval > 0 && !now.Before(nextCycle) && ctx.Err() == nil {
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "ladder cycle failed", slog.String("error", err.Error()))
			}
			nextCycle = now.Add(s.cfg.CycleInterval)
		}
		s.markFirstCycle()
		if s.redemption != nil && s.cfg.SweepInterval > 0 && !now.Before(nextSweep) && ctx.Err() == nil {
			if _, err := s.redemption.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "redemption sweep failed", slog.String("error", err.Error()))
			}
			nextSweep = now.Add(s.cfg.SweepInterval)
		}
		if s.snapshots != nil && s.cfg.SnapshotInterval > 0 && !now.Before(nextSnapshot) && ctx.Err() == nil {
			if _, err := s.snapshots.Take(ctx); err != nil {
				s.logger.WarnContext(ctx, "snapshot failed", slog.String("error", err.Error()))
			}
			nextSnapshot = now.Add(s.cfg.SnapshotInterval)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle discovers markets and ladders every complete window that has no
// ledger entries yet.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	dctx, cancel := s.callCtx(ctx)
	slugs, err := s.markets.DiscoverSlugs(dctx, s.cfg.Discovery)
	cancel()
	if err != nil {
		return report, fmt.Errorf("service/scheduler: discover: %w", err)
	}
	report.Discovered = len(slugs)
	s.logger.InfoContext(ctx, "markets discovered", slog.Int("count", len(slugs)))

	for _, slug := range slugs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch err := s.ladderMarket(ctx, slug); {
		case errors.Is(err, errSkipMarket):
			report.Skipped++
		case err != nil:
			report.Failed++
			s.logger.ErrorContext(ctx, "ladder failed", slog.String("market", slug), slog.String("error", err.Error()))
		default:
			report.Laddered++
		}
	}

	if c, ok := s.exec.(interface{ CleanupDedup() }); ok {
		c.CleanupDedup()
	}
	s.logger.InfoContext(ctx, "ladder cycle done",
		slog.Int("discovered", report.Discovered),
		slog.Int("laddered", report.Laddered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

var errSkipMarket = errors.New("skip market")

func (s *Scheduler) ladderMarket(ctx context.Context, slug string) error {
	log := s.logger.With(slog.String("market", slug))

	existing, err := s.ledger.Load(ctx, slug)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if len(existing) > 0 {
		log.DebugContext(ctx, "already laddered", slog.Int("orders", len(existing)))
		return errSkipMarket
	}

	mctx, cancel := s.callCtx(ctx)
	window, err := s.markets.MarketBySlug(mctx, slug)
	cancel()
	if errors.Is(err, domain.ErrIncompleteMarket) || errors.Is(err, domain.ErrNotFound) {
		log.WarnContext(ctx, "market skipped", slog.String("reason", err.Error()))
		return errSkipMarket
	}
	if err != nil {
		return err
	}

	intents := ladder.Generate(s.cfg.Policy, window.StartTime)
	log.InfoContext(ctx, "placing ladder",
		slog.Time("start_time", window.StartTime),
		slog.Int("intents", len(intents)),
	)
	report, err := s.exec.Execute(ctx, window, intents)
	if errors.Is(err, executor.ErrRecentlyLaddered) {
		return errSkipMarket
	}
	if len(report.IDs) > 0 {
		s.track(window)
		if nerr := s.notifier.Notify(ctx, notify.EventLadderPlaced, "Ladder placed", map[string]string{
			"market":   slug,
			"orders":   fmt.Sprint(len(report.IDs)),
			"failures": fmt.Sprint(report.Failures()),
		}); nerr != nil {
			log.WarnContext(ctx, "notification failed", slog.String("error", nerr.Error()))
		}
	}
	if report.LedgerErr != nil {
		if nerr := s.notifier.Notify(ctx, notify.EventLedgerError, "Ledger write failed", map[string]string{
			"market": slug,
			"error":  report.LedgerErr.Error(),
		}); nerr != nil {
			log.WarnContext(ctx, "notification failed", slog.String("error", nerr.Error()))
		}
	}
	return err
}

func (s *Scheduler) track(w domain.MarketWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[w.Slug] = pendingClosure{conditionID: w.ConditionID, closesAt: w.StartTime.Add(s.cfg.WindowLength)}
}

// CaptureDue records a settlement for every tracked window closed by now.
// Failed captures are retried on the next call.
func (s *Scheduler) CaptureDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make(map[string]pendingClosure)
	for slug, p := range s.pending {
		if !now.Before(p.closesAt) {
			due[slug] = p
		}
	}
	s.mu.Unlock()

	for slug, p := range due {
		if _, err := s.capture.Capture(ctx, slug, p.conditionID); err != nil {
			s.logger.ErrorContext(ctx, "settlement capture failed", slog.String("market", slug), slog.String("error", err.Error()))
			if !errors.Is(err, domain.ErrInvalidCondition) {
				continue
			}
		}
		s.mu.Lock()
		delete(s.pending, slug)
		s.mu.Unlock()
	}
}

func (s *Scheduler) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}
