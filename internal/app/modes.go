package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/executor"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
	"github.com/alanyoungcy/polyladder/internal/server"
	"github.com/alanyoungcy/polyladder/internal/server/handler"
	"github.com/alanyoungcy/polyladder/internal/service"
)

// FullMode runs the scheduler (laddering, closure capture, redemption and
// snapshots), the fill listener and the status server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	x, err := connectExchange(ctx, a.cfg, a.base)
	if err != nil {
		return err
	}
	scheduler, err := a.buildScheduler(ctx, deps, x, a.cfg.Redemption.Enabled)
	if err != nil {
		return err
	}
	listener := a.buildFillListener(deps, x)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	// The listener loads its tracked ids once, so it waits for the first
	// cycle to ledger this run's orders. A dropped user channel is reported
	// by the listener and does not stop the scheduler.
	g.Go(func() error {
		select {
		case <-scheduler.FirstCycleDone():
		case <-ctx.Done():
			return nil
		}
		a.logger.InfoContext(ctx, "starting fill listener; orders from later cycles are tracked after a restart")
		if err := listener.Run(ctx); err != nil {
			a.logger.ErrorContext(ctx, "fill listener exited", slog.String("error", err.Error()))
		}
		return nil
	})

	if a.cfg.Server.Enabled {
		srv := a.buildServer(deps, listener)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	return g.Wait()
}

// PlaceMode runs one discovery and ladder cycle and exits. Closures are only
// captured by the long-running scheduler, so capture mode records them for
// one-shot runs.
func (a *App) PlaceMode(ctx context.Context, deps *Dependencies) error {
	x, err := connectExchange(ctx, a.cfg, a.base)
	if err != nil {
		return err
	}
	scheduler, err := a.buildScheduler(ctx, deps, x, false)
	if err != nil {
		return err
	}
	report, err := scheduler.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("app: place: %w", err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("app: place: %d of %d markets failed", report.Failed, report.Discovered)
	}
	return nil
}

// CancelMode cancels every ledgered order, or only those of -market.
func (a *App) CancelMode(ctx context.Context, deps *Dependencies) error {
	x, err := connectExchange(ctx, a.cfg, a.base)
	if err != nil {
		return err
	}
	svc := service.NewCancellationService(deps.Ledger, x.clob, deps.Audit, a.base)

	if a.opts.Market != "" {
		_, err = svc.CancelMarket(ctx, a.opts.Market)
	} else {
		_, err = svc.CancelAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("app: cancel: %w", err)
	}
	return nil
}

// ListenMode runs only the fill listener. It returns when the user channel
// closes; the process supervisor is expected to restart it.
func (a *App) ListenMode(ctx context.Context, deps *Dependencies) error {
	x, err := connectExchange(ctx, a.cfg, a.base)
	if err != nil {
		return err
	}
	return a.buildFillListener(deps, x).Run(ctx)
}

// RedeemMode runs one redemption sweep. The error joins every failed record.
func (a *App) RedeemMode(ctx context.Context, deps *Dependencies) error {
	signer, err := newSigner(a.cfg)
	if err != nil {
		return err
	}
	engine, err := a.buildRedemption(ctx, deps, signer)
	if err != nil {
		return err
	}
	report, err := engine.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("app: redeem: %w", err)
	}
	return report.Err()
}

// CaptureMode records one closed market for later redemption.
func (a *App) CaptureMode(ctx context.Context, deps *Dependencies) error {
	if a.opts.Market == "" || a.opts.Condition == "" {
		return errors.New("app: capture mode needs -market and -condition")
	}
	capture := service.NewSettlementCapture(deps.Settlements, a.base)
	if _, err := capture.Capture(ctx, a.opts.Market, a.opts.Condition); err != nil {
		return fmt.Errorf("app: capture: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Builders
// --------------------------------------------------------------------------

func (a *App) buildExecutor(deps *Dependencies, x *exchange) (*executor.Executor, error) {
	exec, err := executor.New(x.clob, deps.Ledger, deps.Counter, executor.Config{
		BatchSize:        a.cfg.Executor.BatchSize,
		BatchesPerSecond: a.cfg.Executor.BatchesPerSecond,
		RequestTimeout:   a.cfg.Polymarket.RequestTimeout.Duration,
		DedupTTL:         a.cfg.Executor.DedupTTL.Duration,
	}, a.base)
	if err != nil {
		return nil, fmt.Errorf("app: executor: %w", err)
	}
	if deps.Audit != nil {
		exec.SetAudit(deps.Audit)
	}
	return exec, nil
}

func (a *App) buildRedemption(ctx context.Context, deps *Dependencies, signer *crypto.Signer) (*service.RedemptionEngine, error) {
	chain, err := dialChain(ctx, a.cfg, signer, a.base)
	if err != nil {
		return nil, err
	}
	return service.NewRedemptionEngine(
		deps.Settlements,
		chain,
		deps.Locks,
		service.RedemptionConfig{
			Delay:         a.cfg.Redemption.Delay.Duration,
			Collaterals:   a.cfg.Chain.CollateralAddresses,
			LockTTL:       a.cfg.Redemption.LockTTL.Duration,
			RecordTimeout: a.cfg.Redemption.RecordTimeout.Duration,
		},
		deps.Audit,
		deps.Notifier,
		a.base,
	), nil
}

func (a *App) buildScheduler(ctx context.Context, deps *Dependencies, x *exchange, withRedemption bool) (*service.Scheduler, error) {
	exec, err := a.buildExecutor(deps, x)
	if err != nil {
		return nil, err
	}

	var redemption *service.RedemptionEngine
	if withRedemption {
		redemption, err = a.buildRedemption(ctx, deps, x.signer)
		if err != nil {
			return nil, err
		}
	}

	var snapshots *service.Snapshotter
	if a.cfg.Snapshot.Interval.Duration > 0 && a.cfg.State.SnapshotDir != "" {
		snapshots = service.NewSnapshotter(deps.Ledger, deps.Settlements, a.cfg.State.SnapshotDir, deps.Uploader, a.base)
	}

	return service.NewScheduler(
		x.gamma,
		exec,
		deps.Ledger,
		service.NewSettlementCapture(deps.Settlements, a.base),
		redemption,
		snapshots,
		deps.Notifier,
		service.SchedulerConfig{
			Tick:             a.cfg.Schedule.Tick.Duration,
			CycleInterval:    a.cfg.Schedule.CycleInterval.Duration,
			SweepInterval:    a.cfg.Redemption.SweepInterval.Duration,
			SnapshotInterval: a.cfg.Snapshot.Interval.Duration,
			WindowLength:     a.cfg.Schedule.WindowLength.Duration,
			RequestTimeout:   a.cfg.Polymarket.RequestTimeout.Duration,
			Discovery: polymarket.DiscoveryFilter{
				TagSlug: a.cfg.Discovery.TagSlug,
				Needle:  a.cfg.Discovery.Needle,
				Limit:   a.cfg.Discovery.Limit,
			},
			Policy: a.cfg.Ladder.Policy(),
		},
		a.base,
	), nil
}

func (a *App) buildFillListener(deps *Dependencies, x *exchange) *service.FillListener {
	stream := polymarket.NewUserChannel(
		a.cfg.Polymarket.WSUserURL,
		x.clob.Creds(),
		a.cfg.FillListener.HeartbeatInterval.Duration,
		a.base,
	)
	return service.NewFillListener(deps.Ledger, stream, deps.Audit, deps.Notifier, a.base)
}

func (a *App) buildServer(deps *Dependencies, listener *service.FillListener) *server.Server {
	status := service.NewStatusService(a.cfg.Mode, deps.Ledger, deps.Settlements, deps.Counter, listener)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(status, a.base),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, a.base)
	}
	return server.NewServer(server.Config{
		Addr:              a.cfg.Server.Addr(),
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
	}, handlers, a.base)
}
