package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/executor"
	"github.com/alanyoungcy/polyladder/internal/ladder"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
)

type fakeMarkets struct {
	slugs   []string
	windows map[string]domain.MarketWindow
	lookups []string
}

func (f *fakeMarkets) DiscoverSlugs(context.Context, polymarket.DiscoveryFilter) ([]string, error) {
	return f.slugs, nil
}

func (f *fakeMarkets) MarketBySlug(_ context.Context, slug string) (domain.MarketWindow, error) {
	f.lookups = append(f.lookups, slug)
	w, ok := f.windows[slug]
	if !ok {
		return domain.MarketWindow{}, fmt.Errorf("gamma: %w", domain.ErrNotFound)
	}
	if !w.Complete() {
		return w, fmt.Errorf("gamma: %w", domain.ErrIncompleteMarket)
	}
	return w, nil
}

type fakeExecutor struct {
	ledger domain.OrderLedger
	calls  map[string][]domain.OrderIntent
}

func (f *fakeExecutor) Execute(ctx context.Context, m domain.MarketWindow, intents []domain.OrderIntent) (executor.Report, error) {
	if f.calls == nil {
		f.calls = map[string][]domain.OrderIntent{}
	}
	f.calls[m.Slug] = intents
	ids := make([]string, len(intents))
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", m.Slug, i)
	}
	added, err := f.ledger.Append(ctx, m.Slug, ids)
	return executor.Report{Market: m.Slug, IDs: ids, Added: added}, err
}

func TestScheduler_CycleAndCapture(t *testing.T) {
	start := time.Unix(1758560400, 0)
	ledger := newMemLedger(map[string][]string{"done": {"0xold"}})
	markets := &fakeMarkets{
		slugs: []string{"done", "fresh", "partial", "gone"},
		windows: map[string]domain.MarketWindow{
			"fresh":   {Slug: "fresh", StartTime: start, OutcomeTokenIDs: [2]string{"1", "2"}, ConditionID: testCond},
			"partial": {Slug: "partial", StartTime: start},
		},
	}
	exec := &fakeExecutor{ledger: ledger}
	store := newMemSettlements()
	capture := NewSettlementCapture(store, discardLogger())

	s := NewScheduler(markets, exec, ledger, capture, nil, nil, nil, SchedulerConfig{
		WindowLength: 15 * time.Minute,
		Policy:       ladder.DefaultPolicy(),
	}, discardLogger())

	rep, err := s.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Discovered: 4, Skipped: 3, Laddered: 1}, rep)
	assert.NotContains(t, markets.lookups, "done")
	require.Contains(t, exec.calls, "fresh")
	assert.Len(t, exec.calls["fresh"], 10)
	assert.Equal(t, 1, s.Pending())

	s.CaptureDue(t.Context(), start.Add(14*time.Minute))
	recs, _ := store.List(t.Context())
	assert.Empty(t, recs)

	s.CaptureDue(t.Context(), start.Add(15*time.Minute))
	recs, _ = store.List(t.Context())
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].Slug)
	assert.Equal(t, testCond, recs[0].ConditionID)
	assert.Zero(t, s.Pending())

	// Laddered markets are skipped on the next cycle.
	rep, err = s.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Zero(t, rep.Laddered)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	ledger := newMemLedger(nil)
	s := NewScheduler(&fakeMarkets{}, &fakeExecutor{ledger: ledger}, ledger,
		NewSettlementCapture(newMemSettlements(), discardLogger()), nil, nil, nil,
		SchedulerConfig{Tick: time.Millisecond, CycleInterval: time.Hour}, discardLogger())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestScheduler_FirstCycleDoneAfterLadder(t *testing.T) {
	start := time.Unix(1758560400, 0)
	ledger := newMemLedger(nil)
	markets := &fakeMarkets{
		slugs: []string{"fresh"},
		windows: map[string]domain.MarketWindow{
			"fresh": {Slug: "fresh", StartTime: start, OutcomeTokenIDs: [2]string{"1", "2"}, ConditionID: testCond},
		},
	}
	s := NewScheduler(markets, &fakeExecutor{ledger: ledger}, ledger,
		NewSettlementCapture(newMemSettlements(), discardLogger()), nil, nil, nil,
		SchedulerConfig{
			Tick:          time.Hour,
			CycleInterval: time.Hour,
			WindowLength:  15 * time.Minute,
			Policy:        ladder.DefaultPolicy(),
		}, discardLogger())

	select {
	case <-s.FirstCycleDone():
		t.Fatal("first cycle reported before Run")
	default:
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.FirstCycleDone():
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never completed")
	}

	// A listener started now sees the ids of the first cycle.
	stream := &fakeStream{events: []domain.FillEvent{{OrderID: "fresh-3", EventType: "trade", Status: "MATCHED"}}}
	l := NewFillListener(ledger, stream, nil, nil, discardLogger())
	require.NoError(t, l.Run(t.Context()))
	assert.EqualValues(t, 1, l.Reported())

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_FirstCycleDoneOnEarlyReturn(t *testing.T) {
	ledger := newMemLedger(nil)
	s := NewScheduler(&fakeMarkets{}, &fakeExecutor{ledger: ledger}, ledger,
		NewSettlementCapture(newMemSettlements(), discardLogger()), nil, nil, nil,
		SchedulerConfig{Tick: time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, s.Run(ctx))

	select {
	case <-s.FirstCycleDone():
	default:
		t.Fatal("waiters left blocked after Run returned")
	}
}
