package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memLedger struct {
	mu  sync.Mutex
	ids map[string][]string
}

func newMemLedger(entries map[string][]string) *memLedger {
	if entries == nil {
		entries = map[string][]string{}
	}
	return &memLedger{ids: entries}
}

func (m *memLedger) Append(_ context.Context, market string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[market] = append(m.ids[market], ids...)
	return len(ids), nil
}

func (m *memLedger) Load(_ context.Context, market string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids[market]...), nil
}

func (m *memLedger) LoadAll(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []string
	for _, ids := range m.ids {
		all = append(all, ids...)
	}
	sort.Strings(all)
	return all, nil
}

func (m *memLedger) Markets(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.ids))
	for k := range m.ids {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

type memSettlements struct {
	mu   sync.Mutex
	recs map[string]domain.SettlementRecord
}

func newMemSettlements(recs ...domain.SettlementRecord) *memSettlements {
	m := &memSettlements{recs: map[string]domain.SettlementRecord{}}
	for _, r := range recs {
		m.recs[r.Slug] = r
	}
	return m
}

func (m *memSettlements) Put(_ context.Context, rec domain.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.Slug] = rec
	return nil
}

func (m *memSettlements) List(context.Context) ([]domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *memSettlements) Delete(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, slug)
	return nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// fakeChain holds balances keyed by collateral, condition and outcome index.
// Position ids encode the outcome index so BalanceOf can find it.
type fakeChain struct {
	mu        sync.Mutex
	slots     int
	balances  map[string]int64
	redeemErr error
	redeems   []fakeRedeem
}

type fakeRedeem struct {
	collateral, cond string
	indexSets        []*big.Int
}

func balanceKey(collateral, cond string, outcome int) string {
	return fmt.Sprintf("%s/%s/%d", collateral, cond, outcome)
}

func (f *fakeChain) Holder() string { return "0xholder" }

func (f *fakeChain) OutcomeSlotCount(context.Context, string) (int, error) { return f.slots, nil }

func (f *fakeChain) PositionID(_ context.Context, collateral, cond string, indexSet *big.Int) (*big.Int, error) {
	outcome := indexSet.BitLen() - 1
	return new(big.Int).SetBytes([]byte(balanceKey(collateral, cond, outcome))), nil
}

func (f *fakeChain) BalanceOf(_ context.Context, positionID *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(f.balances[string(positionID.Bytes())]), nil
}

func (f *fakeChain) Redeem(_ context.Context, collateral, cond string, indexSets []*big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeems = append(f.redeems, fakeRedeem{collateral, cond, indexSets})
	if f.redeemErr != nil {
		return "0xdead", f.redeemErr
	}
	return fmt.Sprintf("0xtx%d", len(f.redeems)), nil
}

type fakeCanceler struct {
	calls [][]string
	err   error
}

func (f *fakeCanceler) CancelOrders(_ context.Context, ids []string) (domain.CancelResult, error) {
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return domain.CancelResult{}, f.err
	}
	return domain.CancelResult{Canceled: ids, NotCanceled: map[string]string{}}, nil
}

type fakeStream struct {
	events []domain.FillEvent
	err    error
}

func (f *fakeStream) Run(_ context.Context, handle polymarket.FillHandler) error {
	for _, ev := range f.events {
		handle(ev)
	}
	return f.err
}
