package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/ladder"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
	"github.com/alanyoungcy/polyladder/internal/state"
	"github.com/alanyoungcy/polyladder/internal/store/sqlite"
)

const hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intents(n int) []domain.OrderIntent {
	out := make([]domain.OrderIntent, n)
	for i := range out {
		out[i] = domain.OrderIntent{
			OutcomeIndex: i % 2,
			Price:        decimal.RequireFromString("0.05"),
			Size:         decimal.NewFromInt(int64(i + 1)),
			Side:         domain.OrderSideBuy,
			TimeInForce:  domain.TimeInForceGTC,
		}
	}
	return out
}

func TestPartition(t *testing.T) {
	in := intents(37)
	batches := Partition(in, 15)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 15)
	assert.Len(t, batches[1], 15)
	assert.Len(t, batches[2], 7)

	var flat []domain.OrderIntent
	for _, b := range batches {
		flat = append(flat, b...)
	}
	assert.Equal(t, in, flat)

	assert.Len(t, Partition(in, 0), 1)
	assert.Len(t, Partition(in, 100), 1)
	assert.Nil(t, Partition(nil, 15))
	assert.Len(t, Partition(intents(30), 15), 2)
}

type memLedger struct {
	mu   sync.Mutex
	ids  map[string][]string
	fail error
}

func (m *memLedger) Append(_ context.Context, market string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	if m.ids == nil {
		m.ids = map[string][]string{}
	}
	m.ids[market] = append(m.ids[market], ids...)
	return len(ids), nil
}

func (m *memLedger) Load(_ context.Context, market string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[market], nil
}

func (m *memLedger) LoadAll(context.Context) ([]string, error) { return nil, nil }
func (m *memLedger) Markets(context.Context) ([]string, error) { return nil, nil }

type fakeAPI struct {
	calls     [][]domain.SignedOrder
	responses []domain.BatchResponse
	errs      []error
	buildErr  map[string]error // by token id
}

func (f *fakeAPI) CreateSignedOrder(intent domain.OrderIntent, tokenID string, _ bool) (domain.SignedOrder, error) {
	if err := f.buildErr[tokenID]; err != nil {
		return domain.SignedOrder{}, err
	}
	return domain.SignedOrder{TokenID: tokenID, Intent: intent}, nil
}

func (f *fakeAPI) PostOrders(_ context.Context, orders []domain.SignedOrder) (domain.BatchResponse, error) {
	i := len(f.calls)
	f.calls = append(f.calls, orders)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return domain.BatchErrorResponse(err.Error()), err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	ids := make([]string, len(orders))
	for j := range orders {
		ids[j] = fmt.Sprintf("0x%d-%d", i, j)
	}
	return domain.NewBatchResponse(ids, nil), nil
}

var window = domain.MarketWindow{
	Slug:            "x-15m-001",
	StartTime:       time.Unix(1758560400, 0),
	OutcomeTokenIDs: [2]string{"111", "222"},
	ConditionID:     "0xabc",
}

func newExecutor(t *testing.T, api OrderAPI, ledger domain.OrderLedger, counter domain.OrderCounter) *Executor {
	t.Helper()
	e, err := New(api, ledger, counter, Config{BatchSize: 15}, discardLogger())
	require.NoError(t, err)
	return e
}

func TestNew_RejectsBadBatchSize(t *testing.T) {
	_, err := New(&fakeAPI{}, &memLedger{}, nil, Config{}, discardLogger())
	assert.Error(t, err)
}

func TestExecute_FailedBatchDoesNotStopLaterBatches(t *testing.T) {
	api := &fakeAPI{errs: []error{nil, errors.New("503 upstream")}}
	ledger := &memLedger{}
	counter := state.NewCounter(filepath.Join(t.TempDir(), "count.json"))
	e := newExecutor(t, api, ledger, counter)

	rep, err := e.Execute(t.Context(), window, intents(37))
	require.NoError(t, err)
	require.Len(t, api.calls, 3)
	require.Len(t, rep.Batches, 3)

	assert.Equal(t, domain.BatchSuccess, rep.Batches[0].Response.Status)
	assert.Equal(t, domain.BatchError, rep.Batches[1].Response.Status)
	assert.Equal(t, "503 upstream", rep.Batches[1].Response.Reason)
	assert.Equal(t, domain.BatchSuccess, rep.Batches[2].Response.Status)

	ids, _ := ledger.Load(t.Context(), window.Slug)
	assert.Len(t, ids, 22)
	assert.Equal(t, rep.IDs, ids)
	assert.Equal(t, 15, rep.Failures())

	total, err := counter.Total()
	require.NoError(t, err)
	assert.EqualValues(t, 22, total)
}

func TestExecute_PartialFailureIndicesMapToBatch(t *testing.T) {
	api := &fakeAPI{
		buildErr: map[string]error{"111": errors.New("bad token")},
		responses: []domain.BatchResponse{
			domain.NewBatchResponse([]string{"0xa"}, []domain.OrderFailure{{Index: 1, Reason: "not enough balance"}}),
		},
	}
	e := newExecutor(t, api, &memLedger{}, nil)

	// Outcome 0 (token 111) fails to build; outcome 1 orders sit at batch
	// indices 1 and 3.
	rep, err := e.Execute(t.Context(), window, intents(4))
	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	assert.Len(t, api.calls[0], 2)

	resp := rep.Batches[0].Response
	assert.Equal(t, domain.BatchPartialFailure, resp.Status)
	assert.Equal(t, []string{"0xa"}, resp.IDs)
	assert.Equal(t, []domain.OrderFailure{
		{Index: 0, Reason: "bad token"},
		{Index: 2, Reason: "bad token"},
		{Index: 3, Reason: "not enough balance"},
	}, resp.Failures)
}

func TestExecute_UnknownOutcomeIsAFailure(t *testing.T) {
	api := &fakeAPI{}
	e := newExecutor(t, api, &memLedger{}, nil)
	in := intents(1)
	in[0].OutcomeIndex = 5

	rep, err := e.Execute(t.Context(), window, in)
	require.NoError(t, err)
	assert.Empty(t, api.calls)
	assert.Equal(t, domain.BatchPartialFailure, rep.Batches[0].Response.Status)
}

func TestExecute_LedgerErrorEscalates(t *testing.T) {
	boom := errors.New("disk full")
	e := newExecutor(t, &fakeAPI{}, &memLedger{fail: boom}, nil)

	rep, err := e.Execute(t.Context(), window, intents(2))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, rep.LedgerErr, boom)
	assert.Len(t, rep.IDs, 2)
}

func TestExecute_Dedup(t *testing.T) {
	e, err := New(&fakeAPI{}, &memLedger{}, nil, Config{BatchSize: 15, DedupTTL: time.Minute}, discardLogger())
	require.NoError(t, err)

	_, err = e.Execute(t.Context(), window, intents(2))
	require.NoError(t, err)
	_, err = e.Execute(t.Context(), window, intents(2))
	assert.ErrorIs(t, err, ErrRecentlyLaddered)
}

func TestDedup_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.True(t, d.Claim("m"))
	assert.False(t, d.Claim("m"))
	now = now.Add(time.Minute)
	assert.True(t, d.Claim("m"))

	now = now.Add(2 * time.Minute)
	d.Cleanup()
	assert.Empty(t, d.seen)
}

// End to end: ladder generator, real signing client against a mock exchange,
// sqlite ledger.
func TestExecute_EndToEnd(t *testing.T) {
	returned := []string{"0x01", "0x02", "0x03", "0x04", "0x05", "0x06", "0x07", "0x08", "0x09", "0x0a"}
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		var body []map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body, 10)
		res := make([]map[string]any, len(returned))
		for i, id := range returned {
			res[i] = map[string]any{"success": true, "orderID": id, "status": "live"}
		}
		_ = json.NewEncoder(w).Encode(res)
	}))
	defer srv.Close()

	signer, err := crypto.NewSigner(hardhatKey, 137)
	require.NoError(t, err)
	builder, err := polymarket.NewOrderBuilder(signer, polymarket.OrderBuilderConfig{})
	require.NoError(t, err)
	clob := polymarket.NewClobClient(srv.URL, signer, builder, 5*time.Second)
	clob.SetCreds(crypto.APICreds{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"})

	db, err := sqlite.Open(t.Context(), filepath.Join(t.TempDir(), "ladder.db"))
	require.NoError(t, err)
	defer db.Close()
	ledger := sqlite.NewLedgerStore(db)

	policy := ladder.DefaultPolicy()
	in := ladder.Generate(policy, window.StartTime)
	require.Len(t, in, 10)
	for i, want := range []string{"0.05", "0.04", "0.03", "0.02", "0.01"} {
		assert.Equal(t, want, in[i].Price.String())
		assert.Equal(t, want, in[i+5].Price.String())
	}

	e := newExecutor(t, clob, ledger, nil)
	rep, err := e.Execute(t.Context(), window, in)
	require.NoError(t, err)
	assert.EqualValues(t, 1, posts.Load())
	assert.Equal(t, 10, rep.Added)

	ids, err := ledger.Load(t.Context(), window.Slug)
	require.NoError(t, err)
	assert.ElementsMatch(t, returned, ids)
}
