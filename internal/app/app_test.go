package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/config"
	"github.com/alanyoungcy/polyladder/internal/service"
)

const testCondition = "0x6a1f1cb1f5bcdf3fba2f0f1f4e2d0c8a9b7e6d5c4b3a2918f7e6d5c4b3a29180"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Mode = "capture"
	cfg.State.SQLitePath = filepath.Join(dir, "ladder.db")
	cfg.State.CounterPath = filepath.Join(dir, "count.json")
	cfg.State.SnapshotDir = filepath.Join(dir, "snapshots")
	return &cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireSQLiteDefaults(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := Wire(t.Context(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Ledger)
	assert.NotNil(t, deps.Settlements)
	assert.IsType(t, &service.LocalLock{}, deps.Locks)
	assert.Nil(t, deps.Audit)
	assert.Nil(t, deps.Uploader)
	assert.False(t, deps.Notifier.Enabled())
}

func TestCaptureModeRecordsSettlement(t *testing.T) {
	cfg := testConfig(t)

	a := New(cfg, Options{Market: "btc-up-or-down-15m-1700000000", Condition: testCondition}, discard())
	require.NoError(t, a.Run(t.Context()))
	a.Close()

	deps, cleanup, err := Wire(t.Context(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	recs, err := deps.Settlements.List(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "btc-up-or-down-15m-1700000000", recs[0].Slug)
	assert.Equal(t, testCondition, recs[0].ConditionID)
}

func TestCaptureModeNeedsFlags(t *testing.T) {
	a := New(testConfig(t), Options{Market: "only-market"}, discard())
	defer a.Close()

	err := a.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-market and -condition")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "scrape"
	a := New(cfg, Options{}, discard())
	defer a.Close()

	assert.Error(t, a.Run(t.Context()))
}
