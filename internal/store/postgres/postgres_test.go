package postgres

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@db:5432/ladder?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "ladder"}),
	)
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_audit_log.sql"}, names)
}

func TestBuildAuditQuery(t *testing.T) {
	since := time.Unix(100, 0)
	q, args := buildAuditQuery(domain.ListOpts{Since: &since, Limit: 10, Offset: 5})
	assert.Equal(t,
		"SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		q,
	)
	assert.Equal(t, []any{since, 10, 5}, args)

	q, args = buildAuditQuery(domain.ListOpts{})
	assert.NotContains(t, q, "LIMIT")
	assert.Empty(t, args)
}

func TestAuditStore_Integration(t *testing.T) {
	dsn := os.Getenv("POLYLADDER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLYLADDER_TEST_POSTGRES_DSN not set")
	}
	ctx := t.Context()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))

	s := NewAuditStore(c.Pool())
	start := time.Now().Add(-time.Second)
	require.NoError(t, s.Log(ctx, "batch_posted", map[string]any{"market": "x-15m-001", "ids": 3}))

	entries, err := s.List(ctx, domain.ListOpts{Since: &start, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "batch_posted", entries[0].Event)
	assert.Equal(t, "x-15m-001", entries[0].Detail["market"])
}
