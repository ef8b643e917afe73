package domain

import (
	"context"
	"time"
)

// OrderLedger is the durable per-market record of every order id ever placed.
// Entries are append-only; a market that was never written reads as empty.
type OrderLedger interface {
	// Append merges ids into the market's set and returns how many were new.
	Append(ctx context.Context, market string, ids []string) (int, error)
	Load(ctx context.Context, market string) ([]string, error)
	LoadAll(ctx context.Context) ([]string, error)
	Markets(ctx context.Context) ([]string, error)
}

// SettlementStore holds one SettlementRecord per market slug awaiting
// redemption. Put overwrites an existing record for the same slug.
type SettlementStore interface {
	Put(ctx context.Context, rec SettlementRecord) error
	List(ctx context.Context) ([]SettlementRecord, error)
	Delete(ctx context.Context, slug string) error
}

// OrderCounter tracks the lifetime number of orders placed.
type OrderCounter interface {
	Add(n int) (int64, error)
	Total() (int64, error)
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// LockManager provides mutual exclusion across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
