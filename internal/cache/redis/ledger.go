package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// LedgerStore implements domain.OrderLedger with one SET per market plus a
// SET indexing the known markets.
type LedgerStore struct {
	c *Client
}

// NewLedgerStore creates a LedgerStore backed by c.
func NewLedgerStore(c *Client) *LedgerStore {
	return &LedgerStore{c: c}
}

func (s *LedgerStore) marketKey(market string) string { return s.c.key("ledger", "market", market) }
func (s *LedgerStore) indexKey() string               { return s.c.key("ledger", "markets") }

// Append adds ids to the market's set in one MULTI/EXEC and returns how many
// were new.
func (s *LedgerStore) Append(ctx context.Context, market string, ids []string) (int, error) {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return 0, nil
	}

	var added *redis.IntCmd
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		added = p.SAdd(ctx, s.marketKey(market), members...)
		p.SAdd(ctx, s.indexKey(), market)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: ledger append %s: %w", market, err)
	}
	return int(added.Val()), nil
}

// Load returns market's ids sorted. A missing key reads as empty.
func (s *LedgerStore) Load(ctx context.Context, market string) ([]string, error) {
	ids, err := s.c.rdb.SMembers(ctx, s.marketKey(market)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: ledger load %s: %w", market, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadAll returns the union of every market's ids.
func (s *LedgerStore) LoadAll(ctx context.Context) ([]string, error) {
	markets, err := s.Markets(ctx)
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return []string{}, nil
	}
	keys := make([]string, 0, len(markets))
	for _, m := range markets {
		keys = append(keys, s.marketKey(m))
	}
	ids, err := s.c.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: ledger load all: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Markets returns every market slug that has been appended to.
func (s *LedgerStore) Markets(ctx context.Context) ([]string, error) {
	markets, err := s.c.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: ledger markets: %w", err)
	}
	sort.Strings(markets)
	return markets, nil
}

var _ domain.OrderLedger = (*LedgerStore)(nil)
