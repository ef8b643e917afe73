package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// SettlementStore implements domain.SettlementStore as one hash per slug
// and a set of pending slugs.
type SettlementStore struct {
	c *Client
}

// NewSettlementStore creates a SettlementStore backed by c.
func NewSettlementStore(c *Client) *SettlementStore {
	return &SettlementStore{c: c}
}

func (s *SettlementStore) recordKey(slug string) string { return s.c.key("settlement", "record", slug) }
func (s *SettlementStore) indexKey() string             { return s.c.key("settlement", "pending") }

// Put overwrites the record for rec.Slug.
func (s *SettlementStore) Put(ctx context.Context, rec domain.SettlementRecord) error {
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.recordKey(rec.Slug),
			"condition_id", rec.ConditionID,
			"captured_at", strconv.FormatInt(rec.CapturedAt.Unix(), 10),
		)
		p.SAdd(ctx, s.indexKey(), rec.Slug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: settlement put %s: %w", rec.Slug, err)
	}
	return nil
}

// List returns every pending record, oldest capture first. Index entries
// whose hash has vanished are skipped.
func (s *SettlementStore) List(ctx context.Context) ([]domain.SettlementRecord, error) {
	slugs, err := s.c.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: settlement list: %w", err)
	}

	cmds := make(map[string]*redis.MapStringStringCmd, len(slugs))
	_, err = s.c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, slug := range slugs {
			cmds[slug] = p.HGetAll(ctx, s.recordKey(slug))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: settlement list: %w", err)
	}

	out := make([]domain.SettlementRecord, 0, len(slugs))
	for slug, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		ts, err := strconv.ParseInt(fields["captured_at"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: settlement %s: captured_at: %w", slug, err)
		}
		out = append(out, domain.SettlementRecord{
			Slug:        slug,
			ConditionID: fields["condition_id"],
			CapturedAt:  time.Unix(ts, 0).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

// Delete removes the record for slug.
func (s *SettlementStore) Delete(ctx context.Context, slug string) error {
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.recordKey(slug))
		p.SRem(ctx, s.indexKey(), slug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: settlement delete %s: %w", slug, err)
	}
	return nil
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
