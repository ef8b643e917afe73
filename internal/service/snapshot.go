package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/state"
)

// SnapshotUploader ships a serialized snapshot off-host.
type SnapshotUploader interface {
	Upload(ctx context.Context, takenAt time.Time, data []byte) (string, error)
}

// LedgerSnapshot is the document written by the Snapshotter.
type LedgerSnapshot struct {
	TakenAt     time.Time                 `json:"taken_at"`
	Markets     map[string][]string       `json:"markets"`
	Settlements []domain.SettlementRecord `json:"settlements"`
}

// Snapshotter dumps the ledger and pending settlements to a local JSON file
// and, when an uploader is set, to object storage.
type Snapshotter struct {
	ledger      domain.OrderLedger
	settlements domain.SettlementStore
	dir         string
	uploader    SnapshotUploader
	now         func() time.Time
	logger      *slog.Logger
}

// NewSnapshotter creates a Snapshotter writing into dir. uploader may be nil.
func NewSnapshotter(ledger domain.OrderLedger, settlements domain.SettlementStore, dir string, uploader SnapshotUploader, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{
		ledger:      ledger,
		settlements: settlements,
		dir:         dir,
		uploader:    uploader,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "snapshotter")),
	}
}

// Take builds a snapshot, writes it to <dir>/ledger_snapshot.json and
// uploads it. An upload failure is returned after the local write.
func (s *Snapshotter) Take(ctx context.Context) (LedgerSnapshot, error) {
	snap := LedgerSnapshot{TakenAt: s.now().UTC(), Markets: map[string][]string{}}

	markets, err := s.ledger.Markets(ctx)
	if err != nil {
		return snap, fmt.Errorf("service/snapshot: markets: %w", err)
	}
	for _, m := range markets {
		ids, err := s.ledger.Load(ctx, m)
		if err != nil {
			return snap, fmt.Errorf("service/snapshot: load %s: %w", m, err)
		}
		snap.Markets[m] = ids
	}
	if snap.Settlements, err = s.settlements.List(ctx); err != nil {
		return snap, fmt.Errorf("service/snapshot: settlements: %w", err)
	}

	path := filepath.Join(s.dir, "ledger_snapshot.json")
	if err := state.WriteJSON(path, snap); err != nil {
		return snap, fmt.Errorf("service/snapshot: write %s: %w", path, err)
	}

	log := s.logger.With(slog.Int("markets", len(snap.Markets)), slog.Int("settlements", len(snap.Settlements)))
	if s.uploader == nil {
		log.InfoContext(ctx, "snapshot written", slog.String("path", path))
		return snap, nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("service/snapshot: marshal: %w", err)
	}
	key, err := s.uploader.Upload(ctx, snap.TakenAt, data)
	if err != nil {
		return snap, fmt.Errorf("service/snapshot: upload: %w", err)
	}
	log.InfoContext(ctx, "snapshot written", slog.String("path", path), slog.String("key", key))
	return snap, nil
}
