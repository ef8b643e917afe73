package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// Status is the read-only view served by the status endpoint.
type Status struct {
	Mode            string                    `json:"mode"`
	TotalOrders     int64                     `json:"total_orders"`
	Markets         int                       `json:"markets"`
	OrdersPerMarket map[string]int            `json:"orders_per_market"`
	Settlements     []domain.SettlementRecord `json:"pending_settlements"`
	FillsReported   int64                     `json:"fills_reported"`
}

// StatusService gathers Status from the stores.
type StatusService struct {
	mode        string
	ledger      domain.OrderLedger
	settlements domain.SettlementStore
	counter     domain.OrderCounter
	fills       *FillListener
}

// NewStatusService creates a StatusService. counter and fills may be nil.
func NewStatusService(mode string, ledger domain.OrderLedger, settlements domain.SettlementStore, counter domain.OrderCounter, fills *FillListener) *StatusService {
	return &StatusService{mode: mode, ledger: ledger, settlements: settlements, counter: counter, fills: fills}
}

// Status collects the current status.
func (s *StatusService) Status(ctx context.Context) (Status, error) {
	st := Status{Mode: s.mode, OrdersPerMarket: map[string]int{}}

	markets, err := s.ledger.Markets(ctx)
	if err != nil {
		return st, fmt.Errorf("service/status: markets: %w", err)
	}
	st.Markets = len(markets)
	for _, m := range markets {
		ids, err := s.ledger.Load(ctx, m)
		if err != nil {
			return st, fmt.Errorf("service/status: load %s: %w", m, err)
		}
		st.OrdersPerMarket[m] = len(ids)
	}

	if st.Settlements, err = s.settlements.List(ctx); err != nil {
		return st, fmt.Errorf("service/status: settlements: %w", err)
	}
	if s.counter != nil {
		if st.TotalOrders, err = s.counter.Total(); err != nil {
			return st, fmt.Errorf("service/status: counter: %w", err)
		}
	}
	if s.fills != nil {
		st.FillsReported = s.fills.Reported()
	}
	return st, nil
}
