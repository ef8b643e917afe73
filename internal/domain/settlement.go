package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// NormalizeConditionID returns id as 0x-prefixed lowercase hex of exactly
// 32 bytes.
func NormalizeConditionID(id string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(id), "0x"), "0X")
	if len(raw) != 64 {
		return "", fmt.Errorf("%w: %q: want 32 bytes", ErrInvalidCondition, id)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidCondition, id, err)
	}
	return "0x" + strings.ToLower(raw), nil
}

// SettlementRecord marks a closed market whose winnings can be redeemed once
// the eligibility delay has elapsed.
type SettlementRecord struct {
	Slug        string    `json:"slug"`
	ConditionID string    `json:"condition_id"`
	CapturedAt  time.Time `json:"captured_at"`
}

// EligibleAt returns the earliest time the record may be redeemed.
func (r SettlementRecord) EligibleAt(delay time.Duration) time.Time {
	return r.CapturedAt.Add(delay)
}

// RedeemablePosition is an outcome share with a non-zero on-chain balance.
type RedeemablePosition struct {
	Collateral   string
	ConditionID  string
	OutcomeIndex int
	PositionID   *big.Int
	Balance      *big.Int
}

// RedemptionState is the terminal or intermediate state of one record in a sweep.
type RedemptionState string

const (
	RedemptionCaptured  RedemptionState = "captured"
	RedemptionEligible  RedemptionState = "eligible"
	RedemptionRedeemed  RedemptionState = "redeemed"
	RedemptionNoBalance RedemptionState = "no_balance"
	RedemptionFailed    RedemptionState = "failed"
)

// RedemptionOutcome reports what happened to one settlement record.
type RedemptionOutcome struct {
	Slug        string
	ConditionID string
	State       RedemptionState
	IndexSet    *big.Int
	Positions   []RedeemablePosition
	TxHash      string
	Err         error
}
