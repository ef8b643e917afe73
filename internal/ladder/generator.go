// Package ladder turns a market window's start time and a price/size policy
// into the list of limit-order intents laid across both outcomes.
package ladder

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// Outcomes is the number of outcomes in a binary market.
const Outcomes = 2

// Policy describes one ladder. Prices and sizes follow arithmetic sequences
// starting at PriceStart/SizeStart and moving by PriceStep/SizeStep per rung.
type Policy struct {
	CountPerSide int
	PriceStart   decimal.Decimal
	PriceStep    decimal.Decimal
	SizeStart    decimal.Decimal
	SizeStep     decimal.Decimal
	Side         domain.OrderSide
	TimeInForce  domain.TimeInForce
	// CancelAfter is added to the window start to form the GTD expiration.
	CancelAfter time.Duration
}

// DefaultPolicy returns five BUY rungs per outcome from 0.05 down to 0.01,
// ten shares each, expiring eight minutes after the window opens.
func DefaultPolicy() Policy {
	return Policy{
		CountPerSide: 5,
		PriceStart:   decimal.RequireFromString("0.05"),
		PriceStep:    decimal.RequireFromString("-0.01"),
		SizeStart:    decimal.NewFromInt(10),
		SizeStep:     decimal.Zero,
		Side:         domain.OrderSideBuy,
		TimeInForce:  domain.TimeInForceGTD,
		CancelAfter:  8 * time.Minute,
	}
}

// Generate lays CountPerSide rungs on each outcome, outcome 0 first. It is
// pure and performs no validation; callers that accept policies from
// configuration should run Validate first.
func Generate(p Policy, start time.Time) []domain.OrderIntent {
	if p.CountPerSide <= 0 {
		return nil
	}

	var expiration time.Time
	if p.TimeInForce == domain.TimeInForceGTD {
		expiration = start.Add(p.CancelAfter)
	}

	intents := make([]domain.OrderIntent, 0, Outcomes*p.CountPerSide)
	for outcome := 0; outcome < Outcomes; outcome++ {
		for i := 0; i < p.CountPerSide; i++ {
			step := decimal.NewFromInt(int64(i))
			intents = append(intents, domain.OrderIntent{
				OutcomeIndex: outcome,
				Price:        p.PriceStart.Add(p.PriceStep.Mul(step)),
				Size:         p.SizeStart.Add(p.SizeStep.Mul(step)),
				Side:         p.Side,
				TimeInForce:  p.TimeInForce,
				Expiration:   expiration,
			})
		}
	}
	return intents
}

var one = decimal.NewFromInt(1)

// Validate checks that every rung the policy would produce has a price in
// (0,1) and a positive whole-share size.
func (p Policy) Validate() error {
	var errs []error

	if p.CountPerSide <= 0 {
		errs = append(errs, fmt.Errorf("count_per_side must be > 0, got %d", p.CountPerSide))
	}
	if p.Side != domain.OrderSideBuy && p.Side != domain.OrderSideSell {
		errs = append(errs, fmt.Errorf("side must be BUY or SELL, got %q", p.Side))
	}
	switch p.TimeInForce {
	case domain.TimeInForceGTC:
	case domain.TimeInForceGTD:
		if p.CancelAfter <= 0 {
			errs = append(errs, errors.New("cancel_after must be > 0 for GTD orders"))
		}
	default:
		errs = append(errs, fmt.Errorf("time_in_force must be GTC or GTD, got %q", p.TimeInForce))
	}

	if p.CountPerSide > 0 {
		last := decimal.NewFromInt(int64(p.CountPerSide - 1))
		for _, price := range []decimal.Decimal{p.PriceStart, p.PriceStart.Add(p.PriceStep.Mul(last))} {
			if !price.IsPositive() || price.GreaterThanOrEqual(one) {
				errs = append(errs, fmt.Errorf("price %s outside (0,1)", price))
			}
		}
		for _, size := range []decimal.Decimal{p.SizeStart, p.SizeStart.Add(p.SizeStep.Mul(last))} {
			if !size.IsPositive() || !size.IsInteger() {
				errs = append(errs, fmt.Errorf("size %s must be a positive integer", size))
			}
		}
	}

	return errors.Join(errs...)
}
