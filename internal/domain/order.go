package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// TimeInForce is the order type sent to the exchange.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good-Till-Cancelled
	TimeInForceGTD TimeInForce = "GTD" // Good-Till-Date
)

// OrderIntent is one rung of a ladder before it is signed. Intents are
// immutable once produced by the generator.
type OrderIntent struct {
	OutcomeIndex int
	Price        decimal.Decimal
	Size         decimal.Decimal
	Side         OrderSide
	TimeInForce  TimeInForce
	// Expiration is the zero time when the intent carries no expiry (GTC).
	Expiration time.Time
}

// HasExpiration reports whether the intent expires at a fixed time.
func (i OrderIntent) HasExpiration() bool {
	return !i.Expiration.IsZero()
}

// SignedOrder is an EIP-712 signed exchange order together with the fields
// the batch endpoint needs alongside it.
type SignedOrder struct {
	Salt          int64
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   string
	TakerAmount   string
	Expiration    string
	Nonce         string
	FeeRateBps    string
	Side          OrderSide
	SignatureType int
	Signature     string
	TimeInForce   TimeInForce

	// Intent is the ladder rung this order was built from.
	Intent OrderIntent
}
