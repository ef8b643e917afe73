package polymarket

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/domain"
)

// Signature types accepted by the exchange.
const (
	SignatureTypeEOA        = 0
	SignatureTypePolyProxy  = 1
	SignatureTypeGnosisSafe = 2
)

const (
	zeroAddress = "0x0000000000000000000000000000000000000000"
	// Conditional tokens and USDC both use 6 decimals on the exchange.
	collateralDecimals = 6
	sizeDecimals       = 2
	amountDecimals     = 4
)

// OrderBuilderConfig selects who the order is made for and which exchange
// contract verifies it.
type OrderBuilderConfig struct {
	SignatureType   int
	Funder          string // required when SignatureType != 0
	FeeRateBps      int
	Exchange        common.Address
	NegRiskExchange common.Address
}

// OrderBuilder turns ladder intents into signed exchange orders.
type OrderBuilder struct {
	signer *crypto.Signer
	cfg    OrderBuilderConfig
}

// NewOrderBuilder creates an OrderBuilder. Zero exchange addresses default
// to the Polygon mainnet contracts.
func NewOrderBuilder(signer *crypto.Signer, cfg OrderBuilderConfig) (*OrderBuilder, error) {
	if cfg.SignatureType < SignatureTypeEOA || cfg.SignatureType > SignatureTypeGnosisSafe {
		return nil, fmt.Errorf("polymarket/order: unknown signature type %d", cfg.SignatureType)
	}
	if cfg.SignatureType != SignatureTypeEOA && !common.IsHexAddress(cfg.Funder) {
		return nil, fmt.Errorf("polymarket/order: signature type %d needs a funder address", cfg.SignatureType)
	}
	if cfg.Exchange == (common.Address{}) {
		cfg.Exchange = crypto.CTFExchange
	}
	if cfg.NegRiskExchange == (common.Address{}) {
		cfg.NegRiskExchange = crypto.NegRiskCTFExchange
	}
	return &OrderBuilder{signer: signer, cfg: cfg}, nil
}

// Maker returns the address that holds funds for placed orders.
func (b *OrderBuilder) Maker() string {
	if b.cfg.SignatureType == SignatureTypeEOA {
		return b.signer.Address().Hex()
	}
	return common.HexToAddress(b.cfg.Funder).Hex()
}

// Build signs one order for tokenID from intent.
func (b *OrderBuilder) Build(intent domain.OrderIntent, tokenID string, negRisk bool) (domain.SignedOrder, error) {
	if tokenID == "" {
		return domain.SignedOrder{}, fmt.Errorf("polymarket/order: %w: empty token id", domain.ErrInvalidOrder)
	}
	makerAmt, takerAmt, err := orderAmounts(intent.Side, intent.Price, intent.Size)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	side := 0
	if intent.Side == domain.OrderSideSell {
		side = 1
	}
	expiration := "0"
	if intent.TimeInForce == domain.TimeInForceGTD && intent.HasExpiration() {
		expiration = strconv.FormatInt(intent.Expiration.Unix(), 10)
	}

	salt := rand.Int64N(1 << 53)
	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         b.Maker(),
		Signer:        b.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    expiration,
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(b.cfg.FeeRateBps),
		Side:          side,
		SignatureType: b.cfg.SignatureType,
	}

	exchange := b.cfg.Exchange
	if negRisk {
		exchange = b.cfg.NegRiskExchange
	}
	sig, err := b.signer.SignOrder(payload, exchange)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("polymarket/order: %w: %v", domain.ErrSigningFailed, err)
	}

	return domain.SignedOrder{
		Salt:          salt,
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       tokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          intent.Side,
		SignatureType: b.cfg.SignatureType,
		Signature:     sig,
		TimeInForce:   intent.TimeInForce,
		Intent:        intent,
	}, nil
}

// orderAmounts converts price and size into maker/taker base units. A BUY
// gives price*size USDC for size shares; a SELL is the mirror image.
func orderAmounts(side domain.OrderSide, price, size decimal.Decimal) (maker, taker string, err error) {
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return "", "", fmt.Errorf("polymarket/order: %w: price %s outside (0,1)", domain.ErrInvalidOrder, price)
	}
	shares := size.RoundDown(sizeDecimals)
	if !shares.IsPositive() {
		return "", "", fmt.Errorf("polymarket/order: %w: size %s not positive", domain.ErrInvalidOrder, size)
	}
	notional := shares.Mul(price).RoundDown(amountDecimals)

	switch side {
	case domain.OrderSideBuy:
		return toBaseUnits(notional), toBaseUnits(shares), nil
	case domain.OrderSideSell:
		return toBaseUnits(shares), toBaseUnits(notional), nil
	default:
		return "", "", fmt.Errorf("polymarket/order: %w: side %q", domain.ErrInvalidOrder, side)
	}
}

func toBaseUnits(d decimal.Decimal) string {
	return d.Shift(collateralDecimals).BigInt().String()
}
