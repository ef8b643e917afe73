// Package ctf talks to the Gnosis Conditional Tokens contract that settles
// Polymarket positions: outcome slot counts, position ids, ERC-1155
// balances and redemption.
package ctf

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// Backend is the subset of ethclient.Client the CTF client needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions for the account that sends them.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Config holds contract addresses and transaction tuning.
type Config struct {
	CTFAddress   string
	ProxyFactory string
	// UseProxy routes redemptions through the proxy wallet factory
	// (signature type 1). Balances are then read for Holder.
	UseProxy bool
	// Holder is the address whose positions are redeemed. Empty means the
	// signing address.
	Holder string

	FallbackGasLimit uint64
	// CallTimeout bounds each individual RPC request. The receipt wait as a
	// whole is bounded by ReceiptTimeout.
	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

func (c *Config) applyDefaults() {
	if c.CTFAddress == "" {
		c.CTFAddress = DefaultCTFAddress
	}
	if c.ProxyFactory == "" {
		c.ProxyFactory = DefaultProxyFactoryAddress
	}
	if c.FallbackGasLimit == 0 {
		c.FallbackGasLimit = 300_000
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.ReceiptPoll <= 0 {
		c.ReceiptPoll = 3 * time.Second
	}
}

// Client reads positions from and redeems against the CTF contract.
type Client struct {
	backend Backend
	signer  TxSigner
	cfg     Config
	ctf     common.Address
	factory common.Address
	holder  common.Address
	logger  *slog.Logger
}

// Dial connects to rpcURL and returns a Client using it.
func Dial(ctx context.Context, rpcURL string, signer TxSigner, cfg Config, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ctf: dial rpc: %w", err)
	}
	return New(ec, signer, cfg, logger), nil
}

// New creates a Client over an existing backend.
func New(backend Backend, signer TxSigner, cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	holder := signer.Address()
	if cfg.Holder != "" {
		holder = common.HexToAddress(cfg.Holder)
	}
	return &Client{
		backend: backend,
		signer:  signer,
		cfg:     cfg,
		ctf:     common.HexToAddress(cfg.CTFAddress),
		factory: common.HexToAddress(cfg.ProxyFactory),
		holder:  holder,
		logger:  logger.With(slog.String("component", "ctf")),
	}
}

// Holder returns the address whose balances are checked and redeemed.
func (c *Client) Holder() string {
	return c.holder.Hex()
}

// OutcomeSlotCount returns the number of outcomes of a prepared condition.
// Zero means the condition was never prepared.
func (c *Client) OutcomeSlotCount(ctx context.Context, conditionID string) (int, error) {
	cond, err := conditionBytes(conditionID)
	if err != nil {
		return 0, err
	}
	n, err := c.callUint(ctx, "getOutcomeSlotCount", cond)
	if err != nil {
		return 0, fmt.Errorf("ctf: getOutcomeSlotCount: %w", err)
	}
	if !n.IsInt64() || n.Int64() > 256 {
		return 0, fmt.Errorf("ctf: implausible outcome slot count %s", n)
	}
	return int(n.Int64()), nil
}

// PositionID derives the ERC-1155 id of the position for indexSet under a
// top-level collection, using the contract's own view functions.
func (c *Client) PositionID(ctx context.Context, collateral, conditionID string, indexSet *big.Int) (*big.Int, error) {
	cond, err := conditionBytes(conditionID)
	if err != nil {
		return nil, err
	}

	out, err := c.call(ctx, "getCollectionId", [32]byte{}, cond, indexSet)
	if err != nil {
		return nil, fmt.Errorf("ctf: getCollectionId: %w", err)
	}
	collectionID, ok := out[0].([32]byte)
	if !ok {
		return nil, fmt.Errorf("ctf: getCollectionId: unexpected result %T", out[0])
	}

	id, err := c.callUint(ctx, "getPositionId", common.HexToAddress(collateral), collectionID)
	if err != nil {
		return nil, fmt.Errorf("ctf: getPositionId: %w", err)
	}
	return id, nil
}

// BalanceOf returns the holder's balance of positionID.
func (c *Client) BalanceOf(ctx context.Context, positionID *big.Int) (*big.Int, error) {
	bal, err := c.callUint(ctx, "balanceOf", c.holder, positionID)
	if err != nil {
		return nil, fmt.Errorf("ctf: balanceOf: %w", err)
	}
	return bal, nil
}

// Redeem sends one redeemPositions transaction for the condition covering
// indexSets and waits for a successful receipt. It returns the tx hash.
func (c *Client) Redeem(ctx context.Context, collateral, conditionID string, indexSets []*big.Int) (string, error) {
	cond, err := conditionBytes(conditionID)
	if err != nil {
		return "", err
	}
	data, err := ctfABI.Pack("redeemPositions", common.HexToAddress(collateral), [32]byte{}, cond, indexSets)
	if err != nil {
		return "", fmt.Errorf("ctf: pack redeemPositions: %w", err)
	}

	to := c.ctf
	if c.cfg.UseProxy {
		data, err = proxyABI.Pack("proxy", []proxyCall{{
			TypeCode: proxyCallTypeCall,
			To:       c.ctf,
			Value:    big.NewInt(0),
			Data:     data,
		}})
		if err != nil {
			return "", fmt.Errorf("ctf: pack proxy: %w", err)
		}
		to = c.factory
	}

	tx, err := c.buildTx(ctx, to, data)
	if err != nil {
		return "", err
	}
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return "", fmt.Errorf("ctf: %w: %v", domain.ErrSigningFailed, err)
	}
	sendCtx, cancelSend := c.rpcContext(ctx)
	err = c.backend.SendTransaction(sendCtx, signed)
	cancelSend()
	if err != nil {
		return "", fmt.Errorf("ctf: send tx: %w", err)
	}

	txHash := signed.Hash().Hex()
	c.logger.InfoContext(ctx, "redeem transaction sent",
		slog.String("condition_id", conditionID),
		slog.String("tx", txHash),
		slog.Bool("proxy", c.cfg.UseProxy),
	)

	receiptCtx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()
	receipt, err := c.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return txHash, fmt.Errorf("ctf: wait receipt %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("ctf: tx reverted: %s", txHash)
	}
	return txHash, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// rpcContext derives the deadline for a single RPC request. The dialled
// transport carries no timeout of its own.
func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ctfABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	callCtx, cancel := c.rpcContext(ctx)
	defer cancel()
	raw, err := c.backend.CallContract(callCtx, ethereum.CallMsg{To: &c.ctf, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := ctfABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("empty result")
	}
	return out, nil
}

func (c *Client) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result %T", out[0])
	}
	return n, nil
}

// buildTx prepares a legacy transaction with a buffered gas price and
// estimate.
func (c *Client) buildTx(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := c.signer.Address()

	nonceCtx, cancel := c.rpcContext(ctx)
	nonce, err := c.backend.PendingNonceAt(nonceCtx, from)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ctf: nonce: %w", err)
	}

	priceCtx, cancel := c.rpcContext(ctx)
	gasPrice, err := c.backend.SuggestGasPrice(priceCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("ctf: gas price: %w", err)
	}
	// +10% for faster inclusion.
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(11)), big.NewInt(10))

	estimateCtx, cancel := c.rpcContext(ctx)
	gas, err := c.backend.EstimateGas(estimateCtx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	cancel()
	if err != nil {
		c.logger.WarnContext(ctx, "gas estimate failed, using fallback",
			slog.String("error", err.Error()),
			slog.Uint64("limit", c.cfg.FallbackGasLimit),
		)
		gas = c.cfg.FallbackGasLimit
	} else {
		gas = gas * 12 / 10
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// waitForReceipt polls for a transaction receipt until mined or ctx ends.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			pollCtx, cancel := c.rpcContext(ctx)
			receipt, err := c.backend.TransactionReceipt(pollCtx, txHash)
			cancel()
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

func conditionBytes(conditionID string) ([32]byte, error) {
	norm, err := domain.NormalizeConditionID(conditionID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ctf: %w", err)
	}
	var out [32]byte
	b, _ := hex.DecodeString(strings.TrimPrefix(norm, "0x"))
	copy(out[:], b)
	return out, nil
}
