package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/signer"
)

const defaultFallbackGasLimit = 10_000_000

var (
	ErrReverted    = errors.New("chain: transaction reverted")
	ErrZeroAddress = errors.New("chain: zero address")
	ErrNoCode      = errors.New("chain: no contract code at address")
	ErrEmptyResult = errors.New("chain: call returned no data")
)

// GasConfig tunes gas limit and price selection.
type GasConfig struct {
	// FallbackLimit is used when estimation fails.
	FallbackLimit uint64
	// PriceBumpPercent is added on top of the suggested gas price.
	PriceBumpPercent int64
	// MinGasPrice is the lowest gas price ever sent. Nil means no floor.
	MinGasPrice *big.Int
}

// Receipt describes a confirmed contract creation.
type Receipt struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Backend deploys and calls contracts as a single signer.
type Backend struct {
	client Client
	signer signer.TransactionSigner
	gas    GasConfig
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithGasConfig overrides the default gas settings.
func WithGasConfig(cfg GasConfig) Option {
	return func(b *Backend) {
		if cfg.FallbackLimit == 0 {
			cfg.FallbackLimit = defaultFallbackGasLimit
		}
		b.gas = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// NewBackend creates a Backend sending transactions signed by s.
func NewBackend(client Client, s signer.TransactionSigner, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		signer: s,
		gas: GasConfig{
			FallbackLimit:    defaultFallbackGasLimit,
			PriceBumpPercent: 50,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// From returns the deployer address.
func (b *Backend) From() common.Address {
	return b.signer.Address()
}

// Deploy creates contract c with the given constructor arguments and
// blocks until the creation is mined.
func (b *Backend) Deploy(ctx context.Context, c *artifacts.Contract, args ...interface{}) (*Receipt, error) {
	bytecode, err := c.DeployCode()
	if err != nil {
		return nil, err
	}

	packed, err := coerceArgs(c.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", c.Name, err)
	}
	input, err := c.ABI.Pack("", packed...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor args: %w", c.Name, err)
	}
	data := append(append([]byte{}, bytecode...), input...)

	from := b.signer.Address()
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := b.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		gasLimit = b.gas.FallbackLimit
		b.logger.Warn("gas estimation failed, using default",
			slog.String("contract", c.Name),
			slog.Uint64("gas_limit", gasLimit),
			slog.String("error", err.Error()),
		)
	}
	gasLimit = gasLimit * 120 / 100

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := b.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	b.logger.Info("deployment submitted",
		slog.String("contract", c.Name),
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)

	receipt, err := bind.WaitMined(ctx, b.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("wait for receipt of %s: %w", signedTx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s deployment in tx %s", ErrReverted, c.Name, signedTx.Hash().Hex())
	}
	if receipt.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s deployment in tx %s", ErrZeroAddress, c.Name, signedTx.Hash().Hex())
	}

	return &Receipt{
		Address:     receipt.ContractAddress,
		TxHash:      signedTx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// Call performs a read-only call of method on the contract at address and
// returns the unpacked outputs.
func (b *Backend) Call(ctx context.Context, c *artifacts.Contract, at common.Address, method string, args ...interface{}) ([]interface{}, error) {
	m, ok := c.ABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s has no method %q", c.Name, method)
	}

	packed, err := coerceArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.Name, method, err)
	}
	input, err := c.ABI.Pack(method, packed...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.Name, method, err)
	}

	out, err := b.client.CallContract(ctx, ethereum.CallMsg{
		From: b.signer.Address(),
		To:   &at,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", c.Name, method, err)
	}
	if len(out) == 0 {
		code, codeErr := b.client.CodeAt(ctx, at, nil)
		if codeErr == nil && len(code) == 0 {
			return nil, fmt.Errorf("%w: %s at %s", ErrNoCode, c.Name, at.Hex())
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrEmptyResult, c.Name, method)
	}

	results, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", c.Name, method, err)
	}
	return results, nil
}

// CallAddress calls a method returning a single address and rejects the
// zero address.
func (b *Backend) CallAddress(ctx context.Context, c *artifacts.Contract, at common.Address, method string, args ...interface{}) (common.Address, error) {
	results, err := b.Call(ctx, c, at, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(results) != 1 {
		return common.Address{}, fmt.Errorf("%s.%s returned %d values, want 1", c.Name, method, len(results))
	}
	addr, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s.%s returned %T, want address", c.Name, method, results[0])
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s.%s", ErrZeroAddress, c.Name, method)
	}
	return addr, nil
}

// gasPrice returns the suggested gas price bumped by the configured
// percentage and clamped to the floor.
func (b *Backend) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	boosted := new(big.Int).Mul(gasPrice, big.NewInt(100+b.gas.PriceBumpPercent))
	boosted.Div(boosted, big.NewInt(100))

	if b.gas.MinGasPrice != nil && boosted.Cmp(b.gas.MinGasPrice) < 0 {
		boosted = new(big.Int).Set(b.gas.MinGasPrice)
	}
	return boosted, nil
}
