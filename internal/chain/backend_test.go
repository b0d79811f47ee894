package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/pooldeploy/internal/chain/chaintest"
)

func selectorAddress(sig string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(sig))[:4])
}

func TestBackend_Deploy(t *testing.T) {
	ctx := context.Background()
	sim := chaintest.NewChain(t)
	b := NewBackend(sim.Client, sim.Signer)

	token := chaintest.Contract(t, "MockERC20", chaintest.MockERC20ABI, chaintest.EchoSelectorBytecode)

	r1, err := b.Deploy(ctx, token, "USDC", "USDC", big.NewInt(18))
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, r1.Address)
	assert.NotEqual(t, common.Hash{}, r1.TxHash)
	assert.Positive(t, r1.BlockNumber)
	assert.Positive(t, r1.GasUsed)
	assert.Equal(t, crypto.CreateAddress(sim.Signer.Address(), 0), r1.Address)

	code, err := sim.Client.CodeAt(ctx, r1.Address, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	r2, err := b.Deploy(ctx, token, "USDC", "USDC", uint8(18))
	require.NoError(t, err)
	assert.NotEqual(t, r1.Address, r2.Address, "each deployment creates a new contract")
}

func TestBackend_DeployReverted(t *testing.T) {
	sim := chaintest.NewChain(t)
	b := NewBackend(sim.Client, sim.Signer)

	oracle := chaintest.Contract(t, "MockOracle", chaintest.MockOracleABI, chaintest.RevertBytecode)
	_, err := b.Deploy(context.Background(), oracle, big.NewInt(3600), common.HexToAddress("0x1"))
	require.ErrorIs(t, err, ErrReverted)
	assert.False(t, IsTransient(err))
}

func TestBackend_DeployArgErrors(t *testing.T) {
	sim := chaintest.NewChain(t)
	b := NewBackend(sim.Client, sim.Signer)
	token := chaintest.Contract(t, "MockERC20", chaintest.MockERC20ABI, chaintest.EchoSelectorBytecode)

	_, err := b.Deploy(context.Background(), token, "USDC", "USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument count mismatch")

	_, err = b.Deploy(context.Background(), token, "USDC", "USDC", 300)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}

func TestBackend_CallAddress(t *testing.T) {
	ctx := context.Background()
	sim := chaintest.NewChain(t)
	b := NewBackend(sim.Client, sim.Signer)

	pool := chaintest.Contract(t, "BasePool", chaintest.BasePoolABI, chaintest.EchoSelectorBytecode)
	r, err := b.Deploy(ctx, pool, common.HexToAddress("0xaa"), common.HexToAddress("0xbb"))
	require.NoError(t, err)

	pm, err := b.CallAddress(ctx, pool, r.Address, "position_manager_address")
	require.NoError(t, err)
	assert.Equal(t, selectorAddress("position_manager_address()"), pm)

	fund, err := b.CallAddress(ctx, pool, r.Address, "insurance_fund_address")
	require.NoError(t, err)
	assert.NotEqual(t, pm, fund)

	_, err = b.CallAddress(ctx, pool, r.Address, "owner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no method "owner"`)

	_, err = b.CallAddress(ctx, pool, common.HexToAddress("0xdead"), "position_manager_address")
	require.ErrorIs(t, err, ErrNoCode)
}

// priceClient answers gas price queries only.
type priceClient struct {
	Client
	price *big.Int
}

func (c priceClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return c.price, nil
}

func TestBackend_GasPrice(t *testing.T) {
	gwei := big.NewInt(1_000_000_000)

	tests := []struct {
		name      string
		suggested *big.Int
		cfg       GasConfig
		want      *big.Int
	}{
		{
			name:      "default bump",
			suggested: big.NewInt(10_000_000_000),
			cfg:       GasConfig{PriceBumpPercent: 50},
			want:      big.NewInt(15_000_000_000),
		},
		{
			name:      "floor applies",
			suggested: big.NewInt(100),
			cfg:       GasConfig{PriceBumpPercent: 50, MinGasPrice: new(big.Int).Mul(big.NewInt(2), gwei)},
			want:      big.NewInt(2_000_000_000),
		},
		{
			name:      "no bump",
			suggested: big.NewInt(7),
			cfg:       GasConfig{},
			want:      big.NewInt(7),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackend(priceClient{price: tt.suggested}, nil, WithGasConfig(tt.cfg))
			got, err := b.gasPrice(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestWithGasConfig_DefaultsFallback(t *testing.T) {
	b := NewBackend(nil, nil, WithGasConfig(GasConfig{PriceBumpPercent: 10}))
	assert.Equal(t, uint64(defaultFallbackGasLimit), b.gas.FallbackLimit)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"reverted", fmt.Errorf("deploy: %w", ErrReverted), false},
		{"zero address", ErrZeroAddress, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), false},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, true},
		{"http 429", fmt.Errorf("send: %w", rpc.HTTPError{StatusCode: 429}), true},
		{"http 400", rpc.HTTPError{StatusCode: 400}, false},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), true},
		{"nonce too low", errors.New("nonce too low"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
