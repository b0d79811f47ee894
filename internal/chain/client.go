// Package chain submits contract deployments and read-only calls to an
// EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the subset of the RPC client the deployer needs. It is
// satisfied by *ethclient.Client and by the simulated backend's client.
type Client interface {
	bind.DeployBackend
	ethereum.GasPricer
	ethereum.GasEstimator
	ethereum.TransactionSender
	ethereum.ContractCaller

	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dial connects to rpcURL and returns the client with its chain id.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("get chain ID from %s: %w", rpcURL, err)
	}
	return client, chainID, nil
}

var _ Client = (*ethclient.Client)(nil)
