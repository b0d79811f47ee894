package deployer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/chain"
)

// ContractBackend deploys and calls contracts. *chain.Backend implements it.
type ContractBackend interface {
	Deploy(ctx context.Context, c *artifacts.Contract, args ...interface{}) (*chain.Receipt, error)
	CallAddress(ctx context.Context, c *artifacts.Contract, at common.Address, method string, args ...interface{}) (common.Address, error)
}

// ContractSource looks up compiled contracts by name. *artifacts.Store
// implements it.
type ContractSource interface {
	Contract(name string) (*artifacts.Contract, error)
}

// Env is what a step sees while it runs: the chain and the addresses
// produced by earlier steps.
type Env struct {
	backend   ContractBackend
	contracts ContractSource
	addresses map[string]common.Address
}

func newEnv(backend ContractBackend, contracts ContractSource) *Env {
	return &Env{
		backend:   backend,
		contracts: contracts,
		addresses: make(map[string]common.Address),
	}
}

// Address returns the address produced by a completed step.
func (e *Env) Address(step string) common.Address {
	return e.addresses[step]
}

// Deploy deploys the named artifact with constructor args.
func (e *Env) Deploy(ctx context.Context, contract string, args ...interface{}) (Outcome, error) {
	c, err := e.contracts.Contract(contract)
	if err != nil {
		return Outcome{}, err
	}
	r, err := e.backend.Deploy(ctx, c, args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("deploy %s: %w", contract, err)
	}
	hash := r.TxHash
	return Outcome{
		Address:     r.Address,
		TxHash:      &hash,
		BlockNumber: r.BlockNumber,
		GasUsed:     r.GasUsed,
	}, nil
}

// CallAddress reads an address from the contract deployed by step, using
// the ABI of the named artifact.
func (e *Env) CallAddress(ctx context.Context, contract, step, method string, args ...interface{}) (Outcome, error) {
	c, err := e.contracts.Contract(contract)
	if err != nil {
		return Outcome{}, err
	}
	at, ok := e.addresses[step]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: no address for step %s", ErrUnknownDependency, step)
	}
	addr, err := e.backend.CallAddress(ctx, c, at, method, args...)
	if err != nil {
		return Outcome{}, fmt.Errorf("call %s.%s: %w", contract, method, err)
	}
	return Outcome{Address: addr}, nil
}
