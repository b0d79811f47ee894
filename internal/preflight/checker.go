// Package preflight provides pre-deployment validation checks.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Bidon15/pooldeploy/internal/config"
)

// DefaultTimeout is the default timeout for RPC calls.
const DefaultTimeout = 10 * time.Second

var ErrChecksFailed = errors.New("preflight: checks failed")

// CheckName identifies a specific pre-flight check.
type CheckName string

const (
	CheckRPCReachable    CheckName = "rpc_reachable"
	CheckChainIDMatch    CheckName = "chain_id_match"
	CheckDeployerBalance CheckName = "deployer_balance"
	CheckArtifacts       CheckName = "artifacts_present"
)

// CheckResult represents the result of a single pre-flight check.
type CheckResult struct {
	Name    CheckName              `json:"name"`
	Passed  bool                   `json:"passed"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ChainReader is the RPC surface the checks need.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// DialFunc opens a connection to rpcURL. The returned func releases it.
type DialFunc func(ctx context.Context, rpcURL string) (ChainReader, func(), error)

// ArtifactChecker verifies that compiled contracts are available.
// *artifacts.Store implements it.
type ArtifactChecker interface {
	Require(names ...string) error
}

// Request contains the parameters for pre-flight checks.
type Request struct {
	Network string
	RPCURL  string
	// ChainID is the expected chain id. Zero skips the comparison.
	ChainID  uint64
	Deployer common.Address
	// RequiredWei overrides the default funding requirement.
	RequiredWei *big.Int
	// Artifacts and Contracts, when set, check that every contract the
	// plan deploys has been compiled.
	Artifacts ArtifactChecker
	Contracts []string
}

// Report contains the results of all pre-flight checks.
type Report struct {
	OK                 bool          `json:"ok"`
	Network            string        `json:"network"`
	ChainID            uint64        `json:"chain_id,omitempty"`
	Checks             []CheckResult `json:"checks"`
	DeployerAddress    string        `json:"deployer_address"`
	RequiredFundingETH string        `json:"required_funding_eth"`
	CurrentBalanceETH  string        `json:"current_balance_eth,omitempty"`
}

// Err returns nil when every check passed, otherwise an error naming the
// failed checks.
func (r *Report) Err() error {
	if r.OK {
		return nil
	}
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
	}
	return fmt.Errorf("%w: %s", ErrChecksFailed, strings.Join(failed, "; "))
}

// Checker performs pre-flight validation checks.
type Checker struct {
	timeout time.Duration
	dial    DialFunc
}

// NewChecker creates a new pre-flight checker.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultTimeout,
		dial:    dialEthclient,
	}
}

// WithTimeout sets a custom timeout for RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// WithDialer replaces how the RPC endpoint is reached.
func (c *Checker) WithDialer(dial DialFunc) *Checker {
	c.dial = dial
	return c
}

func dialEthclient(ctx context.Context, rpcURL string) (ChainReader, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// RunChecks performs all pre-flight checks and returns the results.
func (c *Checker) RunChecks(ctx context.Context, req *Request) (*Report, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := &Report{
		OK:              true,
		Network:         req.Network,
		ChainID:         req.ChainID,
		Checks:          make([]CheckResult, 0, 4),
		DeployerAddress: req.Deployer.Hex(),
	}

	requiredWei := req.RequiredWei
	if requiredWei == nil {
		requiredWei = RequiredFunding(req.ChainID)
	}
	report.RequiredFundingETH = weiToETHString(requiredWei)

	if req.Artifacts != nil && len(req.Contracts) > 0 {
		artifactResult := checkArtifacts(req.Artifacts, req.Contracts)
		report.add(artifactResult)
	}

	client, closeFn, reachableResult := c.checkRPCReachable(rpcCtx, req.RPCURL)
	report.add(reachableResult)
	if !reachableResult.Passed {
		return report, nil
	}
	defer closeFn()

	report.add(c.checkChainIDMatch(rpcCtx, client, req.ChainID))

	balanceResult := c.checkDeployerBalance(rpcCtx, client, req.Deployer, requiredWei)
	report.add(balanceResult)
	if haveETH, ok := balanceResult.Details["have_eth"].(string); ok {
		report.CurrentBalanceETH = haveETH
	}

	return report, nil
}

func (r *Report) add(result CheckResult) {
	r.Checks = append(r.Checks, result)
	if !result.Passed {
		r.OK = false
	}
}

// validateRequest validates the pre-flight request parameters.
func (c *Checker) validateRequest(req *Request) error {
	if req.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if req.Deployer == (common.Address{}) {
		return fmt.Errorf("deployer address is required")
	}
	return nil
}

func checkArtifacts(store ArtifactChecker, contracts []string) CheckResult {
	result := CheckResult{Name: CheckArtifacts}
	if err := store.Require(contracts...); err != nil {
		result.Message = err.Error()
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%d contracts compiled", len(contracts))
	result.Details = map[string]interface{}{"contracts": contracts}
	return result
}

// checkRPCReachable verifies the RPC endpoint is reachable.
func (c *Checker) checkRPCReachable(ctx context.Context, rpcURL string) (ChainReader, func(), CheckResult) {
	result := CheckResult{Name: CheckRPCReachable}

	client, closeFn, err := c.dial(ctx, rpcURL)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to connect to RPC: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return nil, nil, result
	}

	if _, err := client.ChainID(ctx); err != nil {
		closeFn()
		result.Message = fmt.Sprintf("RPC connection failed: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return nil, nil, result
	}

	result.Passed = true
	result.Message = "Connected to RPC successfully"
	return client, closeFn, result
}

// checkChainIDMatch verifies the chain ID matches the expected value.
func (c *Checker) checkChainIDMatch(ctx context.Context, client ChainReader, expectedChainID uint64) CheckResult {
	result := CheckResult{Name: CheckChainIDMatch}

	actualChainID, err := client.ChainID(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get chain ID: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return result
	}

	if expectedChainID == 0 {
		result.Passed = true
		result.Message = fmt.Sprintf("No chain ID configured, endpoint reports %d (%s)", actualChainID.Uint64(), config.ChainName(actualChainID.Uint64()))
		result.Details = map[string]interface{}{"actual": actualChainID.Uint64()}
		return result
	}

	if actualChainID.Cmp(new(big.Int).SetUint64(expectedChainID)) != 0 {
		result.Message = fmt.Sprintf("Chain ID mismatch: expected %d, got %d", expectedChainID, actualChainID.Uint64())
		result.Details = map[string]interface{}{
			"expected": expectedChainID,
			"actual":   actualChainID.Uint64(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Chain ID %d (%s) confirmed", expectedChainID, config.ChainName(expectedChainID))
	result.Details = map[string]interface{}{"chain_id": expectedChainID}
	return result
}

// checkDeployerBalance verifies the deployer has sufficient funds.
func (c *Checker) checkDeployerBalance(ctx context.Context, client ChainReader, deployer common.Address, requiredWei *big.Int) CheckResult {
	result := CheckResult{Name: CheckDeployerBalance}

	balance, err := client.BalanceAt(ctx, deployer, nil)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get deployer balance: %v", err)
		result.Details = map[string]interface{}{"error": err.Error()}
		return result
	}

	haveETH := weiToETHString(balance)
	needETH := weiToETHString(requiredWei)
	result.Details = map[string]interface{}{
		"have_wei": balance.String(),
		"need_wei": requiredWei.String(),
		"have_eth": haveETH,
		"need_eth": needETH,
	}

	if balance.Cmp(requiredWei) < 0 {
		result.Message = fmt.Sprintf("Insufficient deployer balance: have %s, need %s", haveETH, needETH)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Deployer has sufficient balance: %s", haveETH)
	return result
}

// RequiredFunding returns the default minimum deployer balance in wei for
// a chain: 1 native token on production chains, 0.1 elsewhere.
func RequiredFunding(chainID uint64) *big.Int {
	if config.IsProductionChain(chainID) {
		return big.NewInt(1e18)
	}
	return big.NewInt(1e17)
}

// weiToETHString converts wei to a human-readable string with 4 decimals.
func weiToETHString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	weiFloat := new(big.Float).SetInt(wei)
	ethFloat := new(big.Float).Quo(weiFloat, big.NewFloat(1e18))
	return ethFloat.Text('f', 4)
}
