// Package chaintest provides an in-process chain and tiny hand-assembled
// contracts for tests that exercise real transactions.
package chaintest

import (
	"context"
	"encoding/hex"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/signer"
)

// EchoSelectorBytecode deploys a contract that answers every call with its
// own 4-byte selector as a 32-byte word. Decoded as an address the result
// is non-zero and differs per method. Constructor arguments appended to it
// are ignored.
const EchoSelectorBytecode = "0x600e80600b6000396000f3" + "60003560e01c60005260206000f3"

// RevertBytecode is creation code whose constructor always reverts.
const RevertBytecode = "0x60006000fd"

// Contract ABIs of the pool suite, reduced to what deployment touches.
const (
	MockERC20ABI    = `[{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"decimals","type":"uint8"}]}]`
	OracleKeeperABI = `[{"type":"constructor","inputs":[{"name":"staleness","type":"uint256"},{"name":"usdc","type":"address"},{"name":"base","type":"address"},{"name":"quote","type":"address"}]},{"type":"function","name":"getMockAddress","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"address"}]}]`
	MockOracleABI   = `[{"type":"constructor","inputs":[{"name":"staleness","type":"uint256"},{"name":"token","type":"address"}]}]`
	BasePoolABI     = `[{"type":"constructor","inputs":[{"name":"usdc","type":"address"},{"name":"oracle","type":"address"}]},{"type":"function","name":"position_manager_address","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},{"type":"function","name":"insurance_fund_address","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}]`
)

// PoolABIs maps contract names to their ABIs.
var PoolABIs = map[string]string{
	"MockERC20":    MockERC20ABI,
	"OracleKeeper": OracleKeeperABI,
	"MockOracle":   MockOracleABI,
	"BasePool":     BasePoolABI,
}

// Chain is a simulated chain with one funded deployer account. Every sent
// transaction is mined immediately.
type Chain struct {
	Backend *simulated.Backend
	Client  simulated.Client
	Signer  *signer.LocalSigner
	ChainID *big.Int
	// KeyHex is the funded account's private key, hex encoded.
	KeyHex string
}

// instantClient mines a block after each accepted transaction.
type instantClient struct {
	simulated.Client
	backend *simulated.Backend
}

func (c *instantClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	c.backend.Commit()
	return nil
}

// NewChain starts a simulated chain and closes it when the test ends.
func NewChain(t testing.TB) *Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	funds, _ := new(big.Int).SetString("1000000000000000000000", 10)
	backend := simulated.NewBackend(types.GenesisAlloc{
		addr: {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	client := &instantClient{Client: backend.Client(), backend: backend}
	chainID, err := client.ChainID(context.Background())
	require.NoError(t, err)

	keyHex := hex.EncodeToString(crypto.FromECDSA(key))
	s, err := signer.NewLocalSigner(keyHex, chainID)
	require.NoError(t, err)

	return &Chain{Backend: backend, Client: client, Signer: s, ChainID: chainID, KeyHex: keyHex}
}

// Contract builds an in-memory artifact.
func Contract(t testing.TB, name, abiJSON, bytecode string) *artifacts.Contract {
	t.Helper()
	dir := t.TempDir()
	WriteArtifact(t, dir, name, abiJSON, bytecode)

	store, err := artifacts.Open(dir)
	require.NoError(t, err)
	c, err := store.Contract(name)
	require.NoError(t, err)
	return c
}

// WriteArtifact writes a Hardhat-style artifact for name under dir.
func WriteArtifact(t testing.TB, dir, name, abiJSON, bytecode string) {
	t.Helper()
	_, err := artifacts.Write(dir, filepath.ToSlash(filepath.Join("contracts", name+".sol")), name, []byte(abiJSON), bytecode)
	require.NoError(t, err)
}

// WritePoolArtifacts writes the pool suite with echo contracts. Contracts
// named in reverting get a constructor that reverts.
func WritePoolArtifacts(t testing.TB, dir string, reverting ...string) {
	t.Helper()
	revert := make(map[string]bool, len(reverting))
	for _, name := range reverting {
		revert[name] = true
	}
	for name, abiJSON := range PoolABIs {
		code := EchoSelectorBytecode
		if revert[name] {
			code = RevertBytecode
		}
		WriteArtifact(t, dir, name, abiJSON, code)
	}
}
