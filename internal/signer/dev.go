package signer

import (
	"fmt"
	"math/big"

	"github.com/Bidon15/pooldeploy/internal/config"
)

// DevPrivateKeys are the deterministic accounts prefunded by hardhat node
// and anvil, derived from "test test test test test test test test test
// test test junk". They are public: anything sent to them on a real
// network is lost.
var DevPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", // 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", // 0x70997970C51812dc3A010C7d01b50e0d17dc79C8
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a", // 0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6", // 0x90F79bf6EB2c4f870365E785982E1f101E93b906
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a", // 0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65
}

// NewDevSigner returns a signer for the given development account. It
// refuses production chain ids.
func NewDevSigner(account int, chainID *big.Int) (*LocalSigner, error) {
	if chainID.IsUint64() && config.IsProductionChain(chainID.Uint64()) {
		return nil, fmt.Errorf("%w: %s (chain_id=%s)", ErrProductionChain, config.ChainName(chainID.Uint64()), chainID)
	}
	if account < 0 || account >= len(DevPrivateKeys) {
		return nil, fmt.Errorf("dev account %d out of range [0, %d)", account, len(DevPrivateKeys))
	}
	return NewLocalSigner(DevPrivateKeys[account], chainID)
}
