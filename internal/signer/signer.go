// Package signer resolves the deployer's transaction signer from a network
// profile. Key material never comes from the config file: it is read from
// the environment, decrypted from a keystore, or held by a remote signer.
package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Bidon15/pooldeploy/internal/config"
)

var (
	ErrSecretMissing   = errors.New("signer: secret not set in environment")
	ErrProductionChain = errors.New("signer: development keys refused on production chain")
	ErrUnknownType     = errors.New("signer: unknown signer type")
)

// TransactionSigner signs transactions for a single deployer account.
type TransactionSigner interface {
	// Address returns the account transactions are sent from.
	Address() common.Address
	// ChainID returns the chain id used for replay protection.
	ChainID() *big.Int
	// SignTransaction returns a signed copy of tx.
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// Resolve builds the signer described by src for the given chain.
func Resolve(ctx context.Context, src config.SignerConfig, chainID *big.Int) (TransactionSigner, error) {
	switch src.Type {
	case config.SignerEnv:
		key, err := lookupSecret(src.KeyEnv)
		if err != nil {
			return nil, err
		}
		return NewLocalSigner(key, chainID)

	case config.SignerKeystore:
		password, err := lookupSecret(src.PasswordEnv)
		if err != nil {
			return nil, err
		}
		return NewKeystoreSigner(src.KeystorePath, password, chainID)

	case config.SignerRemote:
		apiKey := ""
		if src.APIKeyEnv != "" {
			var err error
			if apiKey, err = lookupSecret(src.APIKeyEnv); err != nil {
				return nil, err
			}
		}
		if !common.IsHexAddress(src.Address) {
			return nil, fmt.Errorf("remote signer address %q is not a hex address", src.Address)
		}
		return DialRemoteSigner(ctx, src.Endpoint, apiKey, common.HexToAddress(src.Address), chainID)

	case config.SignerDev:
		return NewDevSigner(src.DevAccount, chainID)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, src.Type)
	}
}

func lookupSecret(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no variable name configured", ErrSecretMissing)
	}
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretMissing, name)
	}
	return strings.TrimSpace(v), nil
}
