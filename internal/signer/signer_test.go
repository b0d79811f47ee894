package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/pooldeploy/internal/config"
)

var testChainID = big.NewInt(31337)

func testTx() *types.Transaction {
	return types.NewContractCreation(3, big.NewInt(0), 21000, big.NewInt(2_000_000_000), []byte{0x60, 0x00})
}

func senderOf(t *testing.T, tx *types.Transaction) common.Address {
	t.Helper()
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	return from
}

func TestLocalSigner(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "bare hex", key: DevPrivateKeys[1]},
		{name: "0x prefix", key: "0x" + DevPrivateKeys[1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalSigner(tt.key, testChainID)
			require.NoError(t, err)
			assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), s.Address())
			assert.Equal(t, testChainID, s.ChainID())

			signed, err := s.SignTransaction(context.Background(), testTx())
			require.NoError(t, err)
			assert.Equal(t, s.Address(), senderOf(t, signed))
		})
	}

	_, err := NewLocalSigner("not-hex", testChainID)
	require.Error(t, err)
}

func TestDevSigner(t *testing.T) {
	s, err := NewDevSigner(0, testChainID)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	for _, id := range []int64{1, 10, 137, 42161, 8453} {
		_, err := NewDevSigner(0, big.NewInt(id))
		require.ErrorIs(t, err, ErrProductionChain, "chain %d", id)
	}

	_, err = NewDevSigner(len(DevPrivateKeys), testChainID)
	require.Error(t, err)
}

func TestKeystoreSigner(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(pk.PublicKey),
		PrivateKey: pk,
	}
	keyJSON, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "deployer.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))

	s, err := NewKeystoreSigner(path, "hunter2", testChainID)
	require.NoError(t, err)
	assert.Equal(t, key.Address, s.Address())

	_, err = NewKeystoreSigner(path, "wrong", testChainID)
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("env signer", func(t *testing.T) {
		t.Setenv("TEST_DEPLOYER_KEY", DevPrivateKeys[2])
		s, err := Resolve(ctx, config.SignerConfig{Type: config.SignerEnv, KeyEnv: "TEST_DEPLOYER_KEY"}, testChainID)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), s.Address())
	})

	t.Run("env signer without variable", func(t *testing.T) {
		_, err := Resolve(ctx, config.SignerConfig{Type: config.SignerEnv, KeyEnv: "TEST_DEPLOYER_KEY_UNSET"}, testChainID)
		require.ErrorIs(t, err, ErrSecretMissing)
		assert.Contains(t, err.Error(), "TEST_DEPLOYER_KEY_UNSET")
	})

	t.Run("keystore without password", func(t *testing.T) {
		_, err := Resolve(ctx, config.SignerConfig{Type: config.SignerKeystore, KeystorePath: "x.json", PasswordEnv: "TEST_PASSWORD_UNSET"}, testChainID)
		require.ErrorIs(t, err, ErrSecretMissing)
	})

	t.Run("dev signer", func(t *testing.T) {
		s, err := Resolve(ctx, config.SignerConfig{Type: config.SignerDev, DevAccount: 1}, testChainID)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), s.Address())
	})

	t.Run("remote signer with bad address", func(t *testing.T) {
		_, err := Resolve(ctx, config.SignerConfig{Type: config.SignerRemote, Endpoint: "http://127.0.0.1:1", Address: "nope"}, testChainID)
		require.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Resolve(ctx, config.SignerConfig{Type: "ledger"}, testChainID)
		require.ErrorIs(t, err, ErrUnknownType)
	})
}

// signingServer emulates a remote eth_signTransaction endpoint backed by
// key. When wrapRaw is set it answers in the {raw, tx} form.
func signingServer(t *testing.T, key string, wrapRaw bool) (*httptest.Server, *string) {
	t.Helper()
	local, err := NewLocalSigner(key, testChainID)
	require.NoError(t, err)

	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []txArgs        `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "eth_signTransaction" || len(req.Params) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		args := req.Params[0]
		var data []byte
		if args.Data != nil {
			data = *args.Data
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    uint64(args.Nonce),
			GasPrice: args.GasPrice.ToInt(),
			Gas:      uint64(args.Gas),
			To:       args.To,
			Value:    args.Value.ToInt(),
			Data:     data,
		})
		signed, err := local.SignTransaction(r.Context(), tx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		raw, _ := signed.MarshalBinary()

		var result interface{} = hexutil.Encode(raw)
		if wrapRaw {
			result = map[string]interface{}{"raw": hexutil.Encode(raw), "tx": signed}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &gotAPIKey
}

func TestRemoteSigner(t *testing.T) {
	ctx := context.Background()
	expected := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")

	for _, wrap := range []bool{false, true} {
		srv, gotAPIKey := signingServer(t, DevPrivateKeys[3], wrap)

		t.Setenv("TEST_SIGNER_API_KEY", "psk_test_123")
		s, err := Resolve(ctx, config.SignerConfig{
			Type:      config.SignerRemote,
			Endpoint:  srv.URL,
			APIKeyEnv: "TEST_SIGNER_API_KEY",
			Address:   expected.Hex(),
		}, testChainID)
		require.NoError(t, err)

		tx := testTx()
		signed, err := s.SignTransaction(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, "psk_test_123", *gotAPIKey)
		assert.Equal(t, expected, senderOf(t, signed))
		assert.Equal(t, tx.Nonce(), signed.Nonce())
		assert.Equal(t, tx.Data(), signed.Data())
		assert.Nil(t, signed.To())
		s.(*RemoteSigner).Close()
	}
}

func TestRemoteSigner_WrongAccount(t *testing.T) {
	srv, _ := signingServer(t, DevPrivateKeys[4], false)

	s, err := DialRemoteSigner(context.Background(), srv.URL, "", common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), testChainID)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SignTransaction(context.Background(), testTx())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote signer signed as")
}
