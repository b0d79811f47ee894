package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// RemoteSigner signs through a JSON-RPC endpoint implementing
// eth_signTransaction, such as clef or a hosted signing service.
type RemoteSigner struct {
	client  *rpc.Client
	address common.Address
	chainID *big.Int
}

// DialRemoteSigner connects to a remote signer. A non-empty apiKey is sent
// as the X-API-Key header on every request.
func DialRemoteSigner(ctx context.Context, endpoint, apiKey string, address common.Address, chainID *big.Int) (*RemoteSigner, error) {
	var opts []rpc.ClientOption
	if apiKey != "" {
		opts = append(opts, rpc.WithHeader("X-API-Key", apiKey))
	}
	client, err := rpc.DialOptions(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial remote signer: %w", err)
	}
	return &RemoteSigner{client: client, address: address, chainID: new(big.Int).Set(chainID)}, nil
}

// Address returns the account the remote signer signs for.
func (s *RemoteSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain ID for transaction signing.
func (s *RemoteSigner) ChainID() *big.Int {
	return s.chainID
}

// Close releases the underlying connection.
func (s *RemoteSigner) Close() {
	s.client.Close()
}

// SignTransaction asks the remote signer to sign tx and checks that the
// result is signed by the expected account.
func (s *RemoteSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	var result json.RawMessage
	if err := s.client.CallContext(ctx, &result, "eth_signTransaction", s.buildTransactionArgs(tx)); err != nil {
		return nil, fmt.Errorf("eth_signTransaction: %w", err)
	}

	raw, err := rawFromResult(result)
	if err != nil {
		return nil, err
	}

	var signedTx types.Transaction
	if err := signedTx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(s.chainID), &signedTx)
	if err != nil {
		return nil, fmt.Errorf("recover signer: %w", err)
	}
	if from != s.address {
		return nil, fmt.Errorf("remote signer signed as %s, expected %s", from.Hex(), s.address.Hex())
	}
	return &signedTx, nil
}

// rawFromResult accepts both a bare hex string and the {raw, tx} object
// returned by clef and geth.
func rawFromResult(result json.RawMessage) ([]byte, error) {
	var hex string
	if err := json.Unmarshal(result, &hex); err == nil {
		return decodeRaw(hex)
	}

	var obj struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(result, &obj); err != nil || obj.Raw == "" {
		return nil, fmt.Errorf("unexpected eth_signTransaction result: %s", string(result))
	}
	return decodeRaw(obj.Raw)
}

func decodeRaw(s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}

// buildTransactionArgs converts a go-ethereum transaction to JSON-RPC args.
func (s *RemoteSigner) buildTransactionArgs(tx *types.Transaction) txArgs {
	args := txArgs{
		From:    s.address,
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		ChainID: (*hexutil.Big)(s.chainID),
		To:      tx.To(),
	}
	if len(tx.Data()) > 0 {
		data := hexutil.Bytes(tx.Data())
		args.Data = &data
	}

	switch tx.Type() {
	case types.DynamicFeeTxType:
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	default:
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

// txArgs represents Ethereum transaction arguments for JSON-RPC.
type txArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

var _ TransactionSigner = (*RemoteSigner)(nil)
