package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		in      interface{}
		want    interface{}
		wantErr string
	}{
		{name: "big to uint8", typ: "uint8", in: big.NewInt(18), want: uint8(18)},
		{name: "int to uint64", typ: "uint64", in: 7, want: uint64(7)},
		{name: "int to int32", typ: "int32", in: -5, want: int32(-5)},
		{name: "int to uint256", typ: "uint256", in: 3600, want: big.NewInt(3600)},
		{name: "odd width", typ: "uint24", in: 3000, want: big.NewInt(3000)},
		{name: "string untouched", typ: "string", in: "USDC", want: "USDC"},
		{name: "overflow", typ: "uint8", in: 256, wantErr: "overflows"},
		{name: "negative unsigned", typ: "uint256", in: big.NewInt(-1), wantErr: "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(mustType(t, tt.typ), tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
