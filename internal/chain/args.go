package chain

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// coerceArgs converts integer arguments to the Go types the ABI packer
// expects for each input, so callers can pass *big.Int or plain ints
// regardless of the declared width.
func coerceArgs(inputs abi.Arguments, args []interface{}) ([]interface{}, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("argument count mismatch: got %d, want %d", len(args), len(inputs))
	}
	out := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := coerce(inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, inputs[i].Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, v interface{}) (interface{}, error) {
	if t.T != abi.IntTy && t.T != abi.UintTy {
		return v, nil
	}

	n, ok := toBig(v)
	if !ok {
		return v, nil
	}

	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for %s", n, t)
	}
	if t.Size > 64 {
		return n, nil
	}

	target := reflect.New(t.GetType()).Elem()
	switch target.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !n.IsUint64() || target.OverflowUint(n.Uint64()) {
			return nil, fmt.Errorf("value %s overflows %s", n, t)
		}
		target.SetUint(n.Uint64())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !n.IsInt64() || target.OverflowInt(n.Int64()) {
			return nil, fmt.Errorf("value %s overflows %s", n, t)
		}
		target.SetInt(n.Int64())
	default:
		// odd widths such as uint24 are packed from *big.Int
		return n, nil
	}
	return target.Interface(), nil
}

func toBig(v interface{}) (*big.Int, bool) {
	if b, ok := v.(*big.Int); ok {
		if b == nil {
			return nil, false
		}
		return b, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), true
	}
	return nil, false
}
