package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"decimals","type":"uint8"}]},{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"}]`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestOpen_HardhatAndFoundryLayouts(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "contracts", "MockERC20.sol", "MockERC20.json"),
		`{"_format":"hh-sol-artifact-1","contractName":"MockERC20","sourceName":"contracts/MockERC20.sol","abi":`+tokenABI+`,"bytecode":"0x6001"}`)
	writeFile(t, filepath.Join(dir, "contracts", "MockERC20.sol", "MockERC20.dbg.json"),
		`{"_format":"hh-sol-dbg-1","buildInfo":"../../build-info/abc.json"}`)
	writeFile(t, filepath.Join(dir, "build-info", "abc.json"), `{"abi":"not really"}`)
	writeFile(t, filepath.Join(dir, "out", "BasePool.sol", "BasePool.json"),
		`{"abi":[],"bytecode":{"object":"0x6002","linkReferences":{}}}`)
	writeFile(t, filepath.Join(dir, "notes.json"), `{"hello":"world"}`)

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"BasePool", "MockERC20"}, s.Names())

	token, err := s.Contract("MockERC20")
	require.NoError(t, err)
	assert.Equal(t, "contracts/MockERC20.sol", token.Source)
	_, ok := token.ABI.Methods["decimals"]
	assert.True(t, ok)
	assert.Len(t, token.ABI.Constructor.Inputs, 3)

	code, err := token.DeployCode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, code)

	pool, err := s.Contract("BasePool")
	require.NoError(t, err)
	code, err = pool.DeployCode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x02}, code)
}

func TestOpen_InvalidABI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Broken.json"), `{"abi":[{"type":"function","inputs":[{"type":"uint999"}]}],"bytecode":"0x00"}`)

	_, err := Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken.json")
}

func TestContract_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "Oracle.json"), `{"abi":[],"bytecode":"0x00"}`)
	writeFile(t, filepath.Join(dir, "b", "Oracle.json"), `{"abi":[],"bytecode":"0x00"}`)

	s, err := Open(dir)
	require.NoError(t, err)

	_, err = s.Contract("Oracle")
	require.ErrorIs(t, err, ErrAmbiguous)

	_, err = s.Contract("Missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBytecode_Bytes(t *testing.T) {
	tests := []struct {
		name    string
		code    Bytecode
		want    []byte
		wantErr error
	}{
		{name: "prefixed", code: "0x60ff", want: []byte{0x60, 0xff}},
		{name: "bare", code: "60ff", want: []byte{0x60, 0xff}},
		{name: "empty", code: "0x", wantErr: ErrNoBytecode},
		{name: "missing", code: "", wantErr: ErrNoBytecode},
		{name: "unlinked", code: "0x73__$4f1b2c$__6000", wantErr: ErrUnlinkedCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.code.Bytes()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequire_ReportsAllMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "MockERC20.json"), `{"abi":[],"bytecode":"0x6001"}`)
	writeFile(t, filepath.Join(dir, "IOracle.json"), `{"abi":[],"bytecode":"0x"}`)

	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.Require("MockERC20"))

	err = s.Require("MockERC20", "IOracle", "BasePool", "OracleKeeper")
	require.ErrorIs(t, err, ErrMissingSource)
	assert.Contains(t, err.Error(), "IOracle")
	assert.Contains(t, err.Error(), "BasePool")
	assert.Contains(t, err.Error(), "OracleKeeper")
	assert.NotContains(t, err.Error(), "MockERC20")
}

func TestWrite_RoundTripsThroughOpen(t *testing.T) {
	dir := t.TempDir()

	path, err := Write(dir, "contracts/MockERC20.sol", "MockERC20", json.RawMessage(tokenABI), "6080")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "contracts", "MockERC20.sol", "MockERC20.json"), path)

	s, err := Open(dir)
	require.NoError(t, err)
	c, err := s.Contract("MockERC20")
	require.NoError(t, err)
	assert.Equal(t, Bytecode("0x6080"), c.Bytecode)
	assert.Equal(t, "contracts/MockERC20.sol", c.Source)
}
