package solc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/config"
)

const versionOutput = "solc, the solidity compiler commandline interface\nVersion: 0.8.9+commit.e5eed63a.Linux.g++\n"

const combinedOutput = `{
  "contracts": {
    "contracts/MockERC20.sol:MockERC20": {
      "abi": [{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"decimals","type":"uint8"}]}],
      "bin": "6080604052"
    },
    "contracts/pool/BasePool.sol:BasePool": {
      "abi": "[{\"type\":\"function\",\"name\":\"position_manager_address\",\"inputs\":[],\"outputs\":[{\"name\":\"\",\"type\":\"address\"}],\"stateMutability\":\"view\"}]",
      "bin": "6080"
    },
    "contracts/IOracle.sol:IOracle": {
      "abi": [],
      "bin": ""
    }
  },
  "version": "0.8.9+commit.e5eed63a.Linux.g++"
}`

type call struct {
	name string
	args []string
}

func fakeRunner(calls *[]call, version, compiled string, compileErr error) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		if len(args) == 1 && args[0] == "--version" {
			return []byte(version), nil
		}
		if compileErr != nil {
			return nil, compileErr
		}
		return []byte(compiled), nil
	}
}

func testSettings() config.CompilerConfig {
	return config.CompilerConfig{
		Version:   "0.8.9",
		Optimizer: config.OptimizerConfig{Enabled: true, Runs: 200},
		SolcPath:  "solc-0.8.9",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"MockERC20.sol", filepath.Join("pool", "BasePool.sol"), "README.md"} {
		p := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("// SPDX-License-Identifier: MIT"), 0o644))
	}
	return dir
}

func TestArgs(t *testing.T) {
	c := New(testSettings(), quietLogger())
	assert.Equal(t,
		[]string{"--combined-json", "abi,bin", "--base-path", ".", "--optimize", "--optimize-runs", "200", "a.sol"},
		c.Args([]string{"a.sol"}),
	)

	noOpt := testSettings()
	noOpt.Optimizer.Enabled = false
	c = New(noOpt, quietLogger())
	assert.NotContains(t, c.Args(nil), "--optimize")
}

func TestVersion(t *testing.T) {
	var calls []call
	c := New(testSettings(), quietLogger()).WithRunner(fakeRunner(&calls, versionOutput, "", nil))

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.8.9", v)
	assert.Equal(t, "solc-0.8.9", calls[0].name)

	c.WithRunner(fakeRunner(&calls, "garbage", "", nil))
	_, err = c.Version(context.Background())
	require.Error(t, err)
}

func TestCompile(t *testing.T) {
	src := writeSources(t)
	out := t.TempDir()

	var calls []call
	c := New(testSettings(), quietLogger()).WithRunner(fakeRunner(&calls, versionOutput, combinedOutput, nil))

	paths, err := c.Compile(context.Background(), src, out)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	require.Len(t, calls, 2)
	compileArgs := calls[1].args
	assert.Contains(t, compileArgs, filepath.Join(src, "MockERC20.sol"))
	assert.Contains(t, compileArgs, filepath.Join(src, "pool", "BasePool.sol"))
	assert.NotContains(t, compileArgs, filepath.Join(src, "README.md"))

	store, err := artifacts.Open(out)
	require.NoError(t, err)
	require.NoError(t, store.Require("MockERC20", "BasePool"))
	require.ErrorIs(t, store.Require("IOracle"), artifacts.ErrMissingSource)

	pool, err := store.Contract("BasePool")
	require.NoError(t, err)
	_, ok := pool.ABI.Methods["position_manager_address"]
	assert.True(t, ok, "string-encoded ABI is decoded")
	assert.Equal(t, "contracts/pool/BasePool.sol", pool.Source)
}

func TestCompile_VersionMismatch(t *testing.T) {
	var calls []call
	c := New(testSettings(), quietLogger()).WithRunner(fakeRunner(&calls, "Version: 0.8.20+commit.a1b79de6", combinedOutput, nil))

	_, err := c.Compile(context.Background(), writeSources(t), t.TempDir())
	require.ErrorIs(t, err, ErrVersionMismatch)
	assert.Len(t, calls, 1, "nothing is compiled with the wrong compiler")
}

func TestCompile_NoSources(t *testing.T) {
	var calls []call
	c := New(testSettings(), quietLogger()).WithRunner(fakeRunner(&calls, versionOutput, combinedOutput, nil))

	_, err := c.Compile(context.Background(), t.TempDir(), t.TempDir())
	require.ErrorIs(t, err, ErrNoSources)
}

func TestCompile_SolcError(t *testing.T) {
	var calls []call
	c := New(testSettings(), quietLogger()).WithRunner(fakeRunner(&calls, versionOutput, "", errors.New("exit status 1: ParserError: Expected ';'")))

	_, err := c.Compile(context.Background(), writeSources(t), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ParserError")
}

func TestParseCombinedJSON_Errors(t *testing.T) {
	_, err := ParseCombinedJSON([]byte("not json"))
	require.Error(t, err)

	_, err = ParseCombinedJSON([]byte(`{"contracts":{"NoColon":{"abi":[],"bin":""}}}`))
	require.Error(t, err)

	outputs, err := ParseCombinedJSON([]byte(`{"contracts":{"../../etc/X.sol:X":{"abi":[],"bin":"00"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "etc/X.sol", outputs[0].Source)
}

func TestExecRunner(t *testing.T) {
	_, err := execRunner(context.Background(), "pooldeploy-no-such-binary")
	require.Error(t, err)
}
