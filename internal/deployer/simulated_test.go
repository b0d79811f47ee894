package deployer

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/chain"
	"github.com/Bidon15/pooldeploy/internal/chain/chaintest"
)

func simulatedSequencer(t *testing.T, reverting ...string) (*Sequencer, *chaintest.Chain, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	chaintest.WritePoolArtifacts(t, dir, reverting...)

	store, err := artifacts.Open(dir)
	require.NoError(t, err)

	sim := chaintest.NewChain(t)
	out := &bytes.Buffer{}
	return NewSequencer(chain.NewBackend(sim.Client, sim.Signer), store, out), sim, out
}

func TestSimulated_PoolPlan(t *testing.T) {
	for _, mode := range []string{OracleKeeper, OracleDirect} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			seq, sim, out := simulatedSequencer(t)

			result, err := seq.Run(ctx, poolPlan(t, mode), nil)
			require.NoError(t, err)

			_, addrs := parseLines(t, out.String())
			require.Len(t, addrs, len(result.Steps))

			seen := map[common.Address]bool{}
			for _, a := range addrs {
				assert.NotEqual(t, common.Address{}, a)
				assert.False(t, seen[a], "address %s logged twice", a.Hex())
				seen[a] = true
			}

			for _, step := range []string{StepToken, StepPool} {
				addr, _ := result.Address(step)
				code, err := sim.Client.CodeAt(ctx, addr, nil)
				require.NoError(t, err)
				assert.NotEmpty(t, code, "%s has code", step)
			}
		})
	}
}

func TestSimulated_OracleRevert(t *testing.T) {
	seq, _, out := simulatedSequencer(t, "OracleKeeper")

	_, err := seq.Run(context.Background(), poolPlan(t, OracleKeeper), nil)
	require.ErrorIs(t, err, chain.ErrReverted)

	labels, _ := parseLines(t, out.String())
	assert.Equal(t, []string{"USDC"}, labels)
}

func TestSimulated_RerunFreshAddresses(t *testing.T) {
	ctx := context.Background()
	seq, _, _ := simulatedSequencer(t)

	first, err := seq.Run(ctx, poolPlan(t, OracleKeeper), nil)
	require.NoError(t, err)
	second, err := seq.Run(ctx, poolPlan(t, OracleKeeper), nil)
	require.NoError(t, err)

	for _, step := range []string{StepToken, StepOracleKeeper, StepPool} {
		a, _ := first.Address(step)
		b, _ := second.Address(step)
		assert.NotEqual(t, a, b, step)
	}
}
