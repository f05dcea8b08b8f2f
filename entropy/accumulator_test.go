package entropy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/types"
)

func newTestAccumulator(t *testing.T) (*Accumulator, *chain.Simulated) {
	t.Helper()
	sim := chain.NewSimulated(1000)
	sim.Advance(10)
	acc := New(sim, common.HexToAddress("0x01"), logging.Logger("test"))
	return acc, sim
}

func TestAccumulateOncePerBlock(t *testing.T) {
	ctx := context.Background()
	acc, _ := newTestAccumulator(t)
	call := types.Call{Caller: common.HexToAddress("0xaa"), GasRemaining: 100000}

	for i := 0; i < 3; i++ {
		require.NoError(t, acc.Accumulate(ctx, call))
	}

	stats, err := acc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Contributions)
	assert.Equal(t, uint64(10), stats.LastBlock)
	assert.Equal(t, uint64(0), stats.BlocksSinceLast)
}

func TestAccumulateAcrossBlocks(t *testing.T) {
	ctx := context.Background()
	acc, sim := newTestAccumulator(t)
	call := types.Call{Caller: common.HexToAddress("0xaa")}

	require.NoError(t, acc.Accumulate(ctx, call))
	before := acc.Value()

	sim.Advance(1)
	require.NoError(t, acc.Accumulate(ctx, call))
	after := acc.Value()

	assert.NotEqual(t, before, after)

	sim.Advance(5)
	require.NoError(t, acc.Accumulate(ctx, call))

	stats, err := acc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Contributions)
	assert.Equal(t, uint64(16), stats.LastBlock)
}

func TestAccumulatorValueUnchangedBySameBlockCalls(t *testing.T) {
	ctx := context.Background()
	acc, _ := newTestAccumulator(t)

	require.NoError(t, acc.Accumulate(ctx, types.Call{Caller: common.HexToAddress("0x01")}))
	v := acc.Value()

	// A second caller in the same block must not move the state.
	require.NoError(t, acc.Accumulate(ctx, types.Call{Caller: common.HexToAddress("0x02")}))
	assert.Equal(t, v, acc.Value())
}

func TestAccumulatorSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	acc, sim := newTestAccumulator(t)
	call := types.Call{Caller: common.HexToAddress("0xaa")}

	require.NoError(t, acc.Accumulate(ctx, call))
	sim.Advance(1)
	require.NoError(t, acc.Accumulate(ctx, call))

	snap, err := acc.Snapshot()
	require.NoError(t, err)

	restored := New(sim, common.HexToAddress("0x01"), logging.Logger("test"))
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, acc.Value(), restored.Value())
	origStats, err := acc.Stats(ctx)
	require.NoError(t, err)
	restoredStats, err := restored.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, origStats, restoredStats)
}

func TestAccumulatorsDivergeByIdentity(t *testing.T) {
	sim := chain.NewSimulated(1000)
	sim.Advance(10)
	a := New(sim, common.HexToAddress("0x01"), logging.Logger("test"))
	b := New(sim, common.HexToAddress("0x02"), logging.Logger("test"))
	assert.NotEqual(t, a.Value(), b.Value())
}
