package seedring

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/entropy"
	"github.com/romulus-oracle/romulus/types"
)

var testCall = types.Call{Caller: common.HexToAddress("0xaa"), GasRemaining: 100000}

func testConfig() Config {
	return Config{
		Size:            4,
		HashesPerSeed:   10,
		RefreshInterval: 20,
		ConsumeCap:      3,
	}
}

func newTestRing(t *testing.T, cfg Config) (*Ring, *chain.Simulated) {
	t.Helper()
	sim := chain.NewSimulated(1000)
	sim.Advance(cfg.HashesPerSeed + 5)
	logger := logging.Logger("test")
	acc := entropy.New(sim, common.HexToAddress("0x01"), logger)
	ring := New(cfg, sim, acc, common.HexToAddress("0x01"), logger)
	return ring, sim
}

func TestGenerateNotEnoughHistory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	sim := chain.NewSimulated(1000)
	sim.Advance(cfg.HashesPerSeed - 1)
	logger := logging.Logger("test")
	acc := entropy.New(sim, common.HexToAddress("0x01"), logger)
	ring := New(cfg, sim, acc, common.HexToAddress("0x01"), logger)

	_, _, err := ring.Generate(ctx, testCall)
	require.ErrorIs(t, err, ErrNotEnoughHistory)

	sim.Advance(1)
	_, _, err = ring.Generate(ctx, testCall)
	require.NoError(t, err)
}

func TestGenerateAdvancesPositionAndWraps(t *testing.T) {
	ctx := context.Background()
	ring, sim := newTestRing(t, testConfig())

	seen := make(map[common.Hash]bool)
	for i := 0; i < 5; i++ {
		slot, seed, err := ring.Generate(ctx, testCall)
		require.NoError(t, err)
		assert.Equal(t, i%4, slot)
		assert.True(t, seed.Valid)
		assert.False(t, seen[seed.Hash], "duplicate seed hash")
		seen[seed.Hash] = true
		sim.Advance(1)
	}
}

func TestConsumeNoValidSeeds(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	sim := chain.NewSimulated(1000)
	sim.Advance(cfg.HashesPerSeed - 1)
	logger := logging.Logger("test")
	acc := entropy.New(sim, common.HexToAddress("0x01"), logger)
	ring := New(cfg, sim, acc, common.HexToAddress("0x01"), logger)

	// The chain is too young for the auto-refresh to rescue the empty ring.
	_, err := ring.Consume(ctx, testCall, nil)
	require.ErrorIs(t, err, ErrNoValidSeeds)
}

func TestFreshRingRefreshDue(t *testing.T) {
	ring, _ := newTestRing(t, testConfig())

	// A ring that never generated is due regardless of height; after the
	// first generation the interval gate applies.
	assert.True(t, ring.RefreshDue(0))
	assert.True(t, ring.RefreshDue(15))

	_, _, err := ring.Generate(context.Background(), testCall)
	require.NoError(t, err)
	assert.False(t, ring.RefreshDue(15))
	assert.True(t, ring.RefreshDue(15+testConfig().RefreshInterval))
}

func TestConsumeRecoversEmptyRing(t *testing.T) {
	ctx := context.Background()
	ring, _ := newTestRing(t, testConfig())

	// Enough history exists, so the first consume on an empty ring
	// generates its own seed.
	res, err := ring.Consume(ctx, testCall, nil)
	require.NoError(t, err)
	assert.True(t, res.Refreshed)
	assert.Equal(t, uint32(1), res.ConsumeCount)
}

func TestConsumeOldestFirst(t *testing.T) {
	ctx := context.Background()
	ring, sim := newTestRing(t, testConfig())

	// Three seeds at distinct heights; slot 0 is the oldest.
	for i := 0; i < 3; i++ {
		_, _, err := ring.Generate(ctx, testCall)
		require.NoError(t, err)
		sim.Advance(1)
	}

	res, err := ring.Consume(ctx, testCall, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Slot)

	// Drain slot 0 past the cap; consumption must move to slot 1.
	for res.Slot == 0 {
		res, err = ring.Consume(ctx, testCall, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, res.Slot)

	seed, err := ring.Seed(0)
	require.NoError(t, err)
	assert.False(t, seed.Valid)
	assert.Equal(t, uint32(3), seed.ConsumeCount)
}

func TestConsumeCapInvalidatesSeed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	ring, _ := newTestRing(t, cfg)

	_, _, err := ring.Generate(ctx, testCall)
	require.NoError(t, err)

	for i := uint32(1); i <= cfg.ConsumeCap; i++ {
		res, err := ring.Consume(ctx, testCall, nil)
		require.NoError(t, err)
		assert.Equal(t, i, res.ConsumeCount)
	}

	// Cap reached, the only seed is now invalid.
	_, err = ring.Consume(ctx, testCall, nil)
	require.ErrorIs(t, err, ErrNoValidSeeds)
}

func TestConsumeOutputsDistinct(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.ConsumeCap = 150
	ring, _ := newTestRing(t, cfg)

	_, _, err := ring.Generate(ctx, testCall)
	require.NoError(t, err)

	seen := make(map[common.Hash]bool)
	for i := 0; i < 100; i++ {
		res, err := ring.Consume(ctx, testCall, nil)
		require.NoError(t, err)
		assert.False(t, seen[res.Value], "collision at iteration %d", i)
		seen[res.Value] = true
	}
}

func TestConsumeDataDifferentiatesOutputOnly(t *testing.T) {
	ctx := context.Background()
	ring, _ := newTestRing(t, testConfig())

	_, _, err := ring.Generate(ctx, testCall)
	require.NoError(t, err)

	a, err := ring.Consume(ctx, testCall, []byte("left"))
	require.NoError(t, err)
	b, err := ring.Consume(ctx, testCall, []byte("right"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Value, b.Value)
	// Same slot either way: payload never drives slot selection.
	assert.Equal(t, a.Slot, b.Slot)
}

func TestAutoRefreshOnConsume(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	ring, sim := newTestRing(t, cfg)

	_, _, err := ring.Generate(ctx, testCall)
	require.NoError(t, err)

	res, err := ring.Consume(ctx, testCall, nil)
	require.NoError(t, err)
	assert.False(t, res.Refreshed)

	sim.Advance(cfg.RefreshInterval)
	res, err = ring.Consume(ctx, testCall, nil)
	require.NoError(t, err)
	assert.True(t, res.Refreshed)

	st, err := ring.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ValidSeeds)
}

func TestInvalidateSlot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	ring, _ := newTestRing(t, cfg)

	require.ErrorIs(t, ring.Invalidate(uint64(cfg.Size)), ErrInvalidSlot)

	_, _, err := ring.Generate(ctx, testCall)
	require.NoError(t, err)
	require.NoError(t, ring.Invalidate(0))

	_, err = ring.Consume(ctx, testCall, nil)
	require.ErrorIs(t, err, ErrNoValidSeeds)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	ring, sim := newTestRing(t, cfg)

	st, err := ring.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ValidSeeds)

	_, _, err = ring.Generate(ctx, testCall)
	require.NoError(t, err)
	sim.Advance(5)

	st, err = ring.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ValidSeeds)
	assert.Equal(t, uint64(5), st.OldestSeedAge)
	assert.Equal(t, cfg.RefreshInterval-5, st.NextRefreshIn)
}

func TestGenerateFailsWhenHistoryExpired(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	sim := chain.NewSimulated(1000, chain.WithHistoryWindow(5))
	sim.Advance(cfg.HashesPerSeed + 5)
	logger := logging.Logger("test")
	acc := entropy.New(sim, common.HexToAddress("0x01"), logger)
	ring := New(cfg, sim, acc, common.HexToAddress("0x01"), logger)

	// HashesPerSeed exceeds the retention window, so the oldest required
	// hash is already gone.
	_, _, err := ring.Generate(ctx, testCall)
	require.ErrorIs(t, err, chain.ErrHashUnavailable)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	ring, sim := newTestRing(t, cfg)

	for i := 0; i < 2; i++ {
		_, _, err := ring.Generate(ctx, testCall)
		require.NoError(t, err)
		sim.Advance(1)
	}
	_, err := ring.Consume(ctx, testCall, nil)
	require.NoError(t, err)

	snap, err := ring.Snapshot()
	require.NoError(t, err)

	logger := logging.Logger("test")
	acc := entropy.New(sim, common.HexToAddress("0x01"), logger)
	restored := New(cfg, sim, acc, common.HexToAddress("0x01"), logger)
	require.NoError(t, restored.Restore(snap))

	origStatus, err := ring.Status(ctx)
	require.NoError(t, err)
	restoredStatus, err := restored.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, origStatus, restoredStatus)

	seed, err := restored.Seed(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), seed.ConsumeCount)
}
