package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/romulus-oracle/romulus/types"
)

// DefaultHistoryWindow matches the retention of the EIP-2935 style history
// ring most L2 hosts expose.
const DefaultHistoryWindow = 8191

// Simulated is an in-memory single-sequencer chain. Not production ready!
// Intended for tests and the local daemon mode, where it stands in for the
// host chain the oracle would normally run on.
//
// Block hashes form a deterministic keccak chain seeded from the genesis
// label, so replaying the same sequence of Advance calls reproduces the same
// history.
type Simulated struct {
	mu            sync.RWMutex
	hashes        []common.Hash
	timestamps    []uint64
	blockTime     uint64
	historyWindow uint64
}

var _ Oracle = (*Simulated)(nil)

// SimulatedOption configures a Simulated chain.
type SimulatedOption func(*Simulated)

// WithHistoryWindow overrides the retention window (useful to make expiry
// reachable in tests).
func WithHistoryWindow(window uint64) SimulatedOption {
	return func(s *Simulated) { s.historyWindow = window }
}

// WithBlockTime overrides the seconds added to the head timestamp per block.
func WithBlockTime(seconds uint64) SimulatedOption {
	return func(s *Simulated) { s.blockTime = seconds }
}

// NewSimulated creates a simulated chain with only the genesis block at
// height 0.
func NewSimulated(genesisTime uint64, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		hashes:        []common.Hash{crypto.Keccak256Hash([]byte("romulus-simulated-genesis"))},
		timestamps:    []uint64{genesisTime},
		blockTime:     2,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advance produces n new blocks on top of the current head.
func (s *Simulated) Advance(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := uint64(0); i < n; i++ {
		height := uint64(len(s.hashes))
		parent := s.hashes[height-1]
		ts := s.timestamps[height-1] + s.blockTime
		h := types.FoldHash(parent, types.Uint64Bytes(height), types.Uint64Bytes(ts))
		s.hashes = append(s.hashes, h)
		s.timestamps = append(s.timestamps, ts)
	}
}

// AdvanceTo produces blocks until the head reaches the given height.
func (s *Simulated) AdvanceTo(height uint64) {
	s.mu.RLock()
	head := uint64(len(s.hashes)) - 1
	s.mu.RUnlock()
	if height > head {
		s.Advance(height - head)
	}
}

// Height returns the current head height.
func (s *Simulated) Height(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.hashes)) - 1, nil
}

// Timestamp returns the unix timestamp of the head block.
func (s *Simulated) Timestamp(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timestamps[len(s.timestamps)-1], nil
}

// BlockHash returns the hash at the given height, subject to the retention
// window. The head's own hash is not queryable: on a real chain it is not
// settled while the current call executes.
func (s *Simulated) BlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	head := uint64(len(s.hashes)) - 1
	if height >= head {
		return common.Hash{}, ErrFutureBlock
	}
	if head-height > s.historyWindow {
		return common.Hash{}, ErrHashUnavailable
	}
	return s.hashes[height], nil
}

// HistoryWindow returns the number of retained block hashes.
func (s *Simulated) HistoryWindow() uint64 {
	return s.historyWindow
}
