// Package entropy maintains the process-wide rolling entropy state mixed into
// every seed and instant random value.
//
// The accumulator folds in at most one contribution per block height, no
// matter how many engine calls land in that block. Only chain-derived data
// and the caller identity enter the state; caller-supplied payloads never do,
// so no caller can steer the accumulator toward a value they precomputed.
package entropy

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/types"
)

// Stats describes the accumulator's update history.
type Stats struct {
	Contributions   uint64
	LastBlock       uint64
	BlocksSinceLast uint64
}

// Accumulator is the rolling entropy state. All access goes through the
// engine, which serializes mutating operations.
type Accumulator struct {
	mu            sync.Mutex
	chain         chain.Oracle
	logger        logging.EventLogger
	value         common.Hash
	lastBlock     uint64
	contributions uint64
}

// New creates an accumulator seeded from the engine identity so that two
// oracle instances on the same chain diverge immediately.
func New(oracle chain.Oracle, identity common.Address, logger logging.EventLogger) *Accumulator {
	return &Accumulator{
		chain:  oracle,
		logger: logger,
		value:  types.FoldHash(common.Hash{}, []byte("romulus/entropy"), identity.Bytes()),
	}
}

// Accumulate folds one contribution into the state for the current block.
// It is idempotent within a block height: the first call in a new block
// updates the state, every later call in the same block is a no-op.
func (a *Accumulator) Accumulate(ctx context.Context, call types.Call) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	height, err := a.chain.Height(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}
	if a.contributions > 0 && height == a.lastBlock {
		return nil
	}

	ts, err := a.chain.Timestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain timestamp: %w", err)
	}

	// Parent hash, not the head's own: the head is still open while this
	// call executes.
	var parent common.Hash
	if height > 0 {
		parent, err = a.chain.BlockHash(ctx, height-1)
		if err != nil {
			return fmt.Errorf("failed to read parent hash at height %d: %w", height-1, err)
		}
	}

	a.value = types.FoldHash(a.value,
		types.Uint64Bytes(ts),
		parent.Bytes(),
		types.Uint64Bytes(call.GasRemaining),
		call.Caller.Bytes(),
	)
	a.lastBlock = height
	a.contributions++

	a.logger.Debug("entropy contribution applied", "height", height, "contributions", a.contributions)
	return nil
}

// Value returns the current accumulator state.
func (a *Accumulator) Value() common.Hash {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// Stats returns contribution counters relative to the current head.
func (a *Accumulator) Stats(ctx context.Context) (Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	height, err := a.chain.Height(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read chain height: %w", err)
	}
	s := Stats{
		Contributions: a.contributions,
		LastBlock:     a.lastBlock,
	}
	if height > a.lastBlock {
		s.BlocksSinceLast = height - a.lastBlock
	}
	return s, nil
}

type snapshot struct {
	Value         common.Hash
	LastBlock     uint64
	Contributions uint64
}

// Snapshot encodes the accumulator state for persistence.
func (a *Accumulator) Snapshot() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{a.value, a.lastBlock, a.contributions})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entropy snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the accumulator state with a previously taken snapshot.
func (a *Accumulator) Restore(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode entropy snapshot: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = snap.Value
	a.lastBlock = snap.LastBlock
	a.contributions = snap.Contributions
	return nil
}
