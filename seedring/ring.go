// Package seedring implements the Instant-Mode cryptographic ring buffer:
// a fixed number of pre-generated seeds, consumed oldest-first and refreshed
// periodically from historical block hashes and accumulated entropy.
//
// Instant Mode deliberately trades security for latency: a sequencer can bias
// it. The ring only bounds the exposure of any single seed via the consume
// cap and oldest-first draining.
package seedring

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/entropy"
	"github.com/romulus-oracle/romulus/types"
)

const (
	// DefaultRingSize is the number of seed slots.
	DefaultRingSize = 24

	// DefaultHashesPerSeed is how many consecutive historical block hashes
	// are folded into one seed.
	DefaultHashesPerSeed = 50

	// DefaultRefreshInterval is the minimum number of blocks between seed
	// generations.
	DefaultRefreshInterval = 1800

	// DefaultConsumeCap invalidates a seed after this many consumptions.
	DefaultConsumeCap = 100
)

var (
	// ErrNotEnoughHistory is returned when the chain is too young to supply
	// the hashes a seed needs.
	ErrNotEnoughHistory = errors.New("not enough block history to generate seed")

	// ErrNoValidSeeds is returned by Consume when every slot is invalid.
	ErrNoValidSeeds = errors.New("no valid seeds in ring")

	// ErrInvalidSlot is returned for out-of-range slot indices.
	ErrInvalidSlot = errors.New("seed slot index out of range")
)

// Config carries the ring parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Size            int
	HashesPerSeed   uint64
	RefreshInterval uint64
	ConsumeCap      uint32
}

// DefaultConfig returns the production ring parameters.
func DefaultConfig() Config {
	return Config{
		Size:            DefaultRingSize,
		HashesPerSeed:   DefaultHashesPerSeed,
		RefreshInterval: DefaultRefreshInterval,
		ConsumeCap:      DefaultConsumeCap,
	}
}

// Status is a point-in-time summary of the ring.
type Status struct {
	ValidSeeds    int
	OldestSeedAge uint64
	NextRefreshIn uint64
}

// Ring is the circular seed store. The write position only ever advances;
// stale seeds are overwritten in place when the position wraps around.
type Ring struct {
	mu          sync.Mutex
	cfg         Config
	chain       chain.Oracle
	acc         *entropy.Accumulator
	logger      logging.EventLogger
	identity    common.Address
	slots       []types.Seed
	pos         int
	lastGen     uint64
	generations uint64
}

// New creates an empty ring. Seeds must be generated before the first
// consumption; the engine pre-fills one seed at construction.
func New(cfg Config, oracle chain.Oracle, acc *entropy.Accumulator, identity common.Address, logger logging.EventLogger) *Ring {
	return &Ring{
		cfg:      cfg,
		chain:    oracle,
		acc:      acc,
		logger:   logger,
		identity: identity,
		slots:    make([]types.Seed, cfg.Size),
	}
}

// Generate derives a fresh seed from HashesPerSeed consecutive historical
// block hashes ending at the parent of the head, writes it into the slot at
// the current position, and advances the position.
//
// Returns the slot written and the seed, so the engine can report it.
func (r *Ring) Generate(ctx context.Context, call types.Call) (int, types.Seed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generate(ctx, call)
}

func (r *Ring) generate(ctx context.Context, call types.Call) (int, types.Seed, error) {
	height, err := r.chain.Height(ctx)
	if err != nil {
		return 0, types.Seed{}, fmt.Errorf("failed to read chain height: %w", err)
	}
	if height < r.cfg.HashesPerSeed {
		return 0, types.Seed{}, fmt.Errorf("%w: height %d, need %d", ErrNotEnoughHistory, height, r.cfg.HashesPerSeed)
	}
	ts, err := r.chain.Timestamp(ctx)
	if err != nil {
		return 0, types.Seed{}, fmt.Errorf("failed to read chain timestamp: %w", err)
	}

	// Sequential fold over [height-HashesPerSeed, height-1]. Order matters:
	// each fold depends on the previous one, so no single hash dominates.
	running := common.Hash{}
	for h := height - r.cfg.HashesPerSeed; h < height; h++ {
		blockHash, err := r.chain.BlockHash(ctx, h)
		if err != nil {
			return 0, types.Seed{}, fmt.Errorf("seed generation at height %d: %w", h, err)
		}
		running = types.FoldHash(running,
			blockHash.Bytes(),
			types.Uint64Bytes(ts),
			types.Uint64Bytes(call.GasRemaining),
		)
	}

	seedHash := types.FoldHash(running,
		r.acc.Value().Bytes(),
		types.Uint64Bytes(r.generations),
		r.identity.Bytes(),
	)

	slot := r.pos
	seed := types.Seed{
		Hash:        seedHash,
		GeneratedAt: height,
		Valid:       true,
	}
	r.slots[slot] = seed
	r.pos = (r.pos + 1) % r.cfg.Size
	r.lastGen = height
	r.generations++

	r.logger.Info("seed generated", "slot", slot, "height", height, "generations", r.generations)
	return slot, seed, nil
}

// ConsumeResult reports where an instant random value came from.
type ConsumeResult struct {
	Value        types.RandomValue
	Slot         int
	ConsumeCount uint32
	Refreshed    bool
}

// Consume selects the oldest valid seed, derives a random value from it, and
// increments its consume count. Oldest-first selection is the forward-secrecy
// policy: seeds nearing invalidation drain before newer ones, bounding how
// long any single seed stays exploitable.
//
// The caller-supplied data affects only output uniqueness, never the seed
// state or slot selection.
func (r *Ring) Consume(ctx context.Context, call types.Call, data []byte) (ConsumeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := ConsumeResult{}

	// Opportunistic refresh before servicing. A failed refresh is logged
	// and skipped: the consume can still be served from existing seeds.
	height, err := r.chain.Height(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read chain height: %w", err)
	}
	if r.refreshDue(height) {
		if _, _, err := r.generate(ctx, call); err != nil {
			r.logger.Warn("auto seed refresh failed", "height", height, "error", err)
		} else {
			res.Refreshed = true
		}
	}

	slot := r.oldestValidLocked()
	if slot < 0 {
		return res, ErrNoValidSeeds
	}
	seed := &r.slots[slot]

	ts, err := r.chain.Timestamp(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read chain timestamp: %w", err)
	}

	value := types.FoldHash(seed.Hash,
		types.Uint32Bytes(seed.ConsumeCount),
		r.acc.Value().Bytes(),
		types.Uint64Bytes(height),
		types.Uint64Bytes(ts),
		call.Caller.Bytes(),
		data,
	)

	seed.ConsumeCount++
	if seed.ConsumeCount >= r.cfg.ConsumeCap {
		seed.Valid = false
		r.logger.Info("seed reached consume cap", "slot", slot, "cap", r.cfg.ConsumeCap)
	}

	res.Value = value
	res.Slot = slot
	res.ConsumeCount = seed.ConsumeCount
	return res, nil
}

// oldestValidLocked scans all slots for the valid seed with the smallest
// generation height. Linear, but bounded by the ring size.
func (r *Ring) oldestValidLocked() int {
	best := -1
	for i := range r.slots {
		if !r.slots[i].Valid {
			continue
		}
		if best < 0 || r.slots[i].GeneratedAt < r.slots[best].GeneratedAt {
			best = i
		}
	}
	return best
}

func (r *Ring) refreshDue(height uint64) bool {
	// A ring that has never generated is always due; otherwise an engine
	// started before enough history exists would wait a full interval for
	// its first seed.
	if r.generations == 0 {
		return true
	}
	return height >= r.lastGen+r.cfg.RefreshInterval
}

// RefreshDue reports whether enough blocks have passed since the last
// generation for a new one to be permitted.
func (r *Ring) RefreshDue(height uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshDue(height)
}

// Invalidate marks a slot invalid immediately. Incident-response path; the
// engine gates it behind the owner check.
func (r *Ring) Invalidate(slot uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= uint64(r.cfg.Size) {
		return fmt.Errorf("%w: %d (ring size %d)", ErrInvalidSlot, slot, r.cfg.Size)
	}
	r.slots[slot].Valid = false
	r.logger.Warn("seed slot invalidated", "slot", slot)
	return nil
}

// Seed returns a copy of the seed in the given slot.
func (r *Ring) Seed(slot uint64) (types.Seed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= uint64(r.cfg.Size) {
		return types.Seed{}, fmt.Errorf("%w: %d (ring size %d)", ErrInvalidSlot, slot, r.cfg.Size)
	}
	return r.slots[slot], nil
}

// Status summarizes the ring relative to the current head.
func (r *Ring) Status(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	height, err := r.chain.Height(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read chain height: %w", err)
	}

	st := Status{}
	oldest := r.oldestValidLocked()
	for i := range r.slots {
		if r.slots[i].Valid {
			st.ValidSeeds++
		}
	}
	if oldest >= 0 && height > r.slots[oldest].GeneratedAt {
		st.OldestSeedAge = height - r.slots[oldest].GeneratedAt
	}
	if next := r.lastGen + r.cfg.RefreshInterval; r.generations > 0 && next > height {
		st.NextRefreshIn = next - height
	}
	return st, nil
}

// Config returns the ring parameters.
func (r *Ring) Config() Config {
	return r.cfg
}

type snapshot struct {
	Slots       []types.Seed
	Pos         int
	LastGen     uint64
	Generations uint64
}

// Snapshot encodes the ring state for persistence.
func (r *Ring) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{r.slots, r.pos, r.lastGen, r.generations})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ring snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the ring state with a previously taken snapshot. The
// snapshot's slot count must match the configured ring size.
func (r *Ring) Restore(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode ring snapshot: %w", err)
	}
	if len(snap.Slots) != r.cfg.Size {
		return fmt.Errorf("ring snapshot has %d slots, config expects %d", len(snap.Slots), r.cfg.Size)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = snap.Slots
	r.pos = snap.Pos
	r.lastGen = snap.LastGen
	r.generations = snap.Generations
	return nil
}
