package engine

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/romulus-oracle/romulus/callback"
	"github.com/romulus-oracle/romulus/seedring"
)

const (
	// DefaultSpan is the span used by the single-argument request path.
	DefaultSpan uint16 = 64

	// MinSpan is the smallest allowed aggregation window.
	MinSpan uint16 = 8

	// MaxSpan is the largest allowed aggregation window.
	MaxSpan uint16 = 4000

	// Grace is the number of extra blocks required after a span completes,
	// so the span's last block is itself settled before being read.
	Grace uint64 = 1

	// DefaultBlockTime approximates the sequencer's block interval; only
	// used to convert block counts into wait-time estimates.
	DefaultBlockTime = 2 * time.Second
)

// Params bundles the tunable engine parameters. DefaultParams matches the
// production deployment; tests shrink the ring and spans to keep chains short.
type Params struct {
	DefaultSpan uint16
	MinSpan     uint16
	MaxSpan     uint16
	Grace       uint64
	BlockTime   time.Duration
	Ring        seedring.Config
}

// DefaultParams returns the production parameters.
func DefaultParams() Params {
	return Params{
		DefaultSpan: DefaultSpan,
		MinSpan:     MinSpan,
		MaxSpan:     MaxSpan,
		Grace:       Grace,
		BlockTime:   DefaultBlockTime,
		Ring:        seedring.DefaultConfig(),
	}
}

// Validate checks internal consistency of the parameters.
func (p Params) Validate() error {
	var errs *multierror.Error
	if p.MinSpan < 1 {
		errs = multierror.Append(errs, fmt.Errorf("min span must be at least 1, got %d", p.MinSpan))
	}
	if p.MinSpan > p.MaxSpan {
		errs = multierror.Append(errs, fmt.Errorf("min span %d exceeds max span %d", p.MinSpan, p.MaxSpan))
	}
	if p.DefaultSpan < p.MinSpan || p.DefaultSpan > p.MaxSpan {
		errs = multierror.Append(errs, fmt.Errorf("default span %d outside [%d, %d]", p.DefaultSpan, p.MinSpan, p.MaxSpan))
	}
	if p.BlockTime <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("block time must be positive, got %s", p.BlockTime))
	}
	if p.Ring.Size < 1 {
		errs = multierror.Append(errs, fmt.Errorf("ring size must be at least 1, got %d", p.Ring.Size))
	}
	if p.Ring.HashesPerSeed < 1 {
		errs = multierror.Append(errs, fmt.Errorf("hashes per seed must be at least 1, got %d", p.Ring.HashesPerSeed))
	}
	if p.Ring.ConsumeCap < 1 {
		errs = multierror.Append(errs, fmt.Errorf("consume cap must be at least 1, got %d", p.Ring.ConsumeCap))
	}
	return errs.ErrorOrNil()
}

// Constants is the read-only parameter view exposed to callers.
type Constants struct {
	DefaultSpan       uint16 `json:"default_span"`
	MinSpan           uint16 `json:"min_span"`
	MaxSpan           uint16 `json:"max_span"`
	Grace             uint64 `json:"grace"`
	RingSize          int    `json:"ring_size"`
	SeedRefreshBlocks uint64 `json:"seed_refresh_interval"`
	HashesPerSeed     uint64 `json:"hashes_per_seed"`
	ConsumeCap        uint32 `json:"consume_cap"`
	HistoryWindow     uint64 `json:"history_window"`
	BlockTimeSeconds  uint64 `json:"block_time_seconds"`
	MinCallbackBudget uint64 `json:"min_callback_budget"`
	MaxCallbackBudget uint64 `json:"max_callback_budget"`
	CallbackBudget    uint64 `json:"callback_budget"`
}

func (p Params) constants(historyWindow, budget uint64) Constants {
	return Constants{
		DefaultSpan:       p.DefaultSpan,
		MinSpan:           p.MinSpan,
		MaxSpan:           p.MaxSpan,
		Grace:             p.Grace,
		RingSize:          p.Ring.Size,
		SeedRefreshBlocks: p.Ring.RefreshInterval,
		HashesPerSeed:     p.Ring.HashesPerSeed,
		ConsumeCap:        p.Ring.ConsumeCap,
		HistoryWindow:     historyWindow,
		BlockTimeSeconds:  uint64(p.BlockTime / time.Second),
		MinCallbackBudget: callback.MinBudget,
		MaxCallbackBudget: callback.MaxBudget,
		CallbackBudget:    budget,
	}
}
