// Package callback delivers random values to consumers without letting a
// misbehaving consumer break the oracle. Every failure mode of the consumer
// hook (error return, panic, overrunning its budget) is captured as a Result
// value at the call boundary and reported, never propagated.
package callback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/types"
)

const (
	// MinBudget is the lowest allowed callback budget, in gas units.
	MinBudget uint64 = 100_000

	// MaxBudget is the highest allowed callback budget, in gas units.
	MaxBudget uint64 = 1_000_000

	// DefaultBudget is the mid-range default.
	DefaultBudget uint64 = 500_000

	// gasPerMicrosecond converts the gas-denominated budget into the
	// wall-clock deadline enforced on the consumer hook.
	gasPerMicrosecond = 1
)

var (
	// ErrInvalidBudget is returned when a budget outside [MinBudget, MaxBudget] is set.
	ErrInvalidBudget = errors.New("callback budget out of range")

	// ErrBudgetExceeded marks a callback that ran past its budget.
	ErrBudgetExceeded = errors.New("callback budget exceeded")
)

// Consumer is the hook a client exposes to receive Secure-Mode randomness.
// It must complete within the dispatcher's budget; the oracle never retries.
type Consumer interface {
	ReceiveRandom(ctx context.Context, requestID uint64, random types.RandomValue, data []byte) error
}

// Result is the captured outcome of one dispatch.
type Result struct {
	OK       bool
	Err      error
	Budget   uint64
	Elapsed  time.Duration
	Consumer common.Address
}

// Dispatcher invokes consumer hooks under a bounded, owner-adjustable budget.
type Dispatcher struct {
	mu     sync.RWMutex
	logger logging.EventLogger
	budget uint64
}

// NewDispatcher creates a dispatcher with the default budget.
func NewDispatcher(logger logging.EventLogger) *Dispatcher {
	return &Dispatcher{logger: logger, budget: DefaultBudget}
}

// Budget returns the current callback budget.
func (d *Dispatcher) Budget() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.budget
}

// SetBudget replaces the budget, returning the previous value. Fails with
// ErrInvalidBudget outside [MinBudget, MaxBudget].
func (d *Dispatcher) SetBudget(v uint64) (uint64, error) {
	if v < MinBudget || v > MaxBudget {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidBudget, v, MinBudget, MaxBudget)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.budget
	d.budget = v
	return old, nil
}

// Dispatch invokes the consumer's hook under the budget and captures the
// outcome. It never returns an error: by the time a callback runs, the
// oracle's own bookkeeping is already final.
func (d *Dispatcher) Dispatch(ctx context.Context, client common.Address, consumer Consumer, requestID uint64, random types.RandomValue, data []byte) Result {
	budget := d.Budget()
	res := Result{Budget: budget, Consumer: client}

	if consumer == nil {
		// No hook registered for this client; nothing to deliver to.
		res.OK = true
		return res
	}

	deadline := time.Duration(budget/gasPerMicrosecond) * time.Microsecond
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("callback panic: %v", rec)
			}
		}()
		done <- consumer.ReceiveRandom(cctx, requestID, random, data)
	}()

	select {
	case err := <-done:
		res.Elapsed = time.Since(start)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrBudgetExceeded, res.Elapsed)
		}
		res.Err = err
	case <-cctx.Done():
		res.Elapsed = time.Since(start)
		res.Err = fmt.Errorf("%w after %s", ErrBudgetExceeded, res.Elapsed)
	}
	res.OK = res.Err == nil

	if !res.OK {
		d.logger.Warn("consumer callback failed",
			"requestID", requestID, "consumer", client.Hex(), "error", res.Err)
	}
	return res
}
