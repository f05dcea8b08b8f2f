// Package engine orchestrates the randomness oracle: the Secure-Mode
// commit-reveal span protocol, the Instant-Mode seed ring, entropy
// accumulation, and fail-safe consumer callbacks.
//
// Every mutating operation executes under a single engine mutex, mirroring
// the serialized execution model of the host chain: one call runs to
// completion before the next begins, and a failed call leaves no partial
// state behind. The sole exception is a consumer callback failure, which is
// swallowed after the engine's own state is already final.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/callback"
	"github.com/romulus-oracle/romulus/core/chain"
	"github.com/romulus-oracle/romulus/entropy"
	"github.com/romulus-oracle/romulus/pkg/store"
	"github.com/romulus-oracle/romulus/registry"
	"github.com/romulus-oracle/romulus/seedring"
	"github.com/romulus-oracle/romulus/types"
)

// Engine is the only component with public entry points. Construct one per
// oracle deployment with New.
type Engine struct {
	mu sync.Mutex

	params   Params
	chain    chain.Oracle
	store    store.Store
	entropy  *entropy.Accumulator
	ring     *seedring.Ring
	registry *registry.Registry
	dispatch *callback.Dispatcher
	notifier *Notifier
	metrics  *Metrics
	logger   logging.EventLogger

	owner    common.Address
	identity common.Address

	consumerMtx sync.RWMutex
	consumers   map[common.Address]callback.Consumer
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics attaches a metrics recorder; NopMetrics is used otherwise.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(logger logging.EventLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New wires an engine over the given chain oracle and store. Previously
// persisted state (pending requests, ring, entropy, budget) is restored; if
// the ring comes up empty and enough history exists, one seed is pre-filled
// so Instant Mode works from the first block.
func New(params Params, oracle chain.Oracle, db store.Store, owner, identity common.Address, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine params: %w", err)
	}

	e := &Engine{
		params:    params,
		chain:     oracle,
		store:     db,
		owner:     owner,
		identity:  identity,
		logger:    logging.Logger("engine"),
		metrics:   NopMetrics(),
		consumers: make(map[common.Address]callback.Consumer),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.entropy = entropy.New(oracle, identity, e.logger)
	e.ring = seedring.New(params.Ring, oracle, e.entropy, identity, e.logger)
	e.registry = registry.New(db, e.logger)
	e.dispatch = callback.NewDispatcher(e.logger)
	e.notifier = NewNotifier(e.logger)

	ctx := context.Background()
	if err := e.restore(ctx); err != nil {
		return nil, err
	}

	// Pre-fill the ring with one seed when starting fresh.
	if status, err := e.ring.Status(ctx); err == nil && status.ValidSeeds == 0 {
		call := types.Call{Caller: identity}
		if err := e.entropy.Accumulate(ctx, call); err != nil {
			e.logger.Warn("initial entropy accumulation failed", "error", err)
		}
		if slot, seed, err := e.ring.Generate(ctx, call); err != nil {
			e.logger.Warn("initial seed generation deferred", "error", err)
		} else {
			e.notifier.Publish(SeedGeneratedEvent{Slot: slot, SeedHash: seed.Hash, Height: seed.GeneratedAt})
			e.metrics.SeedsGenerated.Add(1)
		}
		e.persist(ctx)
	}

	return e, nil
}

func (e *Engine) restore(ctx context.Context) error {
	if err := e.registry.Load(ctx); err != nil {
		return err
	}

	if snap, err := e.store.GetMetadata(ctx, store.RingSnapshotKey); err == nil {
		if err := e.ring.Restore(snap); err != nil {
			return err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if snap, err := e.store.GetMetadata(ctx, store.EntropySnapshotKey); err == nil {
		if err := e.entropy.Restore(snap); err != nil {
			return err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if raw, err := e.store.GetMetadata(ctx, store.CallbackBudgetKey); err == nil && len(raw) == 8 {
		if _, err := e.dispatch.SetBudget(binary.BigEndian.Uint64(raw)); err != nil {
			e.logger.Warn("ignoring persisted callback budget", "error", err)
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

// persist snapshots ring and entropy state. Persistence failures do not fail
// the operation that triggered them; the in-memory state stays authoritative.
func (e *Engine) persist(ctx context.Context) {
	if snap, err := e.ring.Snapshot(); err != nil {
		e.logger.Error("failed to snapshot ring", "error", err)
	} else if err := e.store.SetMetadata(ctx, store.RingSnapshotKey, snap); err != nil {
		e.logger.Error("failed to persist ring snapshot", "error", err)
	}
	if snap, err := e.entropy.Snapshot(); err != nil {
		e.logger.Error("failed to snapshot entropy", "error", err)
	} else if err := e.store.SetMetadata(ctx, store.EntropySnapshotKey, snap); err != nil {
		e.logger.Error("failed to persist entropy snapshot", "error", err)
	}
}

// revertEntropyOnError snapshots the accumulator and returns a hook to defer:
// when the surrounding operation fails, the prior state is restored. A failed
// call must not keep the caller's entropy contribution.
func (e *Engine) revertEntropyOnError(retErr *error) func() {
	snap, err := e.entropy.Snapshot()
	if err != nil {
		e.logger.Error("failed to snapshot entropy", "error", err)
		return func() {}
	}
	return func() {
		if *retErr == nil {
			return
		}
		if err := e.entropy.Restore(snap); err != nil {
			e.logger.Error("failed to restore entropy", "error", err)
		}
	}
}

// RegisterConsumer binds a client identity to its receive hook. Reveals for
// requests created by this client deliver through it; clients without a hook
// still get the reveal event.
func (e *Engine) RegisterConsumer(client common.Address, consumer callback.Consumer) {
	e.consumerMtx.Lock()
	defer e.consumerMtx.Unlock()
	e.consumers[client] = consumer
}

func (e *Engine) consumerFor(client common.Address) callback.Consumer {
	e.consumerMtx.RLock()
	defer e.consumerMtx.RUnlock()
	return e.consumers[client]
}

// Events returns a subscription channel for engine notifications.
func (e *Engine) Events() <-chan Event {
	return e.notifier.Subscribe()
}

// RequestRandom commits a Secure-Mode request over the next span blocks.
// The span's first block is always the block after the current one; the
// client picks only how many blocks to aggregate, never which ones.
func (e *Engine) RequestRandom(ctx context.Context, call types.Call, data []byte, span uint16) (_ uint64, retErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer e.revertEntropyOnError(&retErr)()
	if err := e.entropy.Accumulate(ctx, call); err != nil {
		return 0, err
	}

	if span < e.params.MinSpan || span > e.params.MaxSpan {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidSpan, span, e.params.MinSpan, e.params.MaxSpan)
	}
	if window := e.chain.HistoryWindow(); uint64(span) > window/2 {
		return 0, fmt.Errorf("%w: %d > %d", ErrSpanTooLarge, span, window/2)
	}

	height, err := e.chain.Height(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read chain height: %w", err)
	}

	req := &types.Request{
		Client:     call.Caller,
		StartBlock: height + 1,
		Span:       span,
		Data:       data,
		CreatedAt:  height,
	}
	id, err := e.registry.Create(ctx, req)
	if err != nil {
		return 0, err
	}

	e.persist(ctx)
	e.metrics.RequestsCreated.Add(1)
	e.metrics.PendingRequests.Set(float64(e.registry.Pending()))
	e.notifier.Publish(RequestCreatedEvent{ID: id, StartBlock: req.StartBlock, Span: span})
	e.logger.Info("request committed", "id", id, "startBlock", req.StartBlock, "span", span, "client", call.Caller.Hex())
	return id, nil
}

// RequestRandomDefault commits a request with the default span.
func (e *Engine) RequestRandomDefault(ctx context.Context, call types.Call, data []byte) (uint64, error) {
	return e.RequestRandom(ctx, call, data, e.params.DefaultSpan)
}

// RevealRandom finalizes a pending request once its span plus the grace
// period has completed. Permissionless: any caller may trigger it. The
// request record is deleted before the consumer callback runs, so a reentrant
// or failing consumer can never replay the reveal.
func (e *Engine) RevealRandom(ctx context.Context, call types.Call, id uint64) (_ types.RandomValue, retErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer e.revertEntropyOnError(&retErr)()
	if err := e.entropy.Accumulate(ctx, call); err != nil {
		return types.RandomValue{}, err
	}

	req, err := e.registry.Get(id)
	if err != nil {
		return types.RandomValue{}, err
	}

	height, err := e.chain.Height(ctx)
	if err != nil {
		return types.RandomValue{}, fmt.Errorf("failed to read chain height: %w", err)
	}

	lastBlock := req.LastBlock()
	if height <= lastBlock+e.params.Grace {
		return types.RandomValue{}, fmt.Errorf("%w: id %d revealable at height %d, current %d",
			ErrTooEarlyToReveal, id, lastBlock+e.params.Grace+1, height)
	}
	if height-req.StartBlock > e.chain.HistoryWindow() {
		return types.RandomValue{}, fmt.Errorf("reveal of request %d: %w", id, chain.ErrHashUnavailable)
	}

	// Sequential fold over the committed span. Order matters: each fold
	// depends on the previous one, so no single block hash dominates.
	running := common.Hash{}
	for h := req.StartBlock; h <= lastBlock; h++ {
		blockHash, err := e.chain.BlockHash(ctx, h)
		if err != nil {
			return types.RandomValue{}, fmt.Errorf("reveal of request %d at height %d: %w", id, h, err)
		}
		running = types.FoldHash(running, blockHash.Bytes())
	}
	// Binding the output to the request id prevents cross-request reuse of
	// an identical span.
	random := types.FoldHash(running, types.Uint64Bytes(id))

	// State removal is the reentrancy guard: it must precede the callback.
	if err := e.registry.Delete(ctx, id); err != nil {
		return types.RandomValue{}, err
	}
	e.persist(ctx)

	res := e.dispatch.Dispatch(ctx, req.Client, e.consumerFor(req.Client), id, random, req.Data)
	e.metrics.CallbackDuration.Observe(res.Elapsed.Seconds())
	if !res.OK {
		e.metrics.CallbackFailures.Add(1)
		e.notifier.Publish(CallbackFailedEvent{ID: id, Consumer: req.Client, Reason: res.Err.Error()})
	}

	e.metrics.Reveals.Add(1)
	e.metrics.RevealSpan.Observe(float64(req.Span))
	e.metrics.PendingRequests.Set(float64(e.registry.Pending()))
	e.notifier.Publish(RevealCompletedEvent{ID: id, Random: random})
	e.logger.Info("request revealed", "id", id, "span", req.Span, "callbackOK", res.OK)
	return random, nil
}

// RevealTime reports when a request becomes revealable and the estimated
// wait. Returns zeros for unknown requests.
func (e *Engine) RevealTime(ctx context.Context, id uint64) (uint64, time.Duration, error) {
	req, err := e.registry.Get(id)
	if err != nil {
		return 0, 0, nil
	}
	height, err := e.chain.Height(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read chain height: %w", err)
	}

	canRevealAt := req.StartBlock + uint64(req.Span) + e.params.Grace
	var wait time.Duration
	if canRevealAt > height {
		wait = time.Duration(canRevealAt-height) * e.params.BlockTime
	}
	return canRevealAt, wait, nil
}

// IsRequestValid reports whether a request exists and is still revealable,
// and how many blocks remain before its span expires from the history
// window. Returns (false, 0) for unknown requests.
func (e *Engine) IsRequestValid(ctx context.Context, id uint64) (bool, uint64, error) {
	req, err := e.registry.Get(id)
	if err != nil {
		return false, 0, nil
	}
	height, err := e.chain.Height(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to read chain height: %w", err)
	}

	expiryHeight := req.StartBlock + e.chain.HistoryWindow()
	if height > expiryHeight {
		return false, 0, nil
	}
	return true, expiryHeight - height, nil
}

// GetInstantRandom delivers a random value immediately from the seed ring.
// Fast but biasable by the sequencer; callers choose this trade-off
// explicitly. Caller data differentiates the output only.
func (e *Engine) GetInstantRandom(ctx context.Context, call types.Call, data []byte) (_ types.RandomValue, retErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer e.revertEntropyOnError(&retErr)()
	if err := e.entropy.Accumulate(ctx, call); err != nil {
		return types.RandomValue{}, err
	}

	height, err := e.chain.Height(ctx)
	if err != nil {
		return types.RandomValue{}, fmt.Errorf("failed to read chain height: %w", err)
	}
	if e.ring.RefreshDue(height) {
		if slot, seed, err := e.ring.Generate(ctx, call); err != nil {
			e.logger.Warn("scheduled seed refresh failed", "height", height, "error", err)
			e.notifier.Publish(RefreshNeededEvent{Height: height})
		} else {
			e.metrics.SeedsGenerated.Add(1)
			e.notifier.Publish(SeedGeneratedEvent{Slot: slot, SeedHash: seed.Hash, Height: seed.GeneratedAt})
		}
	}

	res, err := e.ring.Consume(ctx, call, data)
	if err != nil {
		return types.RandomValue{}, err
	}
	e.persist(ctx)

	e.metrics.InstantRandoms.Add(1)
	e.updateRingGauges(ctx)
	e.notifier.Publish(InstantRandomDeliveredEvent{
		Caller:       call.Caller,
		Value:        res.Value,
		Slot:         res.Slot,
		ConsumeCount: res.ConsumeCount,
	})
	return res.Value, nil
}

// GenerateSeed refreshes the ring explicitly. Permissionless once the
// refresh interval has elapsed; fails with ErrTooEarlyToGenerateSeed before
// that.
func (e *Engine) GenerateSeed(ctx context.Context, call types.Call) (retErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer e.revertEntropyOnError(&retErr)()
	if err := e.entropy.Accumulate(ctx, call); err != nil {
		return err
	}

	height, err := e.chain.Height(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}
	if !e.ring.RefreshDue(height) {
		status, serr := e.ring.Status(ctx)
		if serr != nil {
			return serr
		}
		return fmt.Errorf("%w: next refresh in %d blocks", ErrTooEarlyToGenerateSeed, status.NextRefreshIn)
	}

	slot, seed, err := e.ring.Generate(ctx, call)
	if err != nil {
		return err
	}
	e.persist(ctx)

	e.metrics.SeedsGenerated.Add(1)
	e.updateRingGauges(ctx)
	e.notifier.Publish(SeedGeneratedEvent{Slot: slot, SeedHash: seed.Hash, Height: seed.GeneratedAt})
	return nil
}

// InvalidateSeed marks a ring slot invalid. Owner-only incident-response
// path.
func (e *Engine) InvalidateSeed(ctx context.Context, call types.Call, slot uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if call.Caller != e.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, call.Caller.Hex())
	}
	if err := e.ring.Invalidate(slot); err != nil {
		return err
	}
	e.persist(ctx)
	e.updateRingGauges(ctx)
	return nil
}

// SetCallbackBudget adjusts the per-callback resource ceiling. Owner-only.
func (e *Engine) SetCallbackBudget(ctx context.Context, call types.Call, budget uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if call.Caller != e.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, call.Caller.Hex())
	}
	old, err := e.dispatch.SetBudget(budget)
	if err != nil {
		return err
	}
	if err := e.store.SetMetadata(ctx, store.CallbackBudgetKey, types.Uint64Bytes(budget)); err != nil {
		e.logger.Error("failed to persist callback budget", "error", err)
	}
	e.notifier.Publish(BudgetUpdatedEvent{Old: old, New: budget})
	e.logger.Info("callback budget updated", "old", old, "new", budget)
	return nil
}

// RingStatus returns the seed ring summary.
func (e *Engine) RingStatus(ctx context.Context) (seedring.Status, error) {
	return e.ring.Status(ctx)
}

// EntropyStats returns the accumulator summary.
func (e *Engine) EntropyStats(ctx context.Context) (entropy.Stats, error) {
	return e.entropy.Stats(ctx)
}

// PendingRequests returns the number of requests waiting for reveal.
func (e *Engine) PendingRequests() int {
	return e.registry.Pending()
}

// Constants returns the read-only engine parameters.
func (e *Engine) Constants() Constants {
	return e.params.constants(e.chain.HistoryWindow(), e.dispatch.Budget())
}

// AccumulateEntropy folds the current block into the entropy state without
// any other side effect. The daemon's chain follower calls this once per new
// block.
func (e *Engine) AccumulateEntropy(ctx context.Context, call types.Call) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.entropy.Accumulate(ctx, call); err != nil {
		return err
	}
	stats, err := e.entropy.Stats(ctx)
	if err == nil {
		e.metrics.EntropyContributions.Set(float64(stats.Contributions))
	}
	e.persist(ctx)
	return nil
}

func (e *Engine) updateRingGauges(ctx context.Context) {
	if status, err := e.ring.Status(ctx); err == nil {
		e.metrics.ValidSeeds.Set(float64(status.ValidSeeds))
	}
}
