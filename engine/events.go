package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/types"
)

// Event is a notification emitted by the engine. Subscribers receive events
// best-effort: a slow subscriber drops events rather than blocking the engine.
type Event interface {
	// Kind names the event for logging and wire encoding.
	Kind() string
}

// RequestCreatedEvent is emitted when a Secure-Mode request is committed.
type RequestCreatedEvent struct {
	ID         uint64
	StartBlock uint64
	Span       uint16
}

func (RequestCreatedEvent) Kind() string { return "request_created" }

// RevealCompletedEvent is emitted when a reveal succeeds, regardless of the
// callback outcome.
type RevealCompletedEvent struct {
	ID     uint64
	Random types.RandomValue
}

func (RevealCompletedEvent) Kind() string { return "reveal_completed" }

// CallbackFailedEvent is emitted when a consumer callback fails; the reveal
// itself still counts as delivered.
type CallbackFailedEvent struct {
	ID       uint64
	Consumer common.Address
	Reason   string
}

func (CallbackFailedEvent) Kind() string { return "callback_failed" }

// SeedGeneratedEvent is emitted for every seed written into the ring.
type SeedGeneratedEvent struct {
	Slot     int
	SeedHash common.Hash
	Height   uint64
}

func (SeedGeneratedEvent) Kind() string { return "seed_generated" }

// InstantRandomDeliveredEvent is emitted for every Instant-Mode consumption.
type InstantRandomDeliveredEvent struct {
	Caller       common.Address
	Value        types.RandomValue
	Slot         int
	ConsumeCount uint32
}

func (InstantRandomDeliveredEvent) Kind() string { return "instant_random_delivered" }

// RefreshNeededEvent signals that the refresh interval has elapsed but the
// ring could not be refreshed; an external keeper should call GenerateSeed.
type RefreshNeededEvent struct {
	Height uint64
}

func (RefreshNeededEvent) Kind() string { return "refresh_needed" }

// BudgetUpdatedEvent is emitted when the owner adjusts the callback budget.
type BudgetUpdatedEvent struct {
	Old uint64
	New uint64
}

func (BudgetUpdatedEvent) Kind() string { return "budget_updated" }

// Notifier fans engine events out to subscribers.
type Notifier struct {
	mu     sync.RWMutex
	logger logging.EventLogger
	subs   []chan Event
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger logging.EventLogger) *Notifier {
	return &Notifier{logger: logger}
}

// Subscribe registers a new subscriber. The returned channel is buffered;
// events are dropped for subscribers that stop draining it.
func (n *Notifier) Subscribe() <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, 64)
	n.subs = append(n.subs, ch)
	return ch
}

// Publish delivers an event to all subscribers without blocking.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			n.logger.Warn("dropping event for slow subscriber", "kind", ev.Kind())
		}
	}
}
