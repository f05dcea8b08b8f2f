// Package registry keeps the pending Secure-Mode requests. Requests are
// write-through persisted so a restart never loses a commitment; the
// in-memory map mirrors the store for cheap lookups and counting.
package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/romulus-oracle/romulus/pkg/store"
	"github.com/romulus-oracle/romulus/types"
)

// ErrRequestNotFound is returned for unknown or already revealed request ids.
var ErrRequestNotFound = errors.New("request not found")

// Registry stores pending requests and allocates monotonically increasing
// ids. Ids are never reused, even across restarts.
type Registry struct {
	mu      sync.Mutex
	db      store.Store
	logger  logging.EventLogger
	nextID  uint64
	pending map[uint64]*types.Request
}

// New creates a registry on top of the given store. Call Load before use to
// rebuild state from a previous run.
func New(db store.Store, logger logging.EventLogger) *Registry {
	return &Registry{
		db:      db,
		logger:  logger,
		nextID:  1,
		pending: make(map[uint64]*types.Request),
	}
}

// Load rebuilds the in-memory state from the store.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reqs, err := r.db.Requests(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending requests: %w", err)
	}
	r.pending = make(map[uint64]*types.Request, len(reqs))
	for _, req := range reqs {
		r.pending[req.ID] = req
	}

	raw, err := r.db.GetMetadata(ctx, store.NextRequestIDKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.nextID = 1
	case err != nil:
		return err
	case len(raw) != 8:
		return fmt.Errorf("corrupt next-request-id metadata: %d bytes", len(raw))
	default:
		r.nextID = binary.BigEndian.Uint64(raw)
	}

	if len(reqs) > 0 {
		r.logger.Info("restored pending requests", "count", len(reqs), "nextID", r.nextID)
	}
	return nil
}

// Create assigns the next id to the request and persists it.
func (r *Registry) Create(ctx context.Context, req *types.Request) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req.ID = r.nextID
	if err := r.db.PutRequest(ctx, req); err != nil {
		return 0, err
	}
	if err := r.db.SetMetadata(ctx, store.NextRequestIDKey, types.Uint64Bytes(r.nextID+1)); err != nil {
		return 0, err
	}
	r.nextID++
	r.pending[req.ID] = req
	return req.ID, nil
}

// Get returns the pending request with the given id.
func (r *Registry) Get(id uint64) (*types.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrRequestNotFound, id)
	}
	cp := *req
	return &cp, nil
}

// Delete removes a request. Returns ErrRequestNotFound if it does not exist;
// the one-shot reveal guarantee rests on this.
func (r *Registry) Delete(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrRequestNotFound, id)
	}
	if err := r.db.DeleteRequest(ctx, id); err != nil {
		return err
	}
	delete(r.pending, id)
	return nil
}

// Pending returns the number of requests waiting for reveal.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
