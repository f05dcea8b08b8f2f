package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"

	"github.com/romulus-oracle/romulus/types"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found in store")

// Store persists oracle state: pending requests, metadata, and component
// snapshots.
type Store interface {
	// PutRequest saves or overwrites a pending request.
	PutRequest(ctx context.Context, req *types.Request) error
	// GetRequest returns the pending request with the given id.
	GetRequest(ctx context.Context, id uint64) (*types.Request, error)
	// DeleteRequest removes a request. Deleting a missing request is not an error.
	DeleteRequest(ctx context.Context, id uint64) error
	// Requests returns all pending requests.
	Requests(ctx context.Context) ([]*types.Request, error)

	// SetMetadata saves an arbitrary value under the given key.
	SetMetadata(ctx context.Context, key string, value []byte) error
	// GetMetadata returns a value stored with SetMetadata, or ErrNotFound.
	GetMetadata(ctx context.Context, key string) ([]byte, error)

	// Close safely closes the underlying data storage.
	Close() error
}

// DefaultStore is a Store backed by an ipfs datastore.
type DefaultStore struct {
	db ds.Batching
}

var _ Store = (*DefaultStore)(nil)

// New returns a new store on top of the given datastore.
func New(db ds.Batching) *DefaultStore {
	return &DefaultStore{db: db}
}

// Close safely closes the underlying data storage.
func (s *DefaultStore) Close() error {
	return s.db.Close()
}

// PutRequest saves or overwrites a pending request.
func (s *DefaultStore) PutRequest(ctx context.Context, req *types.Request) error {
	blob, err := req.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal request %d: %w", req.ID, err)
	}
	if err := s.db.Put(ctx, ds.NewKey(getRequestKey(req.ID)), blob); err != nil {
		return fmt.Errorf("failed to put request %d: %w", req.ID, err)
	}
	return nil
}

// GetRequest returns the pending request with the given id.
func (s *DefaultStore) GetRequest(ctx context.Context, id uint64) (*types.Request, error) {
	blob, err := s.db.Get(ctx, ds.NewKey(getRequestKey(id)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", id, err)
	}
	req := new(types.Request)
	if err := req.UnmarshalBinary(blob); err != nil {
		return nil, err
	}
	return req, nil
}

// DeleteRequest removes a request from the store.
func (s *DefaultStore) DeleteRequest(ctx context.Context, id uint64) error {
	if err := s.db.Delete(ctx, ds.NewKey(getRequestKey(id))); err != nil {
		return fmt.Errorf("failed to delete request %d: %w", id, err)
	}
	return nil
}

// Requests returns all pending requests, used to rebuild in-memory state on
// startup.
func (s *DefaultStore) Requests(ctx context.Context) ([]*types.Request, error) {
	results, err := s.db.Query(ctx, query.Query{Prefix: "/" + requestPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer results.Close()

	var reqs []*types.Request
	for result := range results.Next() {
		if result.Error != nil {
			return nil, fmt.Errorf("failed to iterate requests: %w", result.Error)
		}
		id, err := RequestIDFromKey(result.Key)
		if err != nil {
			return nil, fmt.Errorf("malformed request key %q: %w", result.Key, err)
		}
		req := new(types.Request)
		if err := req.UnmarshalBinary(result.Value); err != nil {
			return nil, err
		}
		if req.ID != id {
			return nil, fmt.Errorf("request key %q does not match record id %d", result.Key, req.ID)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// SetMetadata saves an arbitrary value under the given key.
func (s *DefaultStore) SetMetadata(ctx context.Context, key string, value []byte) error {
	if err := s.db.Put(ctx, ds.NewKey(getMetaKey(key)), value); err != nil {
		return fmt.Errorf("failed to set metadata %q: %w", key, err)
	}
	return nil
}

// GetMetadata returns a value stored with SetMetadata.
func (s *DefaultStore) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.db.Get(ctx, ds.NewKey(getMetaKey(key)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata %q: %w", key, err)
	}
	return blob, nil
}

// RequestIDFromKey parses a request id out of a datastore key.
func RequestIDFromKey(key string) (uint64, error) {
	part := key[strings.LastIndex(key, "/")+1:]
	return strconv.ParseUint(part, 10, 64)
}
