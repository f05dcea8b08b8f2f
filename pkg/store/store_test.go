package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/types"
)

func setupTestStore(t *testing.T) Store {
	t.Helper()
	return New(dssync.MutexWrap(ds.NewMapDatastore()))
}

func sampleRequest(id uint64) *types.Request {
	return &types.Request{
		ID:         id,
		Client:     common.HexToAddress("0xbeef"),
		StartBlock: 101,
		Span:       64,
		Data:       []byte("payload"),
		CreatedAt:  100,
	}
}

func TestRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	req := sampleRequest(1)
	require.NoError(t, s.PutRequest(ctx, req))

	got, err := s.GetRequest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	_, err = s.GetRequest(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRequest(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.PutRequest(ctx, sampleRequest(7)))
	require.NoError(t, s.DeleteRequest(ctx, 7))

	_, err := s.GetRequest(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRequestsQuery(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, s.PutRequest(ctx, sampleRequest(id)))
	}

	reqs, err := s.Requests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	ids := make(map[uint64]bool)
	for _, r := range reqs {
		ids[r.ID] = true
	}
	for id := uint64(1); id <= 3; id++ {
		assert.True(t, ids[id])
	}
}

func TestRequestsRejectsMismatchedKey(t *testing.T) {
	ctx := context.Background()
	db := dssync.MutexWrap(ds.NewMapDatastore())
	s := New(db)

	require.NoError(t, s.PutRequest(ctx, sampleRequest(1)))

	// A record stored under the wrong id must fail the rebuild scan.
	blob, err := sampleRequest(9).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, ds.NewKey(getRequestKey(2)), blob))

	_, err = s.Requests(ctx)
	require.Error(t, err)
}

func TestRequestIDFromKey(t *testing.T) {
	id, err := RequestIDFromKey("/r/42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = RequestIDFromKey("/r/nope")
	require.Error(t, err)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.GetMetadata(ctx, NextRequestIDKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetMetadata(ctx, NextRequestIDKey, []byte{1, 2, 3}))
	value, err := s.GetMetadata(ctx, NextRequestIDKey)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, value)
}
