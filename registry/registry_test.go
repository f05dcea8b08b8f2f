package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/pkg/store"
	"github.com/romulus-oracle/romulus/types"
)

func setupTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	db := store.New(dssync.MutexWrap(ds.NewMapDatastore()))
	r := New(db, logging.Logger("test"))
	require.NoError(t, r.Load(context.Background()))
	return r, db
}

func newRequest(client common.Address) *types.Request {
	return &types.Request{
		Client:     client,
		StartBlock: 101,
		Span:       8,
		CreatedAt:  100,
	}
}

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRegistry(t)

	for want := uint64(1); want <= 5; want++ {
		id, err := r.Create(ctx, newRequest(common.HexToAddress("0x01")))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 5, r.Pending())
}

func TestGetUnknownRequest(t *testing.T) {
	r, _ := setupTestRegistry(t)
	_, err := r.Get(42)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestDeleteIsOneShot(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRegistry(t)

	id, err := r.Create(ctx, newRequest(common.HexToAddress("0x01")))
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, id))
	require.ErrorIs(t, r.Delete(ctx, id), ErrRequestNotFound)

	_, err = r.Get(id)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRegistry(t)

	id, err := r.Create(ctx, newRequest(common.HexToAddress("0x01")))
	require.NoError(t, err)

	got, err := r.Get(id)
	require.NoError(t, err)
	got.Span = 999

	again, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, uint16(8), again.Span)
}

func TestLoadRestoresStateAndNextID(t *testing.T) {
	ctx := context.Background()
	db := store.New(dssync.MutexWrap(ds.NewMapDatastore()))
	logger := logging.Logger("test")

	r := New(db, logger)
	require.NoError(t, r.Load(ctx))

	var lastID uint64
	for i := 0; i < 3; i++ {
		id, err := r.Create(ctx, newRequest(common.HexToAddress("0x01")))
		require.NoError(t, err)
		lastID = id
	}
	require.NoError(t, r.Delete(ctx, 2))

	// Same datastore, fresh registry: ids continue, pending set survives.
	restarted := New(db, logger)
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, 2, restarted.Pending())

	id, err := restarted.Create(ctx, newRequest(common.HexToAddress("0x02")))
	require.NoError(t, err)
	assert.Equal(t, lastID+1, id)

	_, err = restarted.Get(2)
	require.ErrorIs(t, err, ErrRequestNotFound)
	_, err = restarted.Get(1)
	require.NoError(t, err)
}
