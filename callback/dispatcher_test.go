package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romulus-oracle/romulus/types"
)

type consumerFunc func(ctx context.Context, requestID uint64, random types.RandomValue, data []byte) error

func (f consumerFunc) ReceiveRandom(ctx context.Context, requestID uint64, random types.RandomValue, data []byte) error {
	return f(ctx, requestID, random, data)
}

var testClient = common.HexToAddress("0xc0ffee")

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(logging.Logger("test"))
}

func TestDispatchSuccess(t *testing.T) {
	d := newTestDispatcher(t)

	var gotID uint64
	var gotData []byte
	consumer := consumerFunc(func(_ context.Context, id uint64, _ types.RandomValue, data []byte) error {
		gotID = id
		gotData = data
		return nil
	})

	res := d.Dispatch(context.Background(), testClient, consumer, 7, types.RandomValue{0x01}, []byte("echo"))
	assert.True(t, res.OK)
	assert.NoError(t, res.Err)
	assert.Equal(t, uint64(7), gotID)
	assert.Equal(t, []byte("echo"), gotData)
}

func TestDispatchCapturesError(t *testing.T) {
	d := newTestDispatcher(t)
	boom := errors.New("consumer exploded")

	consumer := consumerFunc(func(context.Context, uint64, types.RandomValue, []byte) error {
		return boom
	})

	res := d.Dispatch(context.Background(), testClient, consumer, 1, types.RandomValue{}, nil)
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, boom)
}

func TestDispatchCapturesPanic(t *testing.T) {
	d := newTestDispatcher(t)

	consumer := consumerFunc(func(context.Context, uint64, types.RandomValue, []byte) error {
		panic("unhinged consumer")
	})

	res := d.Dispatch(context.Background(), testClient, consumer, 1, types.RandomValue{}, nil)
	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panic")
}

func TestDispatchEnforcesBudget(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.SetBudget(MinBudget)
	require.NoError(t, err)

	consumer := consumerFunc(func(ctx context.Context, _ uint64, _ types.RandomValue, _ []byte) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	res := d.Dispatch(context.Background(), testClient, consumer, 1, types.RandomValue{}, nil)
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, ErrBudgetExceeded)
}

func TestDispatchNilConsumer(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), testClient, nil, 1, types.RandomValue{}, nil)
	assert.True(t, res.OK)
}

func TestSetBudgetValidation(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name    string
		budget  uint64
		wantErr bool
	}{
		{"below minimum", MinBudget - 1, true},
		{"at minimum", MinBudget, false},
		{"mid range", DefaultBudget, false},
		{"at maximum", MaxBudget, false},
		{"above maximum", MaxBudget + 1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.SetBudget(tc.budget)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidBudget)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.budget, d.Budget())
			}
		})
	}
}

func TestSetBudgetReturnsPrevious(t *testing.T) {
	d := newTestDispatcher(t)
	old, err := d.SetBudget(MaxBudget)
	require.NoError(t, err)
	assert.Equal(t, DefaultBudget, old)
}
