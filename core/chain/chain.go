package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrHashUnavailable is returned when a block hash has expired from the
	// oracle's bounded retention window.
	ErrHashUnavailable = errors.New("block hash unavailable: outside retention window")

	// ErrFutureBlock is returned when a hash is requested for a height that
	// has not been produced yet.
	ErrFutureBlock = errors.New("block hash unavailable: height not produced yet")
)

// Oracle supplies chain head information and bounded block-hash history.
// Hashes are queryable only for the most recent HistoryWindow heights strictly
// below the head; everything older is gone for good.
type Oracle interface {
	// Height returns the current chain head height.
	Height(ctx context.Context) (uint64, error)

	// Timestamp returns the unix timestamp (seconds) of the chain head.
	Timestamp(ctx context.Context) (uint64, error)

	// BlockHash returns the hash of the block at the given height.
	// Returns ErrFutureBlock for heights at or above the head and
	// ErrHashUnavailable for heights that have expired from retention.
	BlockHash(ctx context.Context, height uint64) (common.Hash, error)

	// HistoryWindow returns the number of most-recent block hashes retained.
	HistoryWindow() uint64
}
