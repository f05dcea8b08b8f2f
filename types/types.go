package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// RandomValue is a 256-bit random output delivered to consumers.
type RandomValue = common.Hash

// Call carries the caller-side context of a single engine invocation.
// GasRemaining is an opaque compute-budget signal from the host; it feeds
// entropy accumulation and seed derivation but never controls flow.
type Call struct {
	Caller       common.Address
	GasRemaining uint64
}

// Request is a pending Secure-Mode randomness request. StartBlock is always
// the creation height plus one and is never supplied by the client; the
// client chooses only the span length and the opaque payload echoed back on
// reveal.
type Request struct {
	ID         uint64
	Client     common.Address
	StartBlock uint64
	Span       uint16
	Data       []byte
	CreatedAt  uint64
}

// LastBlock returns the height of the final block in the request's span.
func (r *Request) LastBlock() uint64 {
	return r.StartBlock + uint64(r.Span) - 1
}

// Seed is one slot of the Instant-Mode ring. A seed stays selectable until
// its consume count reaches the cap or it is explicitly invalidated; slots
// are only ever overwritten in place, never removed.
type Seed struct {
	Hash         common.Hash
	GeneratedAt  uint64
	ConsumeCount uint32
	Valid        bool
}
