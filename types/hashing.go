package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FoldHash extends a running Keccak-256 chain with additional material.
// Folding is strictly sequential: each fold depends on the previous running
// value, so no single input can be reconstructed or substituted in isolation.
func FoldHash(running common.Hash, parts ...[]byte) common.Hash {
	data := make([][]byte, 0, len(parts)+1)
	data = append(data, running.Bytes())
	data = append(data, parts...)
	return crypto.Keccak256Hash(data...)
}

// Uint64Bytes encodes v big-endian for hash folding and store keys.
func Uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// Uint32Bytes encodes v big-endian for hash folding.
func Uint32Bytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}
