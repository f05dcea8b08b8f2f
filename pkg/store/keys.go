package store

import (
	"strconv"
	"strings"
)

const (
	requestPrefix = "r"
	metaPrefix    = "m"

	// NextRequestIDKey is the metadata key holding the next request id.
	NextRequestIDKey = "next-request-id"

	// RingSnapshotKey is the metadata key holding the seed ring snapshot.
	RingSnapshotKey = "ring-snapshot"

	// EntropySnapshotKey is the metadata key holding the entropy accumulator snapshot.
	EntropySnapshotKey = "entropy-snapshot"

	// CallbackBudgetKey is the metadata key holding the configured callback budget.
	CallbackBudgetKey = "callback-budget"
)

// GenerateKey joins key parts into a datastore key path.
func GenerateKey(fields []string) string {
	return "/" + strings.Join(fields, "/")
}

func getRequestKey(id uint64) string {
	return GenerateKey([]string{requestPrefix, strconv.FormatUint(id, 10)})
}

func getMetaKey(key string) string {
	return GenerateKey([]string{metaPrefix, key})
}
