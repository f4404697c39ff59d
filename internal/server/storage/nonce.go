package storage

import (
	"context"
	"time"
)

// NonceStorage defines interface for the replay-protection nonce ledger
//
// The ledger is keyed by SHA-256 of raw signature bytes and is decoupled
// from device identity: a signature is already bound to one device's key
type NonceStorage interface {
	// CheckAndRecord atomically records a nonce hash.
	// Returns ErrNonceReplayed if the hash was already recorded.
	// The insert-if-absent must be a single atomic operation so that two
	// identical concurrent requests get exactly one acceptance
	CheckAndRecord(ctx context.Context, nonceHash []byte) error

	// DeleteExpired removes ledger entries older than maxAge and returns
	// the number of deleted rows. Storage-bound concern only: stale
	// timestamps are rejected independently of ledger contents
	DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}
