// Package cacheerrs holds the sentinel errors shared by every tier.
package cacheerrs

import "errors"

var (
	// ErrMiss is returned on lookup misses when the caller opted into
	// throw-on-miss, and for entries found expired at access time.
	ErrMiss = errors.New("cache: miss")

	// ErrRemote wraps distributed-tier adapter failures (network, timeout).
	// Retryable.
	ErrRemote = errors.New("cache: remote adapter failure")

	// ErrCorrupted marks serialized payloads that failed decompression,
	// decryption or decoding. Never downgraded to a miss silently.
	ErrCorrupted = errors.New("cache: corrupted payload")

	// ErrValidation marks construction-time misconfiguration.
	ErrValidation = errors.New("cache: invalid configuration")
)
