package stratacache

import (
	"fmt"

	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
)

var (
	// ErrMiss is raised by Get only when the ThrowOnMiss option is set,
	// including for entries found expired at access time.
	ErrMiss = cacheerrs.ErrMiss

	// ErrRemote wraps distributed-tier adapter failures. Retryable.
	ErrRemote = cacheerrs.ErrRemote

	// ErrCorrupted marks serialized payloads that failed the
	// decrypt/decompress/decode pipeline.
	ErrCorrupted = cacheerrs.ErrCorrupted

	// ErrValidation marks construction-time misconfiguration.
	ErrValidation = cacheerrs.ErrValidation
)

var errAdapterRequired = fmt.Errorf("%w: distributed tier configured without adapter", ErrValidation)
