package stratacache

import "github.com/stratacache/go-strata-cache/internal/manager"

type (
	GetOption = manager.GetOption
	SetOption = manager.SetOption
)

// Read options.
var (
	// Peek reads without touching access stats or the predictive feed.
	Peek = manager.Peek
	// ThrowOnMiss turns a plain miss into ErrMiss.
	ThrowOnMiss = manager.ThrowOnMiss
)

// Write options.
var (
	WithTTL          = manager.WithTTL
	WithContentType  = manager.WithContentType
	WithTags         = manager.WithTags
	WithSource       = manager.WithSource
	WithPriority     = manager.WithPriority
	WithDependencies = manager.WithDependencies
)

// PreCacheTag marks entries stored speculatively by predictive pre-caching.
const PreCacheTag = manager.PreCacheTag
