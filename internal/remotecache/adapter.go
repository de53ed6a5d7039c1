package remotecache

import (
	"context"
	"time"
)

// Adapter is the contract a remote KV store must satisfy to back the
// distributed tier. Implementations own connection handling and the physical
// storage format of the opaque byte payloads handed to them.
type Adapter interface {
	// Get returns the stored bytes, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores the bytes; a positive ttl bounds their remote lifetime.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	// Keys lists keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Connect(ctx context.Context) error
	Disconnect() error
}
