// Package redisadapter implements the distributed tier's Adapter contract on
// top of go-redis. It stores the opaque serialized payloads the tier hands
// it and leans on server-side TTLs for remote expiry.
package redisadapter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Adapter struct {
	client redis.UniversalClient
}

// New wraps an existing client. The caller owns the client's options;
// Disconnect closes it.
func New(client redis.UniversalClient) *Adapter {
	return &Adapter{client: client}
}

// NewFromAddr builds a single-node client for addr ("host:port").
func NewFromAddr(addr, password string, db int) *Adapter {
	return &Adapter{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := a.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Redis interprets 0 as no expiration.
	return a.client.Set(ctx, key, value, max(ttl, 0)).Err()
}

func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	n, err := a.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	n, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	return a.client.FlushDB(ctx).Err()
}

// Keys uses SCAN rather than KEYS so large namespaces cannot stall the
// server.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := a.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (a *Adapter) Connect(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *Adapter) Disconnect() error {
	return a.client.Close()
}
