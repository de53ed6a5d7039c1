package config

import "time"

type EvictionPolicy string

const (
	// PolicyLRU evicts entries in ascending last-access order.
	PolicyLRU EvictionPolicy = "lru"
	// PolicyLFU evicts entries in ascending access-count order.
	PolicyLFU EvictionPolicy = "lfu"
	// PolicyFIFO evicts entries in ascending creation order.
	PolicyFIFO EvictionPolicy = "fifo"
	// PolicyPriority evicts entries in ascending priority order,
	// ties broken by ascending last-access time.
	PolicyPriority EvictionPolicy = "priority"
)

type MemoryCfg struct {
	// MaxEntries bounds the number of live entries. Zero means unbounded.
	MaxEntries int `yaml:"max_entries"`

	// MaxSizeBytes bounds the summed estimated entry footprint.
	// Zero means unbounded.
	MaxSizeBytes int64 `yaml:"max_size"`

	// Policy selects the eviction candidate ordering applied when a new
	// insert would exceed MaxEntries or MaxSizeBytes.
	Policy EvictionPolicy `yaml:"policy"`

	// DefaultTTL applies to entries stored without an explicit TTL.
	// Zero means never expire.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// CleanupInterval paces the background sweep that removes expired
	// entries. Defaults to one minute.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}
