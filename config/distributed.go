package config

import "time"

type DistributedCfg struct {
	// RedisAddr, when set, builds a single-node Redis adapter ("host:port")
	// unless the caller supplies one programmatically.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Namespace prefixes every adapter key:
	// "<ns>:entry:<key>", "<ns>:tag:<tag>", "<ns>:source:<source>".
	// Defaults to "strata".
	Namespace string `yaml:"namespace"`

	// OpTimeout bounds every adapter round trip. A timed-out call surfaces
	// as a retryable remote error instead of hanging. Defaults to 5s.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// StrictErrors surfaces adapter failures as remote errors.
	// When false they are downgraded to cache misses.
	StrictErrors bool `yaml:"strict_errors"`

	// Compress and Encrypt mirror the persistent tier's codec pipeline.
	Compress      bool   `yaml:"compress"`
	Encrypt       bool   `yaml:"encrypt"`
	EncryptionKey []byte `yaml:"encryption_key"`

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

func (cfg *DistributedCfg) Enabled() bool {
	return cfg != nil
}
