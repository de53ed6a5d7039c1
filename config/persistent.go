package config

import "time"

type PersistentCfg struct {
	// Dir is the directory holding one payload file per key plus the index.
	// It is created if missing and must be writable.
	Dir string `yaml:"dir"`

	// IndexName is the file name of the key -> metadata index inside Dir.
	// Defaults to "index.json".
	IndexName string `yaml:"index_name"`

	// Compress runs stored payloads through the compression strategy.
	Compress bool `yaml:"compress"`

	// Encrypt runs stored payloads through the encryption strategy.
	// Requires EncryptionKey; enabling it without a key is a
	// construction-time error.
	Encrypt bool `yaml:"encrypt"`

	// EncryptionKey is the symmetric key handed to the encryption strategy.
	// Usually supplied programmatically rather than via YAML.
	EncryptionKey []byte `yaml:"encryption_key"`

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// FlushInterval paces background index flushes. The index is also
	// flushed on Close and on explicit Flush calls. Defaults to 30s.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func (cfg *PersistentCfg) Enabled() bool {
	return cfg != nil
}
