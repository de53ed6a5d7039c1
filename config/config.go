package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
)

// Config groups configuration of all cache subsystems.
// The memory tier is always present; every other component can be disabled
// by leaving its section nil.
type Config struct {
	Memory MemoryCfg `yaml:"memory"`

	// Persistent configures the durable file-backed L2 tier.
	// If nil, the tier is disabled.
	Persistent *PersistentCfg `yaml:"persistent"`

	// Distributed configures the adapter-backed shared L3 tier.
	// If nil, the tier is disabled.
	Distributed *DistributedCfg `yaml:"distributed"`

	// Context configures context-aware TTL and cacheability policy.
	// If nil, base TTLs are used as-is and everything is cacheable.
	Context *ContextCfg `yaml:"context"`

	// Predict configures sequence-based predictive pre-caching.
	// If nil, no access patterns are learned.
	Predict *PredictCfg `yaml:"predict"`

	Manager ManagerCfg `yaml:"manager"`
}

func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config file %s is empty", cacheerrs.ErrValidation, path)
	}
	cfg.AdjustConfig()

	return cfg, nil
}

// AdjustConfig fills derived fields and defaults that are not read from YAML.
func (cfg *Config) AdjustConfig() {
	if cfg.Memory.CleanupInterval <= 0 {
		cfg.Memory.CleanupInterval = time.Minute
	}
	if cfg.Memory.Policy == "" {
		cfg.Memory.Policy = PolicyLRU
	}
	if cfg.Persistent.Enabled() {
		if cfg.Persistent.IndexName == "" {
			cfg.Persistent.IndexName = "index.json"
		}
		if cfg.Persistent.FlushInterval <= 0 {
			cfg.Persistent.FlushInterval = 30 * time.Second
		}
	}
	if cfg.Distributed.Enabled() {
		if cfg.Distributed.Namespace == "" {
			cfg.Distributed.Namespace = "strata"
		}
		if cfg.Distributed.OpTimeout <= 0 {
			cfg.Distributed.OpTimeout = 5 * time.Second
		}
	}
	if cfg.Predict.Enabled() {
		if cfg.Predict.WindowSize <= 0 {
			cfg.Predict.WindowSize = 1000
		}
		if cfg.Predict.ConfidenceThreshold <= 0 {
			cfg.Predict.ConfidenceThreshold = 0.7
		}
		if cfg.Predict.MaxPredictions <= 0 {
			cfg.Predict.MaxPredictions = 8
		}
		if cfg.Predict.FetchRatePerSec <= 0 {
			cfg.Predict.FetchRatePerSec = 50
		}
	}
	if cfg.Manager.WritePolicy == "" {
		cfg.Manager.WritePolicy = WriteThrough
	}
	if cfg.Manager.WriteBackDelay <= 0 {
		cfg.Manager.WriteBackDelay = time.Second
	}
	if cfg.Manager.TelemetryInterval <= 0 {
		cfg.Manager.TelemetryInterval = 5 * time.Second
	}
}

// Validate rejects misconfiguration at construction time rather than
// deferring it to first use.
func (cfg *Config) Validate() error {
	cfg.AdjustConfig()

	if cfg.Memory.MaxEntries < 0 || cfg.Memory.MaxSizeBytes < 0 {
		return fmt.Errorf("%w: memory limits must be non-negative", cacheerrs.ErrValidation)
	}
	switch cfg.Memory.Policy {
	case PolicyLRU, PolicyLFU, PolicyFIFO, PolicyPriority:
	default:
		return fmt.Errorf("%w: unknown eviction policy %q", cacheerrs.ErrValidation, cfg.Memory.Policy)
	}

	if cfg.Persistent.Enabled() {
		if cfg.Persistent.Dir == "" {
			return fmt.Errorf("%w: persistent tier requires a directory", cacheerrs.ErrValidation)
		}
		if cfg.Persistent.Encrypt && len(cfg.Persistent.EncryptionKey) == 0 {
			return fmt.Errorf("%w: encryption enabled without a key", cacheerrs.ErrValidation)
		}
	}

	if cfg.Distributed.Enabled() {
		if cfg.Distributed.Encrypt && len(cfg.Distributed.EncryptionKey) == 0 {
			return fmt.Errorf("%w: encryption enabled without a key", cacheerrs.ErrValidation)
		}
	}

	switch cfg.Manager.WritePolicy {
	case WriteThrough, WriteBack, WriteAround:
	default:
		return fmt.Errorf("%w: unknown write policy %q", cacheerrs.ErrValidation, cfg.Manager.WritePolicy)
	}

	if cfg.Predict.Enabled() && cfg.Predict.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold must be within (0, 1]", cacheerrs.ErrValidation)
	}

	return nil
}
