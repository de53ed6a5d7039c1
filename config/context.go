package config

import "time"

// ContentPolicy is the base cache policy for one content type.
type ContentPolicy struct {
	TTL      time.Duration `yaml:"ttl"`
	Priority int           `yaml:"priority"`

	// ShouldCache, when set, decides cacheability for this content type
	// outright. Programmatic policies may install a predicate instead via
	// ShouldCacheFunc; YAML can only express the boolean form.
	ShouldCache *bool `yaml:"should_cache"`

	// ShouldCacheFunc, when non-nil, is evaluated against the current
	// context snapshot and wins over ShouldCache.
	ShouldCacheFunc func(ctx map[string]string) bool `yaml:"-"`

	// TTLMultiplier scales the composite TTL factor for this content type.
	// Zero means no contribution.
	TTLMultiplier float64 `yaml:"ttl_multiplier"`
}

// ContextRule maps one (contextKey, contextValue) pair to its policy effect.
type ContextRule struct {
	// TTLMultiplier is folded multiplicatively into the effective TTL
	// whenever the live context carries the matching value.
	// Zero means no contribution.
	TTLMultiplier float64 `yaml:"ttl_multiplier"`

	// ShouldCache set to false vetoes caching while the matching context
	// value is active (unless a content-type policy decides first).
	ShouldCache *bool `yaml:"should_cache"`
}

type ContextCfg struct {
	// DefaultPolicy applies to content types without their own entry.
	DefaultPolicy ContentPolicy `yaml:"default_policy"`

	// ContentPolicies is keyed by content type.
	ContentPolicies map[string]ContentPolicy `yaml:"content_policies"`

	// Rules is keyed by context key, then context value.
	// Example: rules[networkType][cellular] = {ttl_multiplier: 0.5}.
	Rules map[string]map[string]ContextRule `yaml:"rules"`
}

func (cfg *ContextCfg) Enabled() bool {
	return cfg != nil
}
