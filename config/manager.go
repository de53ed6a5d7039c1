package config

import "time"

type WritePolicy string

const (
	// WriteThrough writes synchronously to L1 and every lower tier.
	WriteThrough WritePolicy = "write-through"
	// WriteBack writes to L1 immediately and propagates to lower tiers
	// after WriteBackDelay; a newer set for the same key supersedes the
	// queued value.
	WriteBack WritePolicy = "write-back"
	// WriteAround writes to lower tiers only, bypassing L1.
	WriteAround WritePolicy = "write-around"
)

type ManagerCfg struct {
	// WritePolicy selects how Set propagates across tiers.
	// Defaults to write-through.
	WritePolicy WritePolicy `yaml:"write_policy"`

	// WriteBackDelay is how long a write-back entry may sit in the pending
	// queue before the flusher propagates it. Defaults to 1s.
	WriteBackDelay time.Duration `yaml:"write_back_delay"`

	// TelemetryEnabled turns on the periodic stats log line.
	TelemetryEnabled bool `yaml:"telemetry_enabled"`

	// TelemetryInterval paces the stats log. Defaults to 5s.
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}
