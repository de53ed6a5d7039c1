package config

type PredictCfg struct {
	// WindowSize bounds the sliding window of remembered accesses.
	// Transitions rolling off the window decay out of the model.
	// Defaults to 1000.
	WindowSize int `yaml:"window_size"`

	// ConfidenceThreshold is the minimum transition probability required
	// before a predicted key is prefetched. Defaults to 0.7.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// MaxPredictions caps how many candidates a single trigger considers.
	// Defaults to 8.
	MaxPredictions int `yaml:"max_predictions"`

	// FetchRatePerSec paces prefetch fetches so speculative loads cannot
	// starve demand traffic. Defaults to 50.
	FetchRatePerSec int `yaml:"fetch_rate_per_sec"`
}

func (cfg *PredictCfg) Enabled() bool {
	return cfg != nil
}
