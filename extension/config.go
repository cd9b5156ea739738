package extension

import "time"

// Config holds the Giftcard extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.giftcard" or "giftcard" keys).
type Config struct {
	// DisableMigrate prevents auto-migration and auto-start.
	// The caller is then responsible for calling Start on the engine.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ExpirySweepInterval is how frequently the expiry sweeper scans for
	// cards whose expiry has passed (default: 1m). A non-positive value
	// disables the sweeper; expiry is still enforced at redemption time.
	ExpirySweepInterval time.Duration `json:"expiry_sweep_interval" mapstructure:"expiry_sweep_interval" yaml:"expiry_sweep_interval"`

	// ExpirySweepBatch is the maximum number of cards materialized as
	// expired per sweep (default: 100).
	ExpirySweepBatch int `json:"expiry_sweep_batch" mapstructure:"expiry_sweep_batch" yaml:"expiry_sweep_batch"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExpirySweepInterval: time.Minute,
		ExpirySweepBatch:    100,
	}
}
