package config

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxChainDepth caps the configurable dependency depth.
var MaxChainDepth = 256

// ValidateConfig checks the cross-field rules of a loaded configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	switch strings.ToLower(cfg.Storage.Backend) {
	case "mem", "memory":
	case "leveldb", "bolt":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Chain.MaxDepth <= 0 || cfg.Chain.MaxDepth > MaxChainDepth {
		return fmt.Errorf("chain: max_depth must be within [1,%d]", MaxChainDepth)
	}
	rep := cfg.Reputation
	if rep.ReleaseWeight < 0 || rep.DisputeWonWeight < 0 || rep.DisputeLostPenalty < 0 || rep.RefundPenalty < 0 {
		return fmt.Errorf("reputation: weights and penalties must not be negative")
	}
	if cfg.Reputation.MaxVolumePoints < 0 || cfg.Reputation.MaxVolumePoints > 100 {
		return fmt.Errorf("reputation: max_volume_points must be within [0,100]")
	}
	if _, err := cfg.Reputation.VolumeUnitAmount(); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Activity.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("activity: unknown driver %q", cfg.Activity.Driver)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	return nil
}

// VolumeUnitAmount parses VolumeUnit as a positive integer amount.
func (r Reputation) VolumeUnitAmount() (*big.Int, error) {
	unit, ok := new(big.Int).SetString(strings.TrimSpace(r.VolumeUnit), 10)
	if !ok || unit.Sign() <= 0 {
		return nil, fmt.Errorf("reputation: volume_unit must be a positive integer, got %q", r.VolumeUnit)
	}
	return unit, nil
}
