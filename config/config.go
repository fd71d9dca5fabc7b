package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the settlement engine configuration. Files ending in .yaml or
// .yml are decoded as YAML; anything else as TOML.
type Config struct {
	Storage    Storage    `toml:"Storage" yaml:"storage"`
	Chain      Chain      `toml:"Chain" yaml:"chain"`
	Reputation Reputation `toml:"Reputation" yaml:"reputation"`
	Activity   Activity   `toml:"Activity" yaml:"activity"`
	Telemetry  Telemetry  `toml:"Telemetry" yaml:"telemetry"`
	Logging    Logging    `toml:"Logging" yaml:"logging"`
	Pauses     Pauses     `toml:"Pauses" yaml:"pauses"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Storage: Storage{Backend: "leveldb", Path: "./escrow-data/state"},
		Chain:   Chain{MaxDepth: 16},
		Reputation: Reputation{
			ReleaseWeight:      5,
			DisputeWonWeight:   3,
			DisputeLostPenalty: 10,
			RefundPenalty:      2,
			VolumeUnit:         "1000",
			MaxVolumePoints:    20,
		},
		Activity: Activity{Driver: "sqlite", DSN: "./escrow-data/activity.db"},
		Logging:  Logging{Level: "info"},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else {
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown field %s", path, undecoded[0])
		}
	}
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = def.Storage.Backend
		if cfg.Storage.Path == "" {
			cfg.Storage.Path = def.Storage.Path
		}
	}
	if cfg.Chain.MaxDepth == 0 {
		cfg.Chain.MaxDepth = def.Chain.MaxDepth
	}
	if cfg.Reputation == (Reputation{}) {
		cfg.Reputation = def.Reputation
	}
	if strings.TrimSpace(cfg.Reputation.VolumeUnit) == "" {
		cfg.Reputation.VolumeUnit = def.Reputation.VolumeUnit
	}
	if strings.TrimSpace(cfg.Activity.Driver) == "" {
		cfg.Activity.Driver = def.Activity.Driver
		if cfg.Activity.DSN == "" {
			cfg.Activity.DSN = def.Activity.DSN
		}
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
