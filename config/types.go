package config

// Storage selects the key-value backend holding settlement state.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Chain bounds the escrow dependency graph.
type Chain struct {
	MaxDepth int `toml:"MaxDepth" yaml:"maxDepth"`
}

// Reputation carries the weights of the default scoring policy.
type Reputation struct {
	ReleaseWeight      int64  `toml:"ReleaseWeight" yaml:"releaseWeight"`
	DisputeWonWeight   int64  `toml:"DisputeWonWeight" yaml:"disputeWonWeight"`
	DisputeLostPenalty int64  `toml:"DisputeLostPenalty" yaml:"disputeLostPenalty"`
	RefundPenalty      int64  `toml:"RefundPenalty" yaml:"refundPenalty"`
	VolumeUnit         string `toml:"VolumeUnit" yaml:"volumeUnit"`
	MaxVolumePoints    int64  `toml:"MaxVolumePoints" yaml:"maxVolumePoints"`
}

// Activity configures the append-only activity store.
type Activity struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
}

// Pauses lists modules whose mutations are rejected.
type Pauses struct {
	Escrow      bool `toml:"Escrow" yaml:"escrow"`
	Stream      bool `toml:"Stream" yaml:"stream"`
	Chain       bool `toml:"Chain" yaml:"chain"`
	Arbitration bool `toml:"Arbitration" yaml:"arbitration"`
}

// Modules returns the names of the paused modules.
func (p Pauses) Modules() []string {
	var out []string
	if p.Escrow {
		out = append(out, "escrow")
	}
	if p.Stream {
		out = append(out, "stream")
	}
	if p.Chain {
		out = append(out, "chain")
	}
	if p.Arbitration {
		out = append(out, "arbitration")
	}
	return out
}
