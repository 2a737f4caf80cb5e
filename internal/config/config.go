// Package config loads the engine's tunable thresholds from an optional
// YAML file: cluster defaults, AIPW clip/trim bounds and the
// auto-scope heuristic, and the necessity precompute minimums. Every
// field has a pinned default, so running without --config gives the
// stock engine behavior.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pable/smeecher/internal/causal"
	"github.com/pable/smeecher/internal/cluster"
)

// Config is the full set of engine-tunable thresholds.
type Config struct {
	Cluster struct {
		NClusters      int `yaml:"n_clusters"`
		MinTokenFreq   int `yaml:"min_token_freq"`
		MinClusterSize int `yaml:"min_cluster_size"`
		TopKTokens     int `yaml:"top_k_tokens"`
	} `yaml:"cluster"`

	Causal struct {
		ClipEps             float64 `yaml:"clip_eps"`
		TrimLow             float64 `yaml:"trim_low"`
		TrimHigh            float64 `yaml:"trim_high"`
		NSplits             int     `yaml:"n_splits"`
		MinPrecomputeGroup  int     `yaml:"min_precompute_group"`
		AutoScopeShare      float64 `yaml:"auto_scope_share"`
		AutoScopeMinRows    int     `yaml:"auto_scope_min_rows"`
	} `yaml:"causal"`

	TFTSetNumber int `yaml:"tft_set_number"`
}

// Default returns the stock thresholds.
func Default() Config {
	var c Config
	dp := cluster.DefaultParams()
	c.Cluster.NClusters = dp.NClusters
	c.Cluster.MinTokenFreq = dp.MinTokenFreq
	c.Cluster.MinClusterSize = dp.MinClusterSize
	c.Cluster.TopKTokens = dp.TopKTokens

	dc := causal.DefaultConfig()
	c.Causal.ClipEps = dc.ClipEps
	c.Causal.TrimLow = dc.TrimLow
	c.Causal.TrimHigh = dc.TrimHigh
	c.Causal.NSplits = dc.NSplits
	c.Causal.MinPrecomputeGroup = dc.MinPrecomputeGroup
	c.Causal.AutoScopeShare = dc.AutoScopeShare
	c.Causal.AutoScopeMinRows = dc.AutoScopeMinRows

	c.TFTSetNumber = 16
	return c
}

// Load reads a YAML config file at path. Decoding starts from Default(),
// so keys absent from the file keep their stock values.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// ClusterParams builds a cluster.Params from the config, keeping every
// field DefaultParams pins that this config doesn't expose (batch size,
// n_init, reassignment ratio, random state).
func (c Config) ClusterParams() cluster.Params {
	p := cluster.DefaultParams()
	p.NClusters = c.Cluster.NClusters
	p.MinTokenFreq = c.Cluster.MinTokenFreq
	p.MinClusterSize = c.Cluster.MinClusterSize
	p.TopKTokens = c.Cluster.TopKTokens
	return p
}

// CausalConfig builds a causal.Config from the config's on-demand bounds
// and job thresholds.
func (c Config) CausalConfig() causal.Config {
	cfg := causal.DefaultConfig()
	cfg.ClipEps = c.Causal.ClipEps
	cfg.TrimLow = c.Causal.TrimLow
	cfg.TrimHigh = c.Causal.TrimHigh
	cfg.NSplits = c.Causal.NSplits
	cfg.AutoScopeShare = c.Causal.AutoScopeShare
	cfg.AutoScopeMinRows = c.Causal.AutoScopeMinRows
	cfg.MinPrecomputeGroup = c.Causal.MinPrecomputeGroup
	return cfg
}
