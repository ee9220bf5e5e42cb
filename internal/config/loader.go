package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"botforge/pkg/types"
)

// Config holds every knob for one deployment attempt. It is the single
// replacement for the per-variant build recipes: one structure, passed into
// the pipeline, instead of near-duplicate files drifting apart.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	Port int    `json:"port" yaml:"port" toml:"port"`

	// Build specification.
	BaseImage    string             `json:"base_image" yaml:"base_image" toml:"base_image"`
	Dependencies []types.Dependency `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
	CopySet      []types.CopyEntry  `json:"copy_set" yaml:"copy_set" toml:"copy_set"`
	BuildUser    string             `json:"build_user" yaml:"build_user" toml:"build_user"`
	RunUser      string             `json:"run_user" yaml:"run_user" toml:"run_user"`
	Train        *bool              `json:"train" yaml:"train" toml:"train"`

	// Training data and working directories.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`

	// Engine selection: "stub", "rest" or "subprocess".
	Engine        string   `json:"engine" yaml:"engine" toml:"engine"`
	EngineURL     string   `json:"engine_url" yaml:"engine_url" toml:"engine_url"`
	EngineCommand []string `json:"engine_command" yaml:"engine_command" toml:"engine_command"`

	// Serving knobs.
	CORS          bool   `json:"cors" yaml:"cors" toml:"cors"`
	Debug         bool   `json:"debug" yaml:"debug" toml:"debug"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	Credentials   string `json:"credentials" yaml:"credentials" toml:"credentials"`
}

// Defaults applied by ApplyDefaults when fields are unset.
const (
	DefaultPort          = 5005
	DefaultBaseImage     = "python:3.10-slim"
	DefaultBuildUser     = "root"
	DefaultRunUser       = "bot"
	DefaultEngine        = "subprocess"
	DefaultMaxConcurrent = 16
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place and returns the receiver for
// chaining in main.
func (c *Config) ApplyDefaults() *Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Addr == "" {
		c.Addr = fmt.Sprintf(":%d", c.Port)
	}
	if c.BaseImage == "" {
		c.BaseImage = DefaultBaseImage
	}
	if c.BuildUser == "" {
		c.BuildUser = DefaultBuildUser
	}
	if c.RunUser == "" {
		c.RunUser = DefaultRunUser
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "botforge")
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	return c
}

// TrainEnabled reports whether the training stage should run. Unset means on:
// the full-service variant is the default, the plain gateway opts out.
func (c *Config) TrainEnabled() bool {
	if c.Train == nil {
		return true
	}
	return *c.Train
}

// BuildSpec projects the build-relevant fields into an immutable BuildSpec.
func (c *Config) BuildSpec() types.BuildSpec {
	return types.BuildSpec{
		BaseImage:    c.BaseImage,
		Dependencies: append([]types.Dependency(nil), c.Dependencies...),
		CopySet:      append([]types.CopyEntry(nil), c.CopySet...),
		BuildUser:    c.BuildUser,
		RunUser:      c.RunUser,
		Train:        c.TrainEnabled(),
	}
}
