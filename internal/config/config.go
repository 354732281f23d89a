// Package config loads daemon configuration from defaults, an optional YAML
// file, and environment overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/geo"
)

// Duration wraps time.Duration so YAML can carry "5m" style values.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration.
type Config struct {
	DataDir        string `yaml:"data_dir"`
	EncryptedStore bool   `yaml:"encrypted_store"`

	APIAddr string `yaml:"api_addr"`

	BrowserPattern string `yaml:"browser_pattern"`

	SampleFile     string   `yaml:"sample_file"`
	SampleInterval Duration `yaml:"sample_interval"`
	LoopSamples    bool     `yaml:"loop_samples"`

	Geofence domain.Geofence `yaml:"geofence"`

	ReconcileInterval    Duration `yaml:"reconcile_interval"`
	ProcessCheckInterval Duration `yaml:"process_check_interval"`

	// EnforceStrictLock toggles the 21-day strict-mode settings lock.
	// Defaults to on; turning it off accepts every mutation unconditionally.
	EnforceStrictLock bool `yaml:"enforce_strict_lock"`
}

// Default returns the baseline configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:              filepath.Join(home, ".stridegate"),
		EncryptedStore:       false,
		APIAddr:              "127.0.0.1:8710",
		SampleInterval:       Duration(time.Second),
		Geofence:             domain.Geofence{RadiusMeters: geo.DefaultRadiusMeters},
		ReconcileInterval:    Duration(5 * time.Minute),
		ProcessCheckInterval: Duration(30 * time.Second),
		EnforceStrictLock:    true,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty or the file is missing, defaults stand), then environment
// variables. A .env file in the working directory is honored.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional; absence is not an error.
	_ = godotenv.Load()
	applyEnv(&cfg)

	cfg.normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STRIDEGATE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STRIDEGATE_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("STRIDEGATE_SAMPLE_FILE"); v != "" {
		cfg.SampleFile = v
	}
	if v := os.Getenv("STRIDEGATE_BROWSER"); v != "" {
		cfg.BrowserPattern = v
	}
}

// normalize clamps and defaults values that would otherwise misbehave.
func (c *Config) normalize() {
	c.Geofence.RadiusMeters = geo.ClampRadius(c.Geofence.RadiusMeters)
	if c.SampleInterval <= 0 {
		c.SampleInterval = Duration(time.Second)
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = Duration(5 * time.Minute)
	}
	if c.ProcessCheckInterval <= 0 {
		c.ProcessCheckInterval = Duration(30 * time.Second)
	}
}
