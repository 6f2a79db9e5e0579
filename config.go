package cachedemo

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the demo server configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	Provider    string `yaml:"provider"`
	SQLitePath  string `yaml:"sqlitePath"`
	LevelDBPath string `yaml:"leveldbPath"`

	// PostLimit truncates the post list returned by the demo endpoints.
	PostLimit int `yaml:"postLimit"`
	// SMaxAge is the shared-cache lifetime of the probe endpoint, in seconds.
	SMaxAge int `yaml:"sMaxAge"`
	// RevalidateTTL is the time-to-live of the timed revalidation endpoint.
	RevalidateTTL time.Duration `yaml:"revalidateTTL"`
	// SweepInterval controls the expired-entry sweeper; 0 disables it.
	SweepInterval time.Duration `yaml:"sweepInterval"`

	Content ContentConfig `yaml:"content"`
	CDN     CDNConfig     `yaml:"cdn"`
	Probe   ProbeConfig   `yaml:"probe"`
}

// ContentConfig selects the backing store for demo content.
type ContentConfig struct {
	// Remote switches from the built-in mock records to a remote JSON API.
	Remote       bool   `yaml:"remote"`
	BaseURL      string `yaml:"baseUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	TokenURL     string `yaml:"tokenUrl"`
}

// CDNConfig points at the downstream CDN purge endpoint.
type CDNConfig struct {
	PurgeURL string `yaml:"purgeUrl"`
	Token    string `yaml:"token"`
}

// ProbeConfig bounds the probe client's polling loops.
type ProbeConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Listen:        ":8080",
		Provider:      "sqlite",
		SQLitePath:    "./cache.db",
		LevelDBPath:   "./data/leveldb",
		PostLimit:     3,
		SMaxAge:       60,
		RevalidateTTL: 10 * time.Second,
		SweepInterval: 15 * time.Second,
		Probe: ProbeConfig{
			Attempts: 5,
			Delay:    2 * time.Second,
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
// Environment variables in the file are expanded.
func LoadConfig(filename string) (Config, error) {
	config := DefaultConfig()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(configBytes))
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}
