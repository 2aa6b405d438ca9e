package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress = ":8090"
	DefaultDataDir       = "./farm-data"
	DefaultTickInterval  = "1s"
	DefaultRewardToken   = "RWD"
)

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	GenesisFile   string    `toml:"GenesisFile"`
	Environment   string    `toml:"Environment"`
	Storage       Storage   `toml:"storage"`
	Farm          Farm      `toml:"farm"`
	Journal       Journal   `toml:"journal"`
	Auth          Auth      `toml:"auth"`
	RateLimit     RateLimit `toml:"ratelimit"`
	Telemetry     Telemetry `toml:"telemetry"`
	Logging       Logging   `toml:"logging"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults so a fresh node can start without hand editing.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	// Genesis paths are relative to the config file.
	if cfg.GenesisFile != "" && !filepath.IsAbs(cfg.GenesisFile) {
		cfg.GenesisFile = filepath.Join(filepath.Dir(path), cfg.GenesisFile)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration suitable for a single local node.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		Environment:   "local",
		Storage:       Storage{Engine: "leveldb"},
		Farm: Farm{
			RewardToken:  DefaultRewardToken,
			TickInterval: DefaultTickInterval,
			Governors:    []string{},
			Guardians:    []string{},
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Telemetry: Telemetry{ServiceName: "farmd"},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Storage.Engine) == "" {
		c.Storage.Engine = "leveldb"
	}
	c.Storage.Engine = strings.ToLower(strings.TrimSpace(c.Storage.Engine))
	if strings.TrimSpace(c.Farm.RewardToken) == "" {
		c.Farm.RewardToken = DefaultRewardToken
	}
	if strings.TrimSpace(c.Farm.TickInterval) == "" {
		c.Farm.TickInterval = DefaultTickInterval
	}
	if c.Farm.Governors == nil {
		c.Farm.Governors = []string{}
	}
	if c.Farm.Guardians == nil {
		c.Farm.Guardians = []string{}
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "farmd"
	}
}

// TickDuration parses the configured tick interval.
func (f Farm) TickDuration() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(f.TickInterval))
	if err != nil {
		return 0, fmt.Errorf("farm.TickInterval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("farm.TickInterval must be positive")
	}
	return d, nil
}

// GenesisTimestamp parses the tick origin. An empty value yields the zero time
// and callers substitute the node start time.
func (f Farm) GenesisTimestamp() (time.Time, error) {
	raw := strings.TrimSpace(f.GenesisTime)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("farm.GenesisTime: %w", err)
	}
	return ts, nil
}

// createDefault creates and saves a default configuration file.
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

	return toml.NewEncoder(f).Encode(cfg)
}
