package config

// Storage selects the key-value engine backing ledger state.
type Storage struct {
	// Engine is one of "memory", "leveldb" or "bolt".
	Engine string `toml:"Engine"`
}

// Farm holds the ledger runtime knobs.
type Farm struct {
	RewardToken string `toml:"RewardToken"`
	// GenesisTime is the RFC3339 instant tick 0 starts at.
	GenesisTime  string   `toml:"GenesisTime"`
	TickInterval string   `toml:"TickInterval"`
	Governors    []string `toml:"Governors"`
	Guardians    []string `toml:"Guardians"`
	// ForceUnlockOnNeutralMultiplier defaults to true when unset.
	ForceUnlockOnNeutralMultiplier *bool    `toml:"ForceUnlockOnNeutralMultiplier"`
	PausedModules                  []string `toml:"PausedModules"`
}

// ForceUnlockPolicy resolves the optional flag.
func (f Farm) ForceUnlockPolicy() bool {
	if f.ForceUnlockOnNeutralMultiplier == nil {
		return true
	}
	return *f.ForceUnlockOnNeutralMultiplier
}

// Journal configures the SQL event journal. An empty DSN disables it;
// postgres:// DSNs use Postgres, anything else is a SQLite file path.
type Journal struct {
	DSN string `toml:"DSN"`
}

// Auth configures bearer token authentication on the gateway.
type Auth struct {
	Enabled       bool   `toml:"Enabled"`
	HMACSecretEnv string `toml:"HMACSecretEnv"`
	Issuer        string `toml:"Issuer"`
	Audience      string `toml:"Audience"`
	// OptionalPaths skip authentication (read-only routes).
	OptionalPaths []string `toml:"OptionalPaths"`
}

// RateLimit throttles gateway clients.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Telemetry struct {
	ServiceName  string `toml:"ServiceName"`
	OTLPEndpoint string `toml:"OTLPEndpoint"`
	Insecure     bool   `toml:"Insecure"`
	Metrics      bool   `toml:"Metrics"`
	Traces       bool   `toml:"Traces"`
}

// Logging optionally mirrors logs into a rotated file.
type Logging struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}
