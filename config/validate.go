package config

import (
	"fmt"
	"strings"

	"stakefarm/crypto"
)

var storageEngines = map[string]struct{}{
	"memory":  {},
	"leveldb": {},
	"bolt":    {},
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if _, ok := storageEngines[c.Storage.Engine]; !ok {
		return fmt.Errorf("storage: unknown engine %q", c.Storage.Engine)
	}
	if strings.TrimSpace(c.Farm.RewardToken) == "" {
		return fmt.Errorf("farm: RewardToken required")
	}
	if _, err := c.Farm.TickDuration(); err != nil {
		return err
	}
	if _, err := c.Farm.GenesisTimestamp(); err != nil {
		return err
	}
	if _, err := c.Farm.GovernorAddresses(); err != nil {
		return err
	}
	if _, err := c.Farm.GuardianAddresses(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit: Burst must be positive when RequestsPerSecond is set")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecretEnv) == "" {
		return fmt.Errorf("auth: HMACSecretEnv required when auth is enabled")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}

// GovernorAddresses decodes the configured governor list.
func (f Farm) GovernorAddresses() ([][20]byte, error) {
	return decodeAddresses("farm.Governors", f.Governors)
}

// GuardianAddresses decodes the configured guardian list.
func (f Farm) GuardianAddresses() ([][20]byte, error) {
	return decodeAddresses("farm.Guardians", f.Guardians)
}

func decodeAddresses(field string, values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for i, value := range values {
		addr, err := crypto.DecodeAddress(value)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, addr.Raw())
	}
	return out, nil
}
