package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stakefarm/crypto"
	"stakefarm/native/farm"
)

// Genesis is the YAML document seeding a fresh ledger.
type Genesis struct {
	EmissionPerTick string           `yaml:"emission_per_tick"`
	Pools           []GenesisPool    `yaml:"pools"`
	Balances        []GenesisBalance `yaml:"balances"`
}

// GenesisPool declares a pool. Multipliers are keyed by lock duration in ticks
// and expressed in basis points (10000 = 1.0x).
type GenesisPool struct {
	StakeToken     string            `yaml:"stake_token"`
	Weight         uint64            `yaml:"weight"`
	MultipliersBps map[uint64]uint64 `yaml:"multipliers_bps"`
}

// GenesisBalance pre-funds an account. The custody account is addressed as
// "custody".
type GenesisBalance struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// Credit is a resolved genesis balance.
type Credit struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

// LoadGenesis reads the YAML genesis document from disk.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()
	var g Genesis
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// FarmGenesis converts the document into the ledger's genesis form.
func (g *Genesis) FarmGenesis() (farm.Genesis, error) {
	out := farm.Genesis{EmissionPerTick: big.NewInt(0)}
	if strings.TrimSpace(g.EmissionPerTick) != "" {
		rate, err := parseUintAmount(g.EmissionPerTick)
		if err != nil {
			return out, fmt.Errorf("emission_per_tick: %w", err)
		}
		out.EmissionPerTick = rate
	}
	for i, pool := range g.Pools {
		table := make(map[uint64]*big.Int, len(pool.MultipliersBps))
		for duration, bps := range pool.MultipliersBps {
			table[duration] = farm.MultiplierFromBps(bps)
		}
		if len(table) == 0 {
			return out, fmt.Errorf("pools[%d]: multipliers_bps required", i)
		}
		out.Pools = append(out.Pools, farm.GenesisPool{
			StakeToken:       pool.StakeToken,
			AllocationWeight: pool.Weight,
			Multipliers:      table,
		})
	}
	return out, nil
}

// Credits resolves the balance section. custody substitutes the "custody"
// placeholder address.
func (g *Genesis) Credits(custody [20]byte) ([]Credit, error) {
	out := make([]Credit, 0, len(g.Balances))
	for i, bal := range g.Balances {
		var addr [20]byte
		if strings.EqualFold(strings.TrimSpace(bal.Address), "custody") {
			addr = custody
		} else {
			decoded, err := crypto.DecodeAddress(bal.Address)
			if err != nil {
				return nil, fmt.Errorf("balances[%d].address: %w", i, err)
			}
			addr = decoded.Raw()
		}
		if strings.TrimSpace(bal.Token) == "" {
			return nil, fmt.Errorf("balances[%d].token required", i)
		}
		amount, err := parseUintAmount(bal.Amount)
		if err != nil {
			return nil, fmt.Errorf("balances[%d].amount: %w", i, err)
		}
		out = append(out, Credit{Address: addr, Token: bal.Token, Amount: amount})
	}
	return out, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
