package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakefarm/config"
	"stakefarm/crypto"
	"stakefarm/native/bank"
	"stakefarm/native/farm"
	"stakefarm/storage"
)

const genesisYAML = `
emission_per_tick: "1_000"
pools:
  - stake_token: lpt
    weight: 10
    multipliers_bps: {0: 10000, 30: 15000}
balances:
  - address: custody
    token: RWD
    amount: "1_000_000"
`

func TestApplyGenesisOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(genesisYAML), 0o600))

	kv := storage.NewKV(storage.NewMemDB())
	custody := crypto.ModuleAddress(farm.ModuleName).Raw()
	ledger := bank.NewLedger(kv, custody)
	engine := farm.NewEngine(kv, ledger, farm.NewManualClock(0), "RWD")

	require.NoError(t, applyGenesis(engine, ledger, path, custody, slog.Default()))
	require.NoError(t, applyGenesis(engine, ledger, path, custody, slog.Default()))

	bal, err := ledger.BalanceOf("RWD", custody)
	require.NoError(t, err)
	require.Equal(t, "1000000", bal.String())
	n, err := engine.NumPools()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	require.Zero(t, kv.Pending())
}

func TestApplyGenesisRejectsBadDocumentAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	bad := `
pools:
  - stake_token: lpt
    weight: 0
    multipliers_bps: {0: 10000}
balances:
  - address: custody
    token: RWD
    amount: "5"
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	kv := storage.NewKV(storage.NewMemDB())
	custody := crypto.ModuleAddress(farm.ModuleName).Raw()
	ledger := bank.NewLedger(kv, custody)
	engine := farm.NewEngine(kv, ledger, farm.NewManualClock(0), "RWD")

	require.ErrorIs(t, applyGenesis(engine, ledger, path, custody, slog.Default()), farm.ErrInvalidParameter)
	bal, err := ledger.BalanceOf("RWD", custody)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestTickOriginPersists(t *testing.T) {
	kv := storage.NewKV(storage.NewMemDB())
	first, err := tickOrigin(kv, config.Farm{})
	require.NoError(t, err)
	second, err := tickOrigin(kv, config.Farm{})
	require.NoError(t, err)
	require.True(t, first.Equal(second))

	fixed, err := tickOrigin(kv, config.Farm{GenesisTime: "2024-01-02T03:04:05Z"})
	require.NoError(t, err)
	require.True(t, fixed.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}
