package farm

import "math/big"

// GenesisPool describes a pool created at genesis.
type GenesisPool struct {
	StakeToken       string
	AllocationWeight uint64
	Multipliers      map[uint64]*big.Int
}

// Genesis seeds the ledger before any governor is involved.
type Genesis struct {
	EmissionPerTick *big.Int
	Pools           []GenesisPool
}

// InitGenesis applies g once. Pools are created in order and receive ids
// 0..n-1; a second call fails.
func (e *Engine) InitGenesis(g Genesis) error {
	return e.run("genesis", func(tx *txn) error {
		if tx.globals.GenesisApplied {
			return errGenesisApplied
		}
		rate := g.EmissionPerTick
		if rate == nil {
			rate = big.NewInt(0)
		}
		if err := checkRate(rate); err != nil {
			return err
		}
		tx.globals.EmissionPerTick = new(big.Int).Set(rate)
		for _, spec := range g.Pools {
			if _, err := tx.addPool(spec.AllocationWeight, spec.StakeToken, spec.Multipliers); err != nil {
				return err
			}
		}
		tx.globals.GenesisApplied = true
		tx.touchGlobals()
		return nil
	})
}

// GenesisApplied reports whether InitGenesis has already run.
func (e *Engine) GenesisApplied() (bool, error) {
	var applied bool
	err := e.view(func(tx *txn) error {
		applied = tx.globals.GenesisApplied
		return nil
	})
	return applied, err
}
