package farm

import (
	"fmt"
	"math"
	"math/big"

	"stakefarm/core/events"
)

const (
	lockReasonGovernance = "governance"
	lockReasonNeutral    = "neutralMultiplier"
	lockReasonReset      = "rewardsReset"
)

func (e *Engine) requireGovernor(caller [20]byte) error {
	if !e.auth.IsGovernor(caller) {
		return fmt.Errorf("%w: governor role required", ErrUnauthorized)
	}
	return nil
}

// requireOperator admits governors and guardians.
func (e *Engine) requireOperator(caller [20]byte) error {
	if e.auth.IsGovernor(caller) || e.auth.IsGuardian(caller) {
		return nil
	}
	return fmt.Errorf("%w: governor or guardian role required", ErrUnauthorized)
}

func addWeight(total, weight uint64) (uint64, error) {
	if weight > math.MaxUint64-total {
		return 0, errWeightOverflow
	}
	return total + weight, nil
}

// addPool registers a pool after bringing the existing ones current.
func (tx *txn) addPool(weight uint64, stakeToken string, table map[uint64]*big.Int) (uint64, error) {
	if weight == 0 {
		return 0, errZeroAllocationWeight
	}
	token := normalizeToken(stakeToken)
	if token == "" {
		return 0, errStakeTokenRequired
	}
	tiers, err := buildTiers(table)
	if err != nil {
		return 0, err
	}
	total, err := addWeight(tx.globals.TotalAllocationWeight, weight)
	if err != nil {
		return 0, err
	}
	if err := tx.massUpdatePools(); err != nil {
		return 0, err
	}
	pool := &Pool{
		ID:                 tx.globals.PoolCount,
		StakeToken:         token,
		AllocationWeight:   weight,
		LastAccrualTick:    tx.tick,
		AccRewardPerShare:  big.NewInt(0),
		VirtualTotalSupply: big.NewInt(0),
		LockTiers:          tiers,
	}
	tx.globals.PoolCount++
	tx.globals.TotalAllocationWeight = total
	tx.touchGlobals()
	tx.insertPool(pool)
	tx.emit(events.FarmPoolAdded{
		PoolID:           pool.ID,
		StakeToken:       token,
		AllocationWeight: weight,
		TotalWeight:      total,
		Tiers:            len(tiers),
		Tick:             tx.tick,
	})
	return pool.ID, nil
}

// AddPool registers a new pool and returns its id.
func (e *Engine) AddPool(caller [20]byte, weight uint64, stakeToken string, multipliers map[uint64]*big.Int) (uint64, error) {
	var id uint64
	err := e.run("addPool", func(tx *txn) error {
		if err := e.requireGovernor(caller); err != nil {
			return err
		}
		var err error
		id, err = tx.addPool(weight, stakeToken, multipliers)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetPoolWeight changes a pool's share of the emission. Every pool is brought
// current first since the total weight feeds all of them.
func (e *Engine) SetPoolWeight(caller [20]byte, poolID uint64, weight uint64) error {
	return e.run("setPoolWeight", func(tx *txn) error {
		if err := e.requireGovernor(caller); err != nil {
			return err
		}
		if weight == 0 {
			return errZeroAllocationWeight
		}
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		old := pool.AllocationWeight
		total, err := addWeight(tx.globals.TotalAllocationWeight-old, weight)
		if err != nil {
			return err
		}
		if err := tx.massUpdatePools(); err != nil {
			return err
		}
		pool.AllocationWeight = weight
		tx.globals.TotalAllocationWeight = total
		tx.touchPool(pool)
		tx.touchGlobals()
		tx.emit(events.FarmPoolWeightChanged{
			PoolID:      poolID,
			OldWeight:   old,
			NewWeight:   weight,
			TotalWeight: total,
			Tick:        tx.tick,
		})
		return nil
	})
}

// SetLockMultiplier adds or changes a lock tier. Existing deposits keep the
// multiplier they were created with.
func (e *Engine) SetLockMultiplier(caller [20]byte, poolID uint64, lockDuration uint64, multiplier *big.Int) error {
	return e.run("setLockMultiplier", func(tx *txn) error {
		if err := e.requireGovernor(caller); err != nil {
			return err
		}
		if err := validateTier(lockDuration, multiplier); err != nil {
			return err
		}
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		tx.updatePool(pool)
		old := pool.setTier(lockDuration, multiplier)
		if old == nil {
			old = big.NewInt(0)
		}
		tx.touchPool(pool)
		if e.forceUnlockOnNeutral && forceUnlockOnNeutralMultiplier(lockDuration, multiplier) {
			tx.setForceUnlocked(pool, true, lockReasonNeutral)
		}
		tx.emit(events.FarmLockMultiplierChanged{
			PoolID:        poolID,
			LockDuration:  lockDuration,
			OldMultiplier: new(big.Int).Set(old),
			NewMultiplier: new(big.Int).Set(multiplier),
			ForceUnlocked: pool.ForceUnlocked,
			Tick:          tx.tick,
		})
		return nil
	})
}

func (tx *txn) setForceUnlocked(pool *Pool, unlocked bool, reason string) {
	if pool.ForceUnlocked == unlocked {
		return
	}
	pool.ForceUnlocked = unlocked
	tx.touchPool(pool)
	tx.emit(events.FarmPoolLockChanged{PoolID: pool.ID, ForceUnlocked: unlocked, Reason: reason})
}

// LockPool re-enables per-deposit lock enforcement.
func (e *Engine) LockPool(caller [20]byte, poolID uint64) error {
	return e.setPoolLock("lockPool", caller, poolID, false)
}

// UnlockPool lets every deposit in the pool withdraw regardless of its unlock
// tick.
func (e *Engine) UnlockPool(caller [20]byte, poolID uint64) error {
	return e.setPoolLock("unlockPool", caller, poolID, true)
}

func (e *Engine) setPoolLock(operation string, caller [20]byte, poolID uint64, unlocked bool) error {
	return e.run(operation, func(tx *txn) error {
		if err := e.requireGovernor(caller); err != nil {
			return err
		}
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		tx.updatePool(pool)
		tx.setForceUnlocked(pool, unlocked, lockReasonGovernance)
		return nil
	})
}

// UpdateEmissionRate brings every pool current at the old rate, then switches
// to rate. Zero halts emission.
func (e *Engine) UpdateEmissionRate(caller [20]byte, rate *big.Int) error {
	return e.run("updateEmissionRate", func(tx *txn) error {
		if err := e.requireGovernor(caller); err != nil {
			return err
		}
		if err := checkRate(rate); err != nil {
			return err
		}
		if err := tx.massUpdatePools(); err != nil {
			return err
		}
		old := tx.globals.EmissionPerTick
		tx.globals.EmissionPerTick = new(big.Int).Set(rate)
		tx.touchGlobals()
		tx.emit(events.FarmEmissionRateChanged{
			OldRate: new(big.Int).Set(old),
			NewRate: new(big.Int).Set(rate),
			Tick:    tx.tick,
		})
		return nil
	})
}

// Pause blocks new deposits. Withdrawals and harvests stay open.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused("pause", caller, true)
}

// Unpause re-opens deposits.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused("unpause", caller, false)
}

func (e *Engine) setPaused(operation string, caller [20]byte, paused bool) error {
	return e.run(operation, func(tx *txn) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		if tx.globals.Paused == paused {
			return nil
		}
		tx.globals.Paused = paused
		tx.touchGlobals()
		if paused {
			tx.emit(events.FarmPaused{Caller: caller, Tick: tx.tick})
		} else {
			tx.emit(events.FarmUnpaused{Caller: caller, Tick: tx.tick})
		}
		return nil
	})
}

// ResetRewards retires a pool from emission and releases its locks so stakers
// can exit. SetPoolWeight re-activates it.
func (e *Engine) ResetRewards(caller [20]byte, poolID uint64) error {
	return e.run("resetRewards", func(tx *txn) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		if err := tx.massUpdatePools(); err != nil {
			return err
		}
		old := pool.AllocationWeight
		pool.AllocationWeight = 0
		tx.globals.TotalAllocationWeight -= old
		tx.touchPool(pool)
		tx.touchGlobals()
		tx.setForceUnlocked(pool, true, lockReasonReset)
		tx.emit(events.FarmRewardsReset{
			PoolID:      poolID,
			OldWeight:   old,
			TotalWeight: tx.globals.TotalAllocationWeight,
			Tick:        tx.tick,
		})
		return nil
	})
}
