package farm

import "math/big"

// poolReward is the share of emission owed to a pool for elapsed ticks.
// Pools with zero weight, or a ledger with zero total weight, earn nothing.
func poolReward(elapsed uint64, emission *big.Int, weight, totalWeight uint64) *big.Int {
	if elapsed == 0 || weight == 0 || totalWeight == 0 || emission == nil || emission.Sign() == 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).SetUint64(elapsed)
	reward.Mul(reward, emission)
	reward.Mul(reward, new(big.Int).SetUint64(weight))
	return reward.Quo(reward, new(big.Int).SetUint64(totalWeight))
}

// accrue advances pool to tick. It returns the reward emitted to the pool over
// the interval and whether it was credited to stakers. Emission that lands on a
// pool without virtual supply is neither distributed nor banked.
func accrue(pool *Pool, globals *Globals, tick uint64) (*big.Int, bool) {
	if tick <= pool.LastAccrualTick {
		return big.NewInt(0), false
	}
	elapsed := tick - pool.LastAccrualTick
	reward := poolReward(elapsed, globals.EmissionPerTick, pool.AllocationWeight, globals.TotalAllocationWeight)
	pool.LastAccrualTick = tick
	if reward.Sign() == 0 || pool.VirtualTotalSupply.Sign() == 0 {
		return reward, false
	}
	pool.AccRewardPerShare.Add(pool.AccRewardPerShare, mulDiv(reward, scale, pool.VirtualTotalSupply))
	return reward, true
}

// updatePool brings a single pool current at the transaction tick.
func (tx *txn) updatePool(pool *Pool) {
	if tx.tick <= pool.LastAccrualTick {
		return
	}
	reward, distributed := accrue(pool, tx.globals, tx.tick)
	if !distributed {
		addTo(tx.undistributed, pool.ID, reward)
	}
	tx.touchPool(pool)
}

// massUpdatePools brings every registered pool current. It must run before
// anything that changes the emission split.
func (tx *txn) massUpdatePools() error {
	for id := uint64(0); id < tx.globals.PoolCount; id++ {
		pool, err := tx.pool(id)
		if err != nil {
			return err
		}
		tx.updatePool(pool)
	}
	return nil
}

// simulatePending computes what harvest would pay at tick without touching
// the stored pool.
func simulatePending(pool *Pool, globals *Globals, account *Account, tick uint64) *big.Int {
	if account == nil {
		return big.NewInt(0)
	}
	snapshot := pool.Clone()
	accrue(snapshot, globals, tick)
	return clampZero(pending(account, snapshot.AccRewardPerShare))
}
