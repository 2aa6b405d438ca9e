package farm

import (
	"fmt"
	"math"
	"math/big"

	"stakefarm/core/events"
	nativecommon "stakefarm/native/common"
)

func (tx *txn) paused() bool {
	if tx.globals.Paused {
		return true
	}
	return nativecommon.Guard(tx.engine.pauses, ModuleName) != nil
}

// Deposit locks amount of the pool's stake token for lockDuration ticks and
// returns the id of the new deposit.
func (e *Engine) Deposit(caller [20]byte, poolID uint64, amount *big.Int, lockDuration uint64) (uint64, error) {
	var depositID uint64
	err := e.run("deposit", func(tx *txn) error {
		if tx.paused() {
			return ErrPaused
		}
		if err := checkAmount(amount); err != nil {
			return err
		}
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		multiplier, ok := pool.Multiplier(lockDuration)
		if !ok {
			return fmt.Errorf("%w: %d", errUnsupportedLockLength, lockDuration)
		}
		if lockDuration > math.MaxUint64-tx.tick {
			return errLockOverflow
		}
		tx.updatePool(pool)

		acc, err := tx.ensureAccount(poolID, caller)
		if err != nil {
			return err
		}
		delta := virtualAmount(amount, multiplier)
		depositID = acc.NextDepositID
		acc.NextDepositID++
		acc.Deposits = append(acc.Deposits, Deposit{
			ID:         depositID,
			Principal:  new(big.Int).Set(amount),
			Multiplier: multiplier,
			UnlockTick: tx.tick + lockDuration,
		})
		acc.VirtualBalance.Add(acc.VirtualBalance, delta)
		acc.RewardDebt.Add(acc.RewardDebt, accumulated(delta, pool.AccRewardPerShare))
		pool.VirtualTotalSupply.Add(pool.VirtualTotalSupply, delta)
		tx.touchAccount(acc)
		tx.touchPool(pool)

		tx.transferIn(pool.StakeToken, caller, amount)
		tx.emit(events.FarmDeposited{
			PoolID:       poolID,
			User:         caller,
			DepositID:    depositID,
			Amount:       new(big.Int).Set(amount),
			VirtualDelta: delta,
			LockDuration: lockDuration,
			UnlockTick:   tx.tick + lockDuration,
			Tick:         tx.tick,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return depositID, nil
}

// WithdrawFromDeposit returns amount of principal from an unlocked deposit to
// recipient. Rewards stay in the account; the debt shrinks with the virtual
// balance and may go negative.
func (e *Engine) WithdrawFromDeposit(caller [20]byte, poolID uint64, amount *big.Int, recipient [20]byte, depositID uint64) error {
	return e.run("withdrawFromDeposit", func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		acc, err := tx.account(poolID, caller)
		if err != nil {
			return err
		}
		if acc == nil {
			return fmt.Errorf("%w: %d", ErrUnknownDeposit, depositID)
		}
		idx, ok := acc.depositIndex(depositID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownDeposit, depositID)
		}
		if err := checkAmount(amount); err != nil {
			return err
		}
		dep := &acc.Deposits[idx]
		if amount.Cmp(dep.Principal) > 0 {
			return fmt.Errorf("%w: requested %s, deposit holds %s", ErrInsufficientBalance, amount, dep.Principal)
		}
		if dep.State(tx.tick, pool.ForceUnlocked) == DepositLocked {
			return fmt.Errorf("%w: deposit %d unlocks at tick %d", ErrLocked, depositID, dep.UnlockTick)
		}
		tx.updatePool(pool)

		remaining := new(big.Int).Sub(dep.Principal, amount)
		// Differencing the virtual amounts keeps a deposit's contribution exact
		// across partial withdrawals, so closing it releases all of it.
		delta := virtualAmount(dep.Principal, dep.Multiplier)
		delta.Sub(delta, virtualAmount(remaining, dep.Multiplier))

		acc.VirtualBalance.Sub(acc.VirtualBalance, delta)
		acc.RewardDebt.Sub(acc.RewardDebt, accumulated(delta, pool.AccRewardPerShare))
		pool.VirtualTotalSupply.Sub(pool.VirtualTotalSupply, delta)
		dep.Principal = remaining
		closed := remaining.Sign() == 0
		if closed {
			acc.removeDeposit(idx)
		}
		tx.touchAccount(acc)
		tx.touchPool(pool)

		tx.transferOut(pool.StakeToken, recipient, amount)
		tx.emit(events.FarmWithdrawnFromDeposit{
			PoolID:    poolID,
			User:      caller,
			Recipient: recipient,
			DepositID: depositID,
			Amount:    new(big.Int).Set(amount),
			Closed:    closed,
			Tick:      tx.tick,
		})
		return nil
	})
}

// Harvest pays the caller's pending reward to recipient.
func (e *Engine) Harvest(caller [20]byte, poolID uint64, recipient [20]byte) (*big.Int, error) {
	reward := big.NewInt(0)
	err := e.run("harvest", func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		tx.updatePool(pool)
		acc, err := tx.account(poolID, caller)
		if err != nil {
			return err
		}
		if acc != nil {
			gross := accumulated(acc.VirtualBalance, pool.AccRewardPerShare)
			owed := new(big.Int).Sub(gross, acc.RewardDebt)
			acc.RewardDebt = gross
			tx.touchAccount(acc)
			reward = clampZero(owed)
			tx.transferOut(tx.engine.rewardToken, recipient, reward)
			addTo(tx.paid, poolID, reward)
		}
		tx.emit(events.FarmHarvested{
			PoolID:    poolID,
			User:      caller,
			Recipient: recipient,
			Reward:    new(big.Int).Set(reward),
			Tick:      tx.tick,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// requireUnlocked fails unless every open deposit can be withdrawn.
func requireUnlocked(acc *Account, pool *Pool, tick uint64) error {
	for _, dep := range acc.Deposits {
		if dep.State(tick, pool.ForceUnlocked) == DepositLocked {
			return fmt.Errorf("%w: deposit %d unlocks at tick %d", ErrLocked, dep.ID, dep.UnlockTick)
		}
	}
	return nil
}

// closeAccount zeroes the account and removes its weight from the pool. It
// returns the principal released and the pending reward (clamped at zero).
func closeAccount(acc *Account, pool *Pool) (*big.Int, *big.Int, uint64) {
	principal := acc.TotalPrincipal()
	owed := clampZero(pending(acc, pool.AccRewardPerShare))
	count := uint64(len(acc.Deposits))
	pool.VirtualTotalSupply.Sub(pool.VirtualTotalSupply, acc.VirtualBalance)
	acc.VirtualBalance = big.NewInt(0)
	acc.RewardDebt = big.NewInt(0)
	acc.Deposits = nil
	return principal, owed, count
}

// WithdrawAllAndHarvest closes every deposit and pays principal and reward to
// recipient. It fails as a whole if any deposit is still locked.
func (e *Engine) WithdrawAllAndHarvest(caller [20]byte, poolID uint64, recipient [20]byte) (*big.Int, *big.Int, error) {
	principal, reward := big.NewInt(0), big.NewInt(0)
	err := e.run("withdrawAllAndHarvest", func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		acc, err := tx.account(poolID, caller)
		if err != nil {
			return err
		}
		var count uint64
		if acc != nil {
			if err := requireUnlocked(acc, pool, tx.tick); err != nil {
				return err
			}
			tx.updatePool(pool)
			principal, reward, count = closeAccount(acc, pool)
			tx.touchAccount(acc)
			tx.touchPool(pool)
			tx.transferOut(pool.StakeToken, recipient, principal)
			tx.transferOut(tx.engine.rewardToken, recipient, reward)
			addTo(tx.paid, poolID, reward)
		} else {
			tx.updatePool(pool)
		}
		tx.emit(events.FarmAllWithdrawnAndHarvested{
			PoolID:    poolID,
			User:      caller,
			Recipient: recipient,
			Principal: new(big.Int).Set(principal),
			Reward:    new(big.Int).Set(reward),
			Deposits:  count,
			Tick:      tx.tick,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return principal, reward, nil
}

// EmergencyWithdraw returns every deposit's principal to recipient and forfeits
// the pending reward.
func (e *Engine) EmergencyWithdraw(caller [20]byte, poolID uint64, recipient [20]byte) (*big.Int, error) {
	principal := big.NewInt(0)
	err := e.run("emergencyWithdraw", func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		acc, err := tx.account(poolID, caller)
		if err != nil {
			return err
		}
		forfeited := big.NewInt(0)
		if acc != nil {
			if err := requireUnlocked(acc, pool, tx.tick); err != nil {
				return err
			}
			tx.updatePool(pool)
			principal, forfeited, _ = closeAccount(acc, pool)
			tx.touchAccount(acc)
			tx.touchPool(pool)
			tx.transferOut(pool.StakeToken, recipient, principal)
			addTo(tx.forfeited, poolID, forfeited)
		} else {
			tx.updatePool(pool)
		}
		tx.emit(events.FarmEmergencyWithdrawn{
			PoolID:    poolID,
			User:      caller,
			Recipient: recipient,
			Principal: new(big.Int).Set(principal),
			Forfeited: forfeited,
			Tick:      tx.tick,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return principal, nil
}
