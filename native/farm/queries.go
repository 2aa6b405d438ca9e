package farm

import (
	"errors"
	"fmt"
	"math/big"
)

// PendingRewards simulates the accrual the next state-changing call would
// apply and reports what harvest would pay. Nothing is persisted.
func (e *Engine) PendingRewards(poolID uint64, user [20]byte) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		acc, err := tx.account(poolID, user)
		if err != nil {
			return err
		}
		out = simulatePending(pool, tx.globals, acc, tx.tick)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pool returns the stored pool. Accrual is not simulated.
func (e *Engine) Pool(poolID uint64) (*Pool, error) {
	var out *Pool
	err := e.view(func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		out = pool.Clone()
		return nil
	})
	return out, err
}

// Pools returns every pool ordered by id.
func (e *Engine) Pools() ([]*Pool, error) {
	var out []*Pool
	err := e.view(func(tx *txn) error {
		out = make([]*Pool, 0, tx.globals.PoolCount)
		for id := uint64(0); id < tx.globals.PoolCount; id++ {
			pool, err := tx.pool(id)
			if err != nil {
				return err
			}
			out = append(out, pool.Clone())
		}
		return nil
	})
	return out, err
}

func (e *Engine) NumPools() (uint64, error) {
	var n uint64
	err := e.view(func(tx *txn) error {
		n = tx.globals.PoolCount
		return nil
	})
	return n, err
}

// Account returns the user's ledger entry. Users that never deposited get a
// zero account.
func (e *Engine) Account(poolID uint64, user [20]byte) (*Account, error) {
	var out *Account
	err := e.view(func(tx *txn) error {
		if _, err := tx.pool(poolID); err != nil {
			return err
		}
		acc, err := tx.account(poolID, user)
		if err != nil {
			return err
		}
		if acc == nil {
			acc = newAccount(poolID, user)
		}
		out = acc.Clone()
		return nil
	})
	return out, err
}

// OpenDeposits lists the user's open deposits ordered by id.
func (e *Engine) OpenDeposits(poolID uint64, user [20]byte) ([]Deposit, error) {
	acc, err := e.Account(poolID, user)
	if err != nil {
		return nil, err
	}
	return acc.Deposits, nil
}

// DepositInfo returns a single deposit and its lifecycle state at the
// current tick. Closed deposits are reported as unknown.
func (e *Engine) DepositInfo(poolID uint64, user [20]byte, depositID uint64) (Deposit, DepositState, error) {
	var (
		dep   Deposit
		state DepositState
	)
	err := e.view(func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		acc, err := tx.account(poolID, user)
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
		dep = acc.Deposits[idx].Clone()
		state = dep.State(tx.tick, pool.ForceUnlocked)
		return nil
	})
	return dep, state, err
}

// TotalStaked sums the principal across the user's open deposits.
func (e *Engine) TotalStaked(poolID uint64, user [20]byte) (*big.Int, error) {
	acc, err := e.Account(poolID, user)
	if err != nil {
		return nil, err
	}
	return acc.TotalPrincipal(), nil
}

// Stakers lists every address that ever opened an account in the pool, in
// order of first deposit.
func (e *Engine) Stakers(poolID uint64) ([][20]byte, error) {
	var out [][20]byte
	err := e.view(func(tx *txn) error {
		if _, err := tx.pool(poolID); err != nil {
			return err
		}
		var err error
		out, err = tx.stakers(poolID)
		return err
	})
	return out, err
}

func (e *Engine) TotalAllocationWeight() (uint64, error) {
	var total uint64
	err := e.view(func(tx *txn) error {
		total = tx.globals.TotalAllocationWeight
		return nil
	})
	return total, err
}

func (e *Engine) EmissionPerTick() (*big.Int, error) {
	var rate *big.Int
	err := e.view(func(tx *txn) error {
		rate = copyBig(tx.globals.EmissionPerTick)
		return nil
	})
	return rate, err
}

// CurrentTick reads the configured clock.
func (e *Engine) CurrentTick() uint64 {
	if e == nil || e.clock == nil {
		return 0
	}
	return e.clock.CurrentTick()
}

// Paused reports whether deposits are currently blocked, by the ledger's own
// flag or the shared pause view.
func (e *Engine) Paused() (bool, error) {
	var paused bool
	err := e.view(func(tx *txn) error {
		paused = tx.paused()
		return nil
	})
	return paused, err
}

// CheckInvariants verifies that the pool's virtual supply equals the sum of
// its accounts' virtual balances, and that each account's balance matches its
// open deposits.
func (e *Engine) CheckInvariants(poolID uint64) error {
	err := e.view(func(tx *txn) error {
		pool, err := tx.pool(poolID)
		if err != nil {
			return err
		}
		owners, err := tx.stakers(poolID)
		if err != nil {
			return err
		}
		sum := big.NewInt(0)
		for _, owner := range owners {
			acc, err := tx.account(poolID, owner)
			if err != nil {
				return err
			}
			if acc == nil {
				continue
			}
			expected := big.NewInt(0)
			for _, dep := range acc.Deposits {
				expected.Add(expected, virtualAmount(dep.Principal, dep.Multiplier))
			}
			if expected.Cmp(acc.VirtualBalance) != 0 {
				return fmt.Errorf("%w: pool %d account virtual balance %s, deposits sum to %s",
					ErrInvariantViolated, poolID, acc.VirtualBalance, expected)
			}
			sum.Add(sum, acc.VirtualBalance)
		}
		if sum.Cmp(pool.VirtualTotalSupply) != 0 {
			return fmt.Errorf("%w: pool %d virtual supply %s, accounts sum to %s",
				ErrInvariantViolated, poolID, pool.VirtualTotalSupply, sum)
		}
		return nil
	})
	if errors.Is(err, ErrInvariantViolated) {
		e.telemetry.IncInvariantFailure(poolID)
	}
	return err
}
