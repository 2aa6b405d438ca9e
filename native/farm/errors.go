package farm

import (
	"errors"
	"fmt"

	nativecommon "stakefarm/native/common"
)

var (
	// ErrUnauthorized is returned when a caller without the governor (or,
	// where permitted, guardian) role invokes a governance operation.
	ErrUnauthorized = errors.New("farm: unauthorized")
	// ErrInvalidParameter covers malformed pool configuration, unknown pools
	// or deposits, unsupported lock durations and bad amounts.
	ErrInvalidParameter = errors.New("farm: invalid parameter")
	// ErrLocked is returned when principal is withdrawn before the unlock
	// tick of a deposit in a pool that is not force-unlocked.
	ErrLocked = errors.New("farm: deposit locked")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// remaining principal of a deposit.
	ErrInsufficientBalance = errors.New("farm: insufficient deposit balance")
	// ErrPaused gates new deposits. It also matches common.ErrModulePaused.
	ErrPaused = fmt.Errorf("farm: %w", nativecommon.ErrModulePaused)

	ErrUnknownPool    = fmt.Errorf("%w: unknown pool", ErrInvalidParameter)
	ErrUnknownDeposit = fmt.Errorf("%w: unknown deposit", ErrInvalidParameter)

	errEmptyMultiplierTable  = fmt.Errorf("%w: must specify rewards", ErrInvalidParameter)
	errZeroLockMultiplier    = fmt.Errorf("%w: invalid multiplier for 0 lock length", ErrInvalidParameter)
	errMultiplierBelowScale  = fmt.Errorf("%w: invalid multiplier, must be above scale factor", ErrInvalidParameter)
	errZeroAllocationWeight  = fmt.Errorf("%w: allocation weight must be positive", ErrInvalidParameter)
	errInvalidAmount         = fmt.Errorf("%w: amount must be positive and fit in 256 bits", ErrInvalidParameter)
	errStakeTokenRequired    = fmt.Errorf("%w: stake token required", ErrInvalidParameter)
	errWeightOverflow        = fmt.Errorf("%w: total allocation weight overflow", ErrInvalidParameter)
	errUnsupportedLockLength = fmt.Errorf("%w: lock duration not offered by pool", ErrInvalidParameter)
	errLockOverflow          = fmt.Errorf("%w: lock duration overflows tick range", ErrInvalidParameter)
	errGenesisApplied        = errors.New("farm: genesis already applied")
	errNilState              = errors.New("farm: engine not configured")
	errNilBank               = errors.New("farm: bank not configured")

	// ErrInvariantViolated reports a ledger whose per-account virtual balances
	// no longer add up to the pool's virtual supply.
	ErrInvariantViolated = errors.New("farm: invariant violated")
)
