package farm

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// validateTier applies the multiplier bounds: the zero-length tier is exactly
// 1.0x and every other tier is at least 1.0x.
func validateTier(duration uint64, multiplier *big.Int) error {
	if multiplier == nil {
		return fmt.Errorf("%w: multiplier required for lock length %d", ErrInvalidParameter, duration)
	}
	if duration == 0 {
		if multiplier.Cmp(scale) != 0 {
			return errZeroLockMultiplier
		}
		return nil
	}
	if multiplier.Cmp(scale) < 0 {
		return errMultiplierBelowScale
	}
	if err := checkAmount(multiplier); err != nil {
		return err
	}
	return nil
}

// buildTiers validates a multiplier table and returns it sorted by duration.
func buildTiers(table map[uint64]*big.Int) ([]LockTier, error) {
	if len(table) == 0 {
		return nil, errEmptyMultiplierTable
	}
	tiers := make([]LockTier, 0, len(table))
	for duration, multiplier := range table {
		if err := validateTier(duration, multiplier); err != nil {
			return nil, err
		}
		tiers = append(tiers, LockTier{Duration: duration, Multiplier: new(big.Int).Set(multiplier)})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Duration < tiers[j].Duration })
	return tiers, nil
}

// forceUnlockOnNeutralMultiplier is the policy under which setting a nonzero
// lock tier to exactly 1.0x releases every lock in the pool. Deposits keep the
// multiplier they were created with.
func forceUnlockOnNeutralMultiplier(duration uint64, multiplier *big.Int) bool {
	return duration != 0 && multiplier != nil && multiplier.Cmp(scale) == 0
}

// MultiplierFromBps converts a basis point figure (10_000 = 1.0x) into the
// 1e18 fixed-point multiplier used by lock tiers.
func MultiplierFromBps(bps uint64) *big.Int {
	return mulDiv(new(big.Int).SetUint64(bps), scale, big.NewInt(10_000))
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
