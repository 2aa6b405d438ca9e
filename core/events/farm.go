package events

import (
	"math/big"
	"strconv"

	"stakefarm/core/types"
	"stakefarm/crypto"
)

const (
	TypeFarmDeposited                = "farm.deposited"
	TypeFarmWithdrawnFromDeposit     = "farm.withdrawnFromDeposit"
	TypeFarmHarvested                = "farm.harvested"
	TypeFarmAllWithdrawnAndHarvested = "farm.allWithdrawnAndHarvested"
	TypeFarmEmergencyWithdrawn       = "farm.emergencyWithdrawn"
	TypeFarmPoolAdded                = "farm.poolAdded"
	TypeFarmPoolWeightChanged        = "farm.poolWeightChanged"
	TypeFarmLockMultiplierChanged    = "farm.lockMultiplierChanged"
	TypeFarmEmissionRateChanged      = "farm.emissionRateChanged"
	TypeFarmPaused                   = "farm.paused"
	TypeFarmUnpaused                 = "farm.unpaused"
	// TypeFarmPoolLockChanged is emitted whenever a pool's force-unlock flag
	// flips, whether by direct toggle or as a multiplier side effect.
	TypeFarmPoolLockChanged = "farm.poolLockChanged"
	TypeFarmRewardsReset    = "farm.rewardsReset"
)

// FarmDeposited captures a new locked deposit.
type FarmDeposited struct {
	PoolID       uint64
	User         [20]byte
	DepositID    uint64
	Amount       *big.Int
	VirtualDelta *big.Int
	LockDuration uint64
	UnlockTick   uint64
	Tick         uint64
}

// EventType satisfies the Event interface.
func (FarmDeposited) EventType() string { return TypeFarmDeposited }

// Event converts the structured payload into a broadcastable event.
func (e FarmDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmDeposited,
		Attributes: map[string]string{
			"poolId":       uintToString(e.PoolID),
			"user":         crypto.FormatRaw(e.User),
			"depositId":    uintToString(e.DepositID),
			"amount":       formatAmount(e.Amount),
			"virtualDelta": formatAmount(e.VirtualDelta),
			"lockDuration": uintToString(e.LockDuration),
			"unlockTick":   uintToString(e.UnlockTick),
			"tick":         uintToString(e.Tick),
		},
	}
}

// FarmWithdrawnFromDeposit captures a partial or full principal withdrawal
// from a single deposit.
type FarmWithdrawnFromDeposit struct {
	PoolID    uint64
	User      [20]byte
	Recipient [20]byte
	DepositID uint64
	Amount    *big.Int
	Closed    bool
	Tick      uint64
}

// EventType satisfies the Event interface.
func (FarmWithdrawnFromDeposit) EventType() string { return TypeFarmWithdrawnFromDeposit }

// Event converts the structured payload into a broadcastable event.
func (e FarmWithdrawnFromDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmWithdrawnFromDeposit,
		Attributes: map[string]string{
			"poolId":    uintToString(e.PoolID),
			"user":      crypto.FormatRaw(e.User),
			"recipient": crypto.FormatRaw(e.Recipient),
			"depositId": uintToString(e.DepositID),
			"amount":    formatAmount(e.Amount),
			"closed":    strconv.FormatBool(e.Closed),
			"tick":      uintToString(e.Tick),
		},
	}
}

// FarmHarvested captures a reward payout.
type FarmHarvested struct {
	PoolID    uint64
	User      [20]byte
	Recipient [20]byte
	Reward    *big.Int
	Tick      uint64
}

// EventType satisfies the Event interface.
func (FarmHarvested) EventType() string { return TypeFarmHarvested }

// Event converts the structured payload into a broadcastable event.
func (e FarmHarvested) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmHarvested,
		Attributes: map[string]string{
			"poolId":    uintToString(e.PoolID),
			"user":      crypto.FormatRaw(e.User),
			"recipient": crypto.FormatRaw(e.Recipient),
			"reward":    formatAmount(e.Reward),
			"tick":      uintToString(e.Tick),
		},
	}
}

// FarmAllWithdrawnAndHarvested captures a full exit that also pays rewards.
type FarmAllWithdrawnAndHarvested struct {
	PoolID    uint64
	User      [20]byte
	Recipient [20]byte
	Principal *big.Int
	Reward    *big.Int
	Deposits  uint64
	Tick      uint64
}

// EventType satisfies the Event interface.
func (FarmAllWithdrawnAndHarvested) EventType() string { return TypeFarmAllWithdrawnAndHarvested }

// Event converts the structured payload into a broadcastable event.
func (e FarmAllWithdrawnAndHarvested) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmAllWithdrawnAndHarvested,
		Attributes: map[string]string{
			"poolId":    uintToString(e.PoolID),
			"user":      crypto.FormatRaw(e.User),
			"recipient": crypto.FormatRaw(e.Recipient),
			"principal": formatAmount(e.Principal),
			"reward":    formatAmount(e.Reward),
			"deposits":  uintToString(e.Deposits),
			"tick":      uintToString(e.Tick),
		},
	}
}

// FarmEmergencyWithdrawn captures a principal-only exit that forfeits rewards.
type FarmEmergencyWithdrawn struct {
	PoolID    uint64
	User      [20]byte
	Recipient [20]byte
	Principal *big.Int
	Forfeited *big.Int
	Tick      uint64
}

// EventType satisfies the Event interface.
func (FarmEmergencyWithdrawn) EventType() string { return TypeFarmEmergencyWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e FarmEmergencyWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmEmergencyWithdrawn,
		Attributes: map[string]string{
			"poolId":    uintToString(e.PoolID),
			"user":      crypto.FormatRaw(e.User),
			"recipient": crypto.FormatRaw(e.Recipient),
			"principal": formatAmount(e.Principal),
			"forfeited": formatAmount(e.Forfeited),
			"tick":      uintToString(e.Tick),
		},
	}
}

// FarmPoolAdded captures pool registration.
type FarmPoolAdded struct {
	PoolID           uint64
	StakeToken       string
	AllocationWeight uint64
	TotalWeight      uint64
	Tiers            int
	Tick             uint64
}

// EventType satisfies the Event interface.
func (FarmPoolAdded) EventType() string { return TypeFarmPoolAdded }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmPoolAdded,
		Attributes: map[string]string{
			"poolId":           uintToString(e.PoolID),
			"stakeToken":       normalizeAsset(e.StakeToken),
			"allocationWeight": uintToString(e.AllocationWeight),
			"totalWeight":      uintToString(e.TotalWeight),
			"tiers":            strconv.Itoa(e.Tiers),
			"tick":             uintToString(e.Tick),
		},
	}
}

// FarmPoolWeightChanged captures a reweight (including resets to zero).
type FarmPoolWeightChanged struct {
	PoolID      uint64
	OldWeight   uint64
	NewWeight   uint64
	TotalWeight uint64
	Tick        uint64
}

// EventType satisfies the Event interface.
func (FarmPoolWeightChanged) EventType() string { return TypeFarmPoolWeightChanged }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolWeightChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmPoolWeightChanged,
		Attributes: map[string]string{
			"poolId":      uintToString(e.PoolID),
			"oldWeight":   uintToString(e.OldWeight),
			"newWeight":   uintToString(e.NewWeight),
			"totalWeight": uintToString(e.TotalWeight),
			"tick":        uintToString(e.Tick),
		},
	}
}

// FarmLockMultiplierChanged captures a lock tier upsert.
type FarmLockMultiplierChanged struct {
	PoolID        uint64
	LockDuration  uint64
	OldMultiplier *big.Int
	NewMultiplier *big.Int
	ForceUnlocked bool
	Tick          uint64
}

// EventType satisfies the Event interface.
func (FarmLockMultiplierChanged) EventType() string { return TypeFarmLockMultiplierChanged }

// Event converts the structured payload into a broadcastable event.
func (e FarmLockMultiplierChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmLockMultiplierChanged,
		Attributes: map[string]string{
			"poolId":        uintToString(e.PoolID),
			"lockDuration":  uintToString(e.LockDuration),
			"oldMultiplier": formatAmount(e.OldMultiplier),
			"newMultiplier": formatAmount(e.NewMultiplier),
			"forceUnlocked": strconv.FormatBool(e.ForceUnlocked),
			"tick":          uintToString(e.Tick),
		},
	}
}

// FarmEmissionRateChanged captures an emission update.
type FarmEmissionRateChanged struct {
	OldRate *big.Int
	NewRate *big.Int
	Tick    uint64
}

// EventType satisfies the Event interface.
func (FarmEmissionRateChanged) EventType() string { return TypeFarmEmissionRateChanged }

// Event converts the structured payload into a broadcastable event.
func (e FarmEmissionRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmEmissionRateChanged,
		Attributes: map[string]string{
			"oldRate": formatAmount(e.OldRate),
			"newRate": formatAmount(e.NewRate),
			"tick":    uintToString(e.Tick),
		},
	}
}

// FarmPaused is emitted when deposits are gated.
type FarmPaused struct {
	Caller [20]byte
	Tick   uint64
}

// EventType satisfies the Event interface.
func (FarmPaused) EventType() string { return TypeFarmPaused }

// Event converts the structured payload into a broadcastable event.
func (e FarmPaused) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmPaused,
		Attributes: map[string]string{
			"caller": crypto.FormatRaw(e.Caller),
			"tick":   uintToString(e.Tick),
		},
	}
}

// FarmUnpaused is emitted when deposits are re-enabled.
type FarmUnpaused struct {
	Caller [20]byte
	Tick   uint64
}

// EventType satisfies the Event interface.
func (FarmUnpaused) EventType() string { return TypeFarmUnpaused }

// Event converts the structured payload into a broadcastable event.
func (e FarmUnpaused) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmUnpaused,
		Attributes: map[string]string{
			"caller": crypto.FormatRaw(e.Caller),
			"tick":   uintToString(e.Tick),
		},
	}
}

// FarmPoolLockChanged captures a change of a pool's force-unlock flag.
type FarmPoolLockChanged struct {
	PoolID        uint64
	ForceUnlocked bool
	Reason        string
}

// EventType satisfies the Event interface.
func (FarmPoolLockChanged) EventType() string { return TypeFarmPoolLockChanged }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolLockChanged) Event() *types.Event {
	attrs := map[string]string{
		"poolId":        uintToString(e.PoolID),
		"forceUnlocked": strconv.FormatBool(e.ForceUnlocked),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeFarmPoolLockChanged, Attributes: attrs}
}

// FarmRewardsReset captures a pool being removed from emission.
type FarmRewardsReset struct {
	PoolID      uint64
	OldWeight   uint64
	TotalWeight uint64
	Tick        uint64
}

// EventType satisfies the Event interface.
func (FarmRewardsReset) EventType() string { return TypeFarmRewardsReset }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardsReset) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmRewardsReset,
		Attributes: map[string]string{
			"poolId":      uintToString(e.PoolID),
			"oldWeight":   uintToString(e.OldWeight),
			"totalWeight": uintToString(e.TotalWeight),
			"tick":        uintToString(e.Tick),
		},
	}
}
