package routes

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"stakefarm/crypto"
	"stakefarm/native/farm"
)

type lockTierView struct {
	Duration   uint64 `json:"duration"`
	Multiplier string `json:"multiplier"`
}

type poolView struct {
	ID                 uint64         `json:"id"`
	StakeToken         string         `json:"stakeToken"`
	AllocationWeight   uint64         `json:"allocationWeight"`
	LastAccrualTick    uint64         `json:"lastAccrualTick"`
	AccRewardPerShare  string         `json:"accRewardPerShare"`
	VirtualTotalSupply string         `json:"virtualTotalSupply"`
	ForceUnlocked      bool           `json:"forceUnlocked"`
	LockTiers          []lockTierView `json:"lockTiers"`
}

func newPoolView(p *farm.Pool) poolView {
	view := poolView{
		ID:                 p.ID,
		StakeToken:         p.StakeToken,
		AllocationWeight:   p.AllocationWeight,
		LastAccrualTick:    p.LastAccrualTick,
		AccRewardPerShare:  amountString(p.AccRewardPerShare),
		VirtualTotalSupply: amountString(p.VirtualTotalSupply),
		ForceUnlocked:      p.ForceUnlocked,
		LockTiers:          make([]lockTierView, 0, len(p.LockTiers)),
	}
	for _, tier := range p.LockTiers {
		view.LockTiers = append(view.LockTiers, lockTierView{Duration: tier.Duration, Multiplier: amountString(tier.Multiplier)})
	}
	return view
}

type depositView struct {
	ID         uint64 `json:"id"`
	Principal  string `json:"principal"`
	Multiplier string `json:"multiplier"`
	UnlockTick uint64 `json:"unlockTick"`
	State      string `json:"state"`
}

func newDepositView(d farm.Deposit, state farm.DepositState) depositView {
	return depositView{
		ID:         d.ID,
		Principal:  amountString(d.Principal),
		Multiplier: amountString(d.Multiplier),
		UnlockTick: d.UnlockTick,
		State:      state.String(),
	}
}

type accountView struct {
	PoolID         uint64        `json:"poolId"`
	Owner          string        `json:"owner"`
	VirtualBalance string        `json:"virtualBalance"`
	RewardDebt     string        `json:"rewardDebt"`
	TotalStaked    string        `json:"totalStaked"`
	Pending        string        `json:"pending"`
	NextDepositID  uint64        `json:"nextDepositId"`
	Deposits       []depositView `json:"deposits"`
}

type stateView struct {
	Tick                  uint64 `json:"tick"`
	RewardToken           string `json:"rewardToken"`
	EmissionPerTick       string `json:"emissionPerTick"`
	TotalAllocationWeight uint64 `json:"totalAllocationWeight"`
	NumPools              uint64 `json:"numPools"`
	Paused                bool   `json:"paused"`
}

type depositRequest struct {
	Amount       string `json:"amount"`
	LockDuration uint64 `json:"lockDuration"`
}

type withdrawRequest struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
}

type recipientRequest struct {
	Recipient string `json:"recipient,omitempty"`
}

type addPoolRequest struct {
	Weight     uint64 `json:"weight"`
	StakeToken string `json:"stakeToken"`
	// Multipliers maps lock durations to 1e18-scaled multipliers.
	Multipliers map[string]string `json:"multipliers"`
}

type weightRequest struct {
	Weight uint64 `json:"weight"`
}

type multiplierRequest struct {
	Multiplier string `json:"multiplier"`
}

type rateRequest struct {
	Rate string `json:"rate"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	return v, nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr.Raw(), nil
}

func parseUint(field, raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", field)
	}
	return v, nil
}

func parseMultiplierTable(raw map[string]string) (map[uint64]*big.Int, error) {
	out := make(map[uint64]*big.Int, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		duration, err := parseUint("lock duration", k)
		if err != nil {
			return nil, err
		}
		mult, err := parseAmount("multiplier", raw[k])
		if err != nil {
			return nil, err
		}
		out[duration] = mult
	}
	return out, nil
}
