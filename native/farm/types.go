package farm

import (
	"math/big"
	"slices"
	"sort"
)

// LockTier maps a lock duration (in ticks) to the reward multiplier granted to
// deposits that commit to it.
type LockTier struct {
	Duration   uint64
	Multiplier *big.Int
}

// Pool is a staking pool competing for the global emission.
type Pool struct {
	ID                 uint64
	StakeToken         string
	AllocationWeight   uint64
	LastAccrualTick    uint64
	AccRewardPerShare  *big.Int
	VirtualTotalSupply *big.Int
	ForceUnlocked      bool
	// LockTiers is kept sorted by Duration.
	LockTiers []LockTier
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AccRewardPerShare = copyBig(p.AccRewardPerShare)
	clone.VirtualTotalSupply = copyBig(p.VirtualTotalSupply)
	clone.LockTiers = make([]LockTier, len(p.LockTiers))
	for i, tier := range p.LockTiers {
		clone.LockTiers[i] = LockTier{Duration: tier.Duration, Multiplier: copyBig(tier.Multiplier)}
	}
	return &clone
}

// Active reports whether the pool participates in emission.
func (p *Pool) Active() bool { return p.AllocationWeight > 0 }

// Multiplier returns the multiplier offered for the lock duration.
func (p *Pool) Multiplier(duration uint64) (*big.Int, bool) {
	idx, ok := p.tierIndex(duration)
	if !ok {
		return nil, false
	}
	return copyBig(p.LockTiers[idx].Multiplier), true
}

// MultiplierTable renders the lock tiers as a map.
func (p *Pool) MultiplierTable() map[uint64]*big.Int {
	out := make(map[uint64]*big.Int, len(p.LockTiers))
	for _, tier := range p.LockTiers {
		out[tier.Duration] = copyBig(tier.Multiplier)
	}
	return out
}

func (p *Pool) tierIndex(duration uint64) (int, bool) {
	idx := sort.Search(len(p.LockTiers), func(i int) bool {
		return p.LockTiers[i].Duration >= duration
	})
	if idx < len(p.LockTiers) && p.LockTiers[idx].Duration == duration {
		return idx, true
	}
	return idx, false
}

// setTier upserts a tier and returns the previous multiplier (nil when new).
func (p *Pool) setTier(duration uint64, multiplier *big.Int) *big.Int {
	idx, ok := p.tierIndex(duration)
	if ok {
		old := p.LockTiers[idx].Multiplier
		p.LockTiers[idx].Multiplier = copyBig(multiplier)
		return old
	}
	p.LockTiers = slices.Insert(p.LockTiers, idx, LockTier{Duration: duration, Multiplier: copyBig(multiplier)})
	return nil
}

// DepositState is the lifecycle position of a deposit.
type DepositState uint8

const (
	DepositLocked DepositState = iota
	DepositUnlocked
	DepositClosed
)

func (s DepositState) String() string {
	switch s {
	case DepositLocked:
		return "locked"
	case DepositUnlocked:
		return "unlocked"
	case DepositClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deposit is a single locked position. The multiplier is frozen when the
// deposit is created.
type Deposit struct {
	ID         uint64
	Principal  *big.Int
	Multiplier *big.Int
	UnlockTick uint64
}

// Clone returns a deep copy of the deposit.
func (d Deposit) Clone() Deposit {
	return Deposit{
		ID:         d.ID,
		Principal:  copyBig(d.Principal),
		Multiplier: copyBig(d.Multiplier),
		UnlockTick: d.UnlockTick,
	}
}

// State derives the lifecycle state at tick.
func (d Deposit) State(tick uint64, forceUnlocked bool) DepositState {
	if d.Principal == nil || d.Principal.Sign() == 0 {
		return DepositClosed
	}
	if forceUnlocked || tick >= d.UnlockTick {
		return DepositUnlocked
	}
	return DepositLocked
}

// Account is the per (pool, user) ledger entry. RewardDebt is signed and may
// go negative after partial withdrawals.
type Account struct {
	PoolID         uint64
	Owner          [20]byte
	VirtualBalance *big.Int
	RewardDebt     *big.Int
	NextDepositID  uint64
	// Deposits holds open positions ordered by ID.
	Deposits []Deposit
}

func newAccount(poolID uint64, owner [20]byte) *Account {
	return &Account{
		PoolID:         poolID,
		Owner:          owner,
		VirtualBalance: big.NewInt(0),
		RewardDebt:     big.NewInt(0),
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.VirtualBalance = copyBig(a.VirtualBalance)
	clone.RewardDebt = copyBig(a.RewardDebt)
	clone.Deposits = make([]Deposit, len(a.Deposits))
	for i, dep := range a.Deposits {
		clone.Deposits[i] = dep.Clone()
	}
	return &clone
}

// TotalPrincipal sums the principal of every open deposit.
func (a *Account) TotalPrincipal() *big.Int {
	total := big.NewInt(0)
	for _, dep := range a.Deposits {
		total.Add(total, dep.Principal)
	}
	return total
}

func (a *Account) depositIndex(id uint64) (int, bool) {
	idx := sort.Search(len(a.Deposits), func(i int) bool {
		return a.Deposits[i].ID >= id
	})
	if idx < len(a.Deposits) && a.Deposits[idx].ID == id {
		return idx, true
	}
	return idx, false
}

func (a *Account) removeDeposit(idx int) {
	a.Deposits = slices.Delete(a.Deposits, idx, idx+1)
}

// Globals holds ledger wide configuration shared by every pool.
type Globals struct {
	TotalAllocationWeight uint64
	EmissionPerTick       *big.Int
	PoolCount             uint64
	Paused                bool
	GenesisApplied        bool
}

func (g *Globals) Clone() *Globals {
	clone := *g
	clone.EmissionPerTick = copyBig(g.EmissionPerTick)
	return &clone
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
