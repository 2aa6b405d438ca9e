package farm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stakefarm/core/events"
)

func TestGovernanceRequiresRoles(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())

	_, err := h.engine.AddPool(alice, 1, stakeToken, neutralTable())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetPoolWeight(alice, pool, 5), ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetLockMultiplier(alice, pool, 10, Scale()), ErrUnauthorized)
	require.ErrorIs(t, h.engine.LockPool(alice, pool), ErrUnauthorized)
	require.ErrorIs(t, h.engine.UnlockPool(alice, pool), ErrUnauthorized)
	require.ErrorIs(t, h.engine.UpdateEmissionRate(alice, e18(1)), ErrUnauthorized)
	require.ErrorIs(t, h.engine.Pause(alice), ErrUnauthorized)
	require.ErrorIs(t, h.engine.Unpause(alice), ErrUnauthorized)
	require.ErrorIs(t, h.engine.ResetRewards(alice, pool), ErrUnauthorized)

	// Guardians may pause and reset but not reconfigure.
	require.ErrorIs(t, h.engine.SetPoolWeight(guardian, pool, 5), ErrUnauthorized)
	require.ErrorIs(t, h.engine.UpdateEmissionRate(guardian, e18(1)), ErrUnauthorized)
	require.NoError(t, h.engine.Pause(guardian))
	require.NoError(t, h.engine.Unpause(guardian))
}

func TestAddPoolValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name   string
		weight uint64
		token  string
		table  map[uint64]*big.Int
		want   error
	}{
		{name: "zero weight", weight: 0, token: stakeToken, table: neutralTable(), want: errZeroAllocationWeight},
		{name: "no token", weight: 1, token: " ", table: neutralTable(), want: errStakeTokenRequired},
		{name: "empty table", weight: 1, token: stakeToken, table: map[uint64]*big.Int{}, want: errEmptyMultiplierTable},
		{name: "zero lock not neutral", weight: 1, token: stakeToken, table: map[uint64]*big.Int{0: MultiplierFromBps(11_000)}, want: errZeroLockMultiplier},
		{name: "bonus below scale", weight: 1, token: stakeToken, table: map[uint64]*big.Int{0: Scale(), 30: MultiplierFromBps(9_000)}, want: errMultiplierBelowScale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.AddPool(governor, tc.weight, tc.token, tc.table)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
	n, err := h.engine.NumPools()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAddPoolAssignsDenseIDs(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, uint64(0), h.addPool(10, neutralTable()))
	require.Equal(t, uint64(1), h.addPool(30, tieredTable()))

	total, err := h.engine.TotalAllocationWeight()
	require.NoError(t, err)
	require.Equal(t, uint64(40), total)

	pools, err := h.engine.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, stakeToken, pools[1].StakeToken)
	require.Len(t, pools[1].LockTiers, 3)
	require.Equal(t, uint64(100), pools[1].LockTiers[2].Duration)
}

func TestSetPoolWeightBringsPoolsCurrent(t *testing.T) {
	h := newHarness(t)
	p0 := h.addPool(100, neutralTable())
	p1 := h.addPool(100, neutralTable())
	h.setEmission(e18(100))
	h.deposit(alice, p0, e18(100), 0)
	h.deposit(bob, p1, e18(100), 0)

	h.clock.Advance(10)
	require.ErrorIs(t, h.engine.SetPoolWeight(governor, p0, 0), ErrInvalidParameter)
	require.NoError(t, h.engine.SetPoolWeight(governor, p0, 300))

	// The first 10 ticks split evenly regardless of the new weight.
	require.Equal(t, e18(500), h.pending(p0, alice))
	require.Equal(t, e18(500), h.pending(p1, bob))

	h.clock.Advance(4)
	require.Equal(t, e18(800), h.pending(p0, alice))
	require.Equal(t, e18(600), h.pending(p1, bob))

	total, err := h.engine.TotalAllocationWeight()
	require.NoError(t, err)
	require.Equal(t, uint64(400), total)
}

func TestUpdateEmissionRateAppliesForward(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(1, neutralTable())
	h.setEmission(e18(2))
	h.deposit(alice, pool, e18(1), 0)

	h.clock.Advance(5)
	require.NoError(t, h.engine.UpdateEmissionRate(governor, big.NewInt(0)))
	h.clock.Advance(5)
	require.Equal(t, e18(10), h.pending(pool, alice))

	require.ErrorIs(t, h.engine.UpdateEmissionRate(governor, big.NewInt(-1)), ErrInvalidParameter)
	rate, err := h.engine.EmissionPerTick()
	require.NoError(t, err)
	require.Zero(t, rate.Sign())
}

func TestSetLockMultiplierUpsertsTier(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())

	require.ErrorIs(t, h.engine.SetLockMultiplier(governor, pool, 0, MultiplierFromBps(12_000)), errZeroLockMultiplier)
	require.ErrorIs(t, h.engine.SetLockMultiplier(governor, pool, 10, MultiplierFromBps(5_000)), errMultiplierBelowScale)

	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 10, MultiplierFromBps(13_000)))
	id := h.deposit(alice, pool, e18(10), 10)

	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 10, MultiplierFromBps(25_000)))
	dep, state, err := h.engine.DepositInfo(pool, alice, id)
	require.NoError(t, err)
	require.Equal(t, DepositLocked, state)
	require.Equal(t, MultiplierFromBps(13_000), dep.Multiplier)

	p, err := h.engine.Pool(pool)
	require.NoError(t, err)
	require.False(t, p.ForceUnlocked)
	mult, ok := p.Multiplier(10)
	require.True(t, ok)
	require.Equal(t, MultiplierFromBps(25_000), mult)
}

func TestRaisingMultiplierDoesNotRelock(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, tieredTable())
	id := h.deposit(alice, pool, e18(10), 100)

	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 100, Scale()))
	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 100, MultiplierFromBps(30_000)))

	_, state, err := h.engine.DepositInfo(pool, alice, id)
	require.NoError(t, err)
	require.Equal(t, DepositUnlocked, state)
}

func TestLockAndUnlockPool(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, tieredTable())
	id := h.deposit(alice, pool, e18(10), 100)

	require.NoError(t, h.engine.UnlockPool(governor, pool))
	_, state, err := h.engine.DepositInfo(pool, alice, id)
	require.NoError(t, err)
	require.Equal(t, DepositUnlocked, state)

	require.NoError(t, h.engine.LockPool(governor, pool))
	err = h.engine.WithdrawFromDeposit(alice, pool, e18(1), alice, id)
	require.ErrorIs(t, err, ErrLocked)

	changes := filterTypes(h.recorder, events.TypeFarmPoolLockChanged)
	require.Len(t, changes, 2)
}

func TestResetRewardsStopsAccrual(t *testing.T) {
	h := newHarness(t)
	p0 := h.addPool(100, tieredTable())
	p1 := h.addPool(100, neutralTable())
	h.setEmission(e18(10))
	h.deposit(alice, p0, e18(10), 100)
	h.deposit(bob, p1, e18(10), 0)

	h.clock.Advance(4)
	require.NoError(t, h.engine.ResetRewards(guardian, p0))
	frozen := h.pending(p0, alice)
	require.Equal(t, e18(20), frozen)

	h.clock.Advance(6)
	require.Equal(t, frozen, h.pending(p0, alice))
	// bob now takes the full emission.
	require.Equal(t, e18(80), h.pending(p1, bob))

	// Reset pools are force-unlocked so stakers can leave.
	principal, reward, err := h.engine.WithdrawAllAndHarvest(alice, p0, alice)
	require.NoError(t, err)
	require.Equal(t, e18(10), principal)
	require.Equal(t, frozen, reward)

	require.NoError(t, h.engine.SetPoolWeight(governor, p0, 100))
	total, err := h.engine.TotalAllocationWeight()
	require.NoError(t, err)
	require.Equal(t, uint64(200), total)
}

func TestGovernanceEventsCarryState(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())
	h.setEmission(e18(3))
	require.NoError(t, h.engine.SetPoolWeight(governor, pool, 40))

	require.Equal(t, []string{
		events.TypeFarmPoolAdded,
		events.TypeFarmEmissionRateChanged,
		events.TypeFarmPoolWeightChanged,
	}, h.recorder.Types())

	added := h.recorder.Events[0].(events.FarmPoolAdded)
	require.Equal(t, uint64(100), added.TotalWeight)
	rate := h.recorder.Events[1].(events.FarmEmissionRateChanged)
	require.Zero(t, rate.OldRate.Sign())
	require.Equal(t, e18(3), rate.NewRate)
	weight := h.recorder.Events[2].(events.FarmPoolWeightChanged)
	require.Equal(t, uint64(100), weight.OldWeight)
	require.Equal(t, uint64(40), weight.TotalWeight)

	h.clock.Set(17)
	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 30, MultiplierFromBps(12_000)))
	changed := h.recorder.Events[len(h.recorder.Events)-1].(events.FarmLockMultiplierChanged)
	require.Equal(t, uint64(17), changed.Tick)
	require.Equal(t, uint64(30), changed.LockDuration)
	require.Zero(t, changed.OldMultiplier.Sign())
	require.Equal(t, "17", changed.Event().Attributes["tick"])
}

func TestGenesisAppliesOnce(t *testing.T) {
	h := newHarness(t)
	g := Genesis{
		EmissionPerTick: e18(5),
		Pools: []GenesisPool{
			{StakeToken: "lpt", AllocationWeight: 60, Multipliers: tieredTable()},
			{StakeToken: "lpt", AllocationWeight: 40, Multipliers: neutralTable()},
		},
	}
	applied, err := h.engine.GenesisApplied()
	require.NoError(t, err)
	require.False(t, applied)
	require.NoError(t, h.engine.InitGenesis(g))
	require.ErrorIs(t, h.engine.InitGenesis(g), errGenesisApplied)
	applied, err = h.engine.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)

	n, err := h.engine.NumPools()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
	rate, err := h.engine.EmissionPerTick()
	require.NoError(t, err)
	require.Equal(t, e18(5), rate)

	h.deposit(alice, 0, e18(1), 50)
	h.clock.Advance(10)
	require.Equal(t, e18(30), h.pending(0, alice))
}

func TestGenesisRejectsBadPoolAtomically(t *testing.T) {
	h := newHarness(t)
	err := h.engine.InitGenesis(Genesis{
		EmissionPerTick: e18(1),
		Pools: []GenesisPool{
			{StakeToken: stakeToken, AllocationWeight: 1, Multipliers: neutralTable()},
			{StakeToken: stakeToken, AllocationWeight: 1},
		},
	})
	require.ErrorIs(t, err, errEmptyMultiplierTable)
	n, err := h.engine.NumPools()
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, h.engine.InitGenesis(Genesis{}))
}
