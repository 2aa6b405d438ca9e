package farm

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakefarm/core/events"
	"stakefarm/native/bank"
	"stakefarm/storage"
)

const (
	stakeToken  = "LPT"
	rewardToken = "RWD"
)

var (
	governor = testAddr(0xa0)
	guardian = testAddr(0xa1)
	custody  = testAddr(0xfe)
	alice    = testAddr(0x01)
	bob      = testAddr(0x02)
	carol    = testAddr(0x03)
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

// e18 returns n * 1e18.
func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), scale)
}

type harness struct {
	t        *testing.T
	kv       *storage.KV
	bank     *bank.Ledger
	clock    *ManualClock
	engine   *Engine
	recorder *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDB(t, storage.NewMemDB())
}

func newHarnessWithDB(t *testing.T, db storage.Database) *harness {
	t.Helper()
	kv := storage.NewKV(db)
	ledger := bank.NewLedger(kv, custody)
	clock := NewManualClock(0)
	engine := NewEngine(kv, ledger, clock, rewardToken)
	engine.SetAuthorizer(NewRoles([][20]byte{governor}, [][20]byte{guardian}))
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	h := &harness{t: t, kv: kv, bank: ledger, clock: clock, engine: engine, recorder: recorder}
	h.fund(rewardToken, custody, e18(1_000_000_000))
	for _, user := range [][20]byte{alice, bob, carol} {
		h.fund(stakeToken, user, e18(1_000_000))
	}
	return h
}

func (h *harness) fund(token string, addr [20]byte, amount *big.Int) {
	h.t.Helper()
	require.NoError(h.t, h.bank.Credit(token, addr, amount))
	require.NoError(h.t, h.kv.Commit())
}

func (h *harness) balance(token string, addr [20]byte) *big.Int {
	h.t.Helper()
	bal, err := h.bank.BalanceOf(token, addr)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) addPool(weight uint64, table map[uint64]*big.Int) uint64 {
	h.t.Helper()
	id, err := h.engine.AddPool(governor, weight, stakeToken, table)
	require.NoError(h.t, err)
	return id
}

func (h *harness) setEmission(rate *big.Int) {
	h.t.Helper()
	require.NoError(h.t, h.engine.UpdateEmissionRate(governor, rate))
}

func (h *harness) deposit(user [20]byte, poolID uint64, amount *big.Int, lock uint64) uint64 {
	h.t.Helper()
	id, err := h.engine.Deposit(user, poolID, amount, lock)
	require.NoError(h.t, err)
	return id
}

func (h *harness) pending(poolID uint64, user [20]byte) *big.Int {
	h.t.Helper()
	out, err := h.engine.PendingRewards(poolID, user)
	require.NoError(h.t, err)
	return out
}

func (h *harness) requireInvariants(poolID uint64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.CheckInvariants(poolID))
}

func neutralTable() map[uint64]*big.Int {
	return map[uint64]*big.Int{0: Scale()}
}

func tieredTable() map[uint64]*big.Int {
	return map[uint64]*big.Int{
		0:   Scale(),
		50:  MultiplierFromBps(15_000),
		100: MultiplierFromBps(20_000),
	}
}

func TestScenarioSinglePoolAccrual(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())
	h.setEmission(e18(100))
	h.deposit(alice, pool, e18(100), 0)

	h.clock.Advance(10)
	require.Equal(t, e18(1000), h.pending(pool, alice))
	h.requireInvariants(pool)
}

func TestScenarioEqualPoolsSplitEmission(t *testing.T) {
	h := newHarness(t)
	p0 := h.addPool(100, neutralTable())
	p1 := h.addPool(100, neutralTable())
	h.setEmission(e18(100))
	h.deposit(alice, p0, e18(100), 0)
	h.deposit(bob, p1, e18(100), 0)

	const n = 10
	h.clock.Advance(n)
	gotA, err := h.engine.Harvest(alice, p0, alice)
	require.NoError(t, err)
	gotB, err := h.engine.Harvest(bob, p1, bob)
	require.NoError(t, err)

	want := new(big.Int).Mul(big.NewInt(n), e18(100))
	want.Quo(want, big.NewInt(2))
	require.Equal(t, want, gotA)
	require.Equal(t, want, gotB)
	require.Equal(t, want, h.balance(rewardToken, alice))
}

func TestScenarioAddingPoolHalvesRateGoingForward(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())
	h.setEmission(e18(100))
	h.deposit(alice, pool, e18(100), 0)

	h.clock.Advance(4)
	before := h.pending(pool, alice)
	require.Equal(t, e18(400), before)

	h.addPool(100, neutralTable())
	require.Equal(t, before, h.pending(pool, alice))

	h.clock.Advance(6)
	// 4 ticks at the full rate, 6 at half.
	require.Equal(t, e18(700), h.pending(pool, alice))
}

func TestScenarioLockMultiplierScalesReward(t *testing.T) {
	h := newHarness(t)
	table := map[uint64]*big.Int{0: Scale(), 100: MultiplierFromBps(12_000)}
	pool := h.addPool(100, table)
	h.setEmission(e18(100))
	h.deposit(alice, pool, e18(100), 0)
	h.deposit(bob, pool, e18(100), 100)

	h.clock.Advance(11)
	unlocked := h.pending(pool, alice)
	locked := h.pending(pool, bob)
	require.Positive(t, unlocked.Sign())

	// locked == 1.2 * unlocked, compared without division.
	lhs := new(big.Int).Mul(locked, big.NewInt(10))
	rhs := new(big.Int).Mul(unlocked, big.NewInt(12))
	require.Equal(t, rhs, lhs)
}

func TestScenarioEmergencyWithdrawForfeitsReward(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, tieredTable())
	h.setEmission(e18(100))
	startStake := h.balance(stakeToken, alice)
	h.deposit(alice, pool, e18(100), 50)

	h.clock.Advance(10)
	_, err := h.engine.EmergencyWithdraw(alice, pool, alice)
	require.ErrorIs(t, err, ErrLocked)

	h.clock.Advance(40)
	forfeit := h.pending(pool, alice)
	require.Positive(t, forfeit.Sign())

	h.recorder.Events = nil
	principal, err := h.engine.EmergencyWithdraw(alice, pool, alice)
	require.NoError(t, err)
	require.Equal(t, e18(100), principal)
	require.Equal(t, startStake, h.balance(stakeToken, alice))
	require.Zero(t, h.balance(rewardToken, alice).Sign())

	require.Len(t, h.recorder.Events, 1)
	evt := h.recorder.Events[0].(events.FarmEmergencyWithdrawn)
	require.Equal(t, forfeit, evt.Forfeited)
	require.Zero(t, h.pending(pool, alice).Sign())
	h.requireInvariants(pool)
}

func TestScenarioNeutralMultiplierForceUnlocks(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, tieredTable())
	h.setEmission(e18(100))
	id := h.deposit(alice, pool, e18(100), 100)

	h.clock.Advance(10)
	err := h.engine.WithdrawFromDeposit(alice, pool, e18(40), alice, id)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 100, Scale()))
	require.Less(t, h.engine.CurrentTick(), uint64(100))
	require.NoError(t, h.engine.WithdrawFromDeposit(alice, pool, e18(40), alice, id))

	dep, state, err := h.engine.DepositInfo(pool, alice, id)
	require.NoError(t, err)
	require.Equal(t, DepositUnlocked, state)
	require.Equal(t, e18(60), dep.Principal)
	// The deposit keeps the multiplier it was created with.
	require.Equal(t, MultiplierFromBps(20_000), dep.Multiplier)
	require.Contains(t, h.recorder.Types(), events.TypeFarmPoolLockChanged)
	h.requireInvariants(pool)
}

func TestNeutralMultiplierPolicyCanBeDisabled(t *testing.T) {
	h := newHarness(t)
	h.engine.SetForceUnlockOnNeutralMultiplier(false)
	pool := h.addPool(100, tieredTable())
	id := h.deposit(alice, pool, e18(10), 100)

	require.NoError(t, h.engine.SetLockMultiplier(governor, pool, 100, Scale()))
	err := h.engine.WithdrawFromDeposit(alice, pool, e18(10), alice, id)
	require.ErrorIs(t, err, ErrLocked)
}

func TestPendingRewardsDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())
	h.setEmission(e18(1))
	h.deposit(alice, pool, e18(1), 0)
	h.clock.Advance(5)

	before, err := h.engine.Pool(pool)
	require.NoError(t, err)
	h.pending(pool, alice)
	after, err := h.engine.Pool(pool)
	require.NoError(t, err)
	require.Equal(t, before.LastAccrualTick, after.LastAccrualTick)
	require.Equal(t, before.AccRewardPerShare, after.AccRewardPerShare)
	require.Zero(t, h.kv.Pending())
}

func TestEngineRequiresState(t *testing.T) {
	var e *Engine
	_, err := e.Deposit(alice, 0, big.NewInt(1), 0)
	require.ErrorIs(t, err, errNilState)

	e = NewEngine(nil, nil, nil, rewardToken)
	_, err = e.PendingRewards(0, alice)
	require.ErrorIs(t, err, errNilState)
}

// blockingEmitter parks the first event until release is closed.
type blockingEmitter struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	types []string
}

func (b *blockingEmitter) Emit(evt events.Event) {
	b.mu.Lock()
	first := len(b.types) == 0
	b.types = append(b.types, evt.EventType())
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
}

func (b *blockingEmitter) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.types...)
}

func TestSlowEmitterDoesNotHoldEngineLock(t *testing.T) {
	h := newHarness(t)
	pool := h.addPool(100, neutralTable())
	h.setEmission(e18(1))
	emitter := &blockingEmitter{entered: make(chan struct{}), release: make(chan struct{})}
	h.engine.SetEmitter(emitter)

	deposited := make(chan error, 1)
	go func() {
		_, err := h.engine.Deposit(alice, pool, e18(10), 0)
		deposited <- err
	}()
	select {
	case <-emitter.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("deposit event never reached the emitter")
	}

	others := make(chan error, 1)
	go func() {
		if _, err := h.engine.PendingRewards(pool, bob); err != nil {
			others <- err
			return
		}
		_, err := h.engine.Harvest(bob, pool, bob)
		others <- err
	}()
	select {
	case err := <-others:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ledger calls blocked behind a slow emitter")
	}

	close(emitter.release)
	require.NoError(t, <-deposited)
	require.Equal(t, []string{events.TypeFarmDeposited, events.TypeFarmHarvested}, emitter.seen())
}
