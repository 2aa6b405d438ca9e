package farm

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"stakefarm/core/events"
	nativecommon "stakefarm/native/common"
	"stakefarm/observability/metrics"
)

// ModuleName is the identifier consulted on the shared pause view.
const ModuleName = "farm"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// committer is implemented by states that stage writes (storage.KV). Engines
// built on a plain state write through directly.
type committer interface {
	Commit() error
	Discard()
}

// Bank moves stake and reward tokens between users and the ledger's custody
// account.
type Bank interface {
	TransferIn(token string, from [20]byte, amount *big.Int) error
	TransferOut(token string, to [20]byte, amount *big.Int) error
}

// Engine owns the pools, accounts and globals of the reward ledger. Every
// public operation runs under a single mutex, brings the affected pools
// current and commits its writes atomically.
type Engine struct {
	mu          sync.Mutex
	state       engineState
	bank        Bank
	clock       TickSource
	rewardToken string

	auth    Authorizer
	emitter events.Emitter
	pauses  nativecommon.PauseView

	forceUnlockOnNeutral bool
	telemetry            *metrics.FarmMetrics

	// outbox holds committed transactions in commit order until their
	// metrics and events are published outside mu.
	outboxMu   sync.Mutex
	outbox     []*txn
	publishing bool
}

// NewEngine constructs a ledger over state. Rewards are paid in rewardToken
// out of the bank's custody account.
func NewEngine(state engineState, bank Bank, clock TickSource, rewardToken string) *Engine {
	if clock == nil {
		clock = NewManualClock(0)
	}
	return &Engine{
		state:                state,
		bank:                 bank,
		clock:                clock,
		rewardToken:          normalizeToken(rewardToken),
		auth:                 denyAll{},
		emitter:              events.NoopEmitter{},
		forceUnlockOnNeutral: true,
		telemetry:            metrics.Farm(),
	}
}

// SetAuthorizer configures the role oracle. Nil denies every governance call.
func (e *Engine) SetAuthorizer(auth Authorizer) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if auth == nil {
		auth = denyAll{}
	}
	e.auth = auth
}

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires an external pause view consulted alongside the ledger's
// own pause flag.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

// SetForceUnlockOnNeutralMultiplier toggles whether setting a nonzero lock
// tier to 1.0x force-unlocks the pool. Enabled by default.
func (e *Engine) SetForceUnlockOnNeutralMultiplier(enabled bool) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceUnlockOnNeutral = enabled
}

// RewardToken reports the asset rewards are paid in.
func (e *Engine) RewardToken() string {
	if e == nil {
		return ""
	}
	return e.rewardToken
}

func (e *Engine) run(operation string, fn func(tx *txn) error) (err error) {
	if e == nil || e.state == nil {
		return errNilState
	}
	defer func() { e.telemetry.ObserveOperation(operation, err) }()
	if err = e.commit(operation, fn); err != nil {
		return err
	}
	e.drainOutbox()
	return nil
}

// commit applies fn under mu and queues the committed transaction for
// publication. Emitters never run while mu is held.
func (e *Engine) commit(operation string, fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		e.discard()
		return err
	}
	if err := tx.settle(); err != nil {
		e.discard()
		return err
	}
	if err := tx.flush(); err != nil {
		e.discard()
		slog.Error("farm: persist state", slog.String("operation", operation), slog.Any("error", err))
		return err
	}
	if c, ok := e.state.(committer); ok {
		if err := c.Commit(); err != nil {
			c.Discard()
			slog.Error("farm: commit state", slog.String("operation", operation), slog.Any("error", err))
			return fmt.Errorf("farm: commit: %w", err)
		}
	}
	e.outboxMu.Lock()
	e.outbox = append(e.outbox, tx)
	e.outboxMu.Unlock()
	return nil
}

// drainOutbox publishes queued transactions in commit order. Only one caller
// drains at a time; others return once their transaction is queued.
func (e *Engine) drainOutbox() {
	e.outboxMu.Lock()
	if e.publishing {
		e.outboxMu.Unlock()
		return
	}
	e.publishing = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		e.outboxMu.Unlock()
		for _, tx := range batch {
			tx.publish()
		}
		e.outboxMu.Lock()
	}
	e.publishing = false
	e.outboxMu.Unlock()
}

// view runs fn against a throwaway transaction. Nothing is persisted.
func (e *Engine) view(fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	return fn(tx)
}

func (e *Engine) begin() (*txn, error) {
	globals, err := loadGlobals(e.state)
	if err != nil {
		return nil, err
	}
	return &txn{
		engine:     e,
		emitter:    e.emitter,
		tick:       e.clock.CurrentTick(),
		globals:    globals,
		pools:      make(map[uint64]*Pool),
		dirtyPools: make(map[uint64]struct{}),
		accounts:   make(map[accountRef]*Account),
		dirtyAccts: make(map[accountRef]struct{}),
		newStakers: make(map[uint64][][20]byte),

		paid:          make(map[uint64]*big.Int),
		forfeited:     make(map[uint64]*big.Int),
		undistributed: make(map[uint64]*big.Int),
	}, nil
}

func (e *Engine) discard() {
	if c, ok := e.state.(committer); ok {
		c.Discard()
	}
}

type accountRef struct {
	pool  uint64
	owner [20]byte
}

type transfer struct {
	token  string
	addr   [20]byte
	amount *big.Int
	in     bool
}

// txn caches everything an operation touches. The tick is read once when the
// transaction opens so every pool update in one call agrees on "now".
type txn struct {
	engine  *Engine
	emitter events.Emitter
	tick    uint64

	globals      *Globals
	globalsDirty bool

	pools      map[uint64]*Pool
	dirtyPools map[uint64]struct{}
	accounts   map[accountRef]*Account
	dirtyAccts map[accountRef]struct{}
	newStakers map[uint64][][20]byte

	transfers     []transfer
	events        []events.Event
	paid          map[uint64]*big.Int
	forfeited     map[uint64]*big.Int
	undistributed map[uint64]*big.Int
}

func (tx *txn) pool(id uint64) (*Pool, error) {
	if pool, ok := tx.pools[id]; ok {
		return pool, nil
	}
	if id >= tx.globals.PoolCount {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPool, id)
	}
	var pool Pool
	ok, err := tx.engine.state.KVGet(poolKey(id), &pool)
	if err != nil {
		return nil, fmt.Errorf("farm: load pool %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPool, id)
	}
	pool.AccRewardPerShare = copyBig(pool.AccRewardPerShare)
	pool.VirtualTotalSupply = copyBig(pool.VirtualTotalSupply)
	tx.pools[id] = &pool
	return &pool, nil
}

func (tx *txn) insertPool(pool *Pool) {
	tx.pools[pool.ID] = pool
	tx.touchPool(pool)
}

func (tx *txn) touchPool(pool *Pool) {
	tx.dirtyPools[pool.ID] = struct{}{}
}

func (tx *txn) touchGlobals() {
	tx.globalsDirty = true
}

// account returns the cached or stored account, or nil when the user has
// never deposited into the pool.
func (tx *txn) account(poolID uint64, owner [20]byte) (*Account, error) {
	ref := accountRef{pool: poolID, owner: owner}
	if acc, ok := tx.accounts[ref]; ok {
		return acc, nil
	}
	var rec accountRecord
	ok, err := tx.engine.state.KVGet(accountKey(poolID, owner), &rec)
	if err != nil {
		return nil, fmt.Errorf("farm: load account: %w", err)
	}
	if !ok {
		return nil, nil
	}
	acc := decodeAccount(rec)
	tx.accounts[ref] = acc
	return acc, nil
}

// ensureAccount lazily creates the account. Accounts are never deleted.
func (tx *txn) ensureAccount(poolID uint64, owner [20]byte) (*Account, error) {
	acc, err := tx.account(poolID, owner)
	if err != nil || acc != nil {
		return acc, err
	}
	acc = newAccount(poolID, owner)
	tx.accounts[accountRef{pool: poolID, owner: owner}] = acc
	tx.newStakers[poolID] = append(tx.newStakers[poolID], owner)
	return acc, nil
}

func (tx *txn) touchAccount(acc *Account) {
	tx.dirtyAccts[accountRef{pool: acc.PoolID, owner: acc.Owner}] = struct{}{}
}

func (tx *txn) stakers(poolID uint64) ([][20]byte, error) {
	var idx stakerIndex
	if _, err := tx.engine.state.KVGet(stakersKey(poolID), &idx); err != nil {
		return nil, fmt.Errorf("farm: load stakers: %w", err)
	}
	return append(idx.Owners, tx.newStakers[poolID]...), nil
}

func (tx *txn) transferIn(token string, from [20]byte, amount *big.Int) {
	tx.transfers = append(tx.transfers, transfer{token: token, addr: from, amount: new(big.Int).Set(amount), in: true})
}

func (tx *txn) transferOut(token string, to [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	tx.transfers = append(tx.transfers, transfer{token: token, addr: to, amount: new(big.Int).Set(amount)})
}

func (tx *txn) emit(evt events.Event) {
	tx.events = append(tx.events, evt)
}

func addTo(m map[uint64]*big.Int, poolID uint64, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	cur, ok := m[poolID]
	if !ok {
		cur = big.NewInt(0)
		m[poolID] = cur
	}
	cur.Add(cur, amount)
}

// settle executes the queued token movements. A failed transfer aborts the
// whole operation.
func (tx *txn) settle() error {
	if len(tx.transfers) == 0 {
		return nil
	}
	bank := tx.engine.bank
	if bank == nil {
		return errNilBank
	}
	for _, t := range tx.transfers {
		var err error
		if t.in {
			err = bank.TransferIn(t.token, t.addr, t.amount)
		} else {
			err = bank.TransferOut(t.token, t.addr, t.amount)
		}
		if err != nil {
			return fmt.Errorf("farm: transfer %s: %w", t.token, err)
		}
	}
	return nil
}

func (tx *txn) flush() error {
	state := tx.engine.state
	if tx.globalsDirty {
		if err := state.KVPut(globalsKey, tx.globals); err != nil {
			return fmt.Errorf("farm: store globals: %w", err)
		}
	}
	for _, id := range sortedIDs(tx.dirtyPools) {
		if err := state.KVPut(poolKey(id), tx.pools[id]); err != nil {
			return fmt.Errorf("farm: store pool %d: %w", id, err)
		}
	}
	for ref := range tx.dirtyAccts {
		acc := tx.accounts[ref]
		if err := state.KVPut(accountKey(ref.pool, ref.owner), encodeAccount(acc)); err != nil {
			return fmt.Errorf("farm: store account: %w", err)
		}
	}
	for poolID, added := range tx.newStakers {
		var idx stakerIndex
		if _, err := state.KVGet(stakersKey(poolID), &idx); err != nil {
			return fmt.Errorf("farm: load stakers: %w", err)
		}
		idx.Owners = append(idx.Owners, added...)
		if err := state.KVPut(stakersKey(poolID), idx); err != nil {
			return fmt.Errorf("farm: store stakers: %w", err)
		}
	}
	return nil
}

// publish runs after a successful commit, outside the engine lock.
func (tx *txn) publish() {
	e := tx.engine
	for _, id := range sortedIDs(tx.dirtyPools) {
		pool := tx.pools[id]
		e.telemetry.SetPoolState(pool.ID, pool.AllocationWeight, pool.VirtualTotalSupply, pool.AccRewardPerShare)
	}
	if tx.globalsDirty {
		e.telemetry.SetEmissionRate(tx.globals.EmissionPerTick)
	}
	for id, amount := range tx.paid {
		e.telemetry.ObserveRewardPaid(id, amount)
	}
	for id, amount := range tx.forfeited {
		e.telemetry.ObserveForfeited(id, amount)
	}
	for id, amount := range tx.undistributed {
		e.telemetry.ObserveUndistributed(id, amount)
	}
	for _, evt := range tx.events {
		tx.emitter.Emit(evt)
	}
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
