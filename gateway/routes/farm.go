package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stakefarm/crypto"
	"stakefarm/gateway/middleware"
	"stakefarm/native/farm"
	"stakefarm/storage/journal"
)

const callerHeader = "X-Farm-Caller"

type farmAPI struct {
	engine      *farm.Engine
	journal     *journal.Journal
	trustHeader bool
	logger      *slog.Logger
}

func (a *farmAPI) mountReads(r chi.Router) {
	r.Get("/state", a.getState)
	r.Get("/pools", a.listPools)
	r.Get("/pools/{poolID}", a.getPool)
	r.Get("/pools/{poolID}/stakers", a.listStakers)
	r.Get("/pools/{poolID}/accounts/{address}", a.getAccount)
	r.Get("/pools/{poolID}/accounts/{address}/pending", a.getPending)
	r.Get("/pools/{poolID}/accounts/{address}/deposits/{depositID}", a.getDeposit)
	if a.journal != nil {
		r.Get("/journal", a.listJournal)
	}
}

func (a *farmAPI) mountWrites(r chi.Router) {
	r.Post("/pools/{poolID}/deposits", a.deposit)
	r.Post("/pools/{poolID}/deposits/{depositID}/withdraw", a.withdrawFromDeposit)
	r.Post("/pools/{poolID}/harvest", a.harvest)
	r.Post("/pools/{poolID}/exit", a.withdrawAllAndHarvest)
	r.Post("/pools/{poolID}/emergency-withdraw", a.emergencyWithdraw)
}

func (a *farmAPI) mountGovernance(r chi.Router) {
	r.Post("/pools", a.addPool)
	r.Put("/pools/{poolID}/weight", a.setPoolWeight)
	r.Put("/pools/{poolID}/multipliers/{lockDuration}", a.setLockMultiplier)
	r.Post("/pools/{poolID}/lock", a.lockPool)
	r.Post("/pools/{poolID}/unlock", a.unlockPool)
	r.Post("/pools/{poolID}/reset", a.resetRewards)
	r.Put("/emission", a.updateEmissionRate)
	r.Post("/pause", a.pause)
	r.Post("/unpause", a.unpause)
}

// caller resolves who the request acts for.
func (a *farmAPI) caller(r *http.Request) ([20]byte, error) {
	if caller, ok := middleware.CallerFromContext(r.Context()); ok {
		return caller, nil
	}
	if a.trustHeader {
		if raw := strings.TrimSpace(r.Header.Get(callerHeader)); raw != "" {
			addr, err := parseAddress(raw)
			if err != nil {
				return [20]byte{}, errors.Join(errCallerRequired, err)
			}
			return addr, nil
		}
	}
	return [20]byte{}, errCallerRequired
}

// recipientOr defaults an empty recipient to the caller.
func recipientOr(raw string, caller [20]byte) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return caller, nil
	}
	return parseAddress(raw)
}

func poolParam(r *http.Request) (uint64, error) {
	return parseUint("pool id", chi.URLParam(r, "poolID"))
}

func (a *farmAPI) health(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.NumPools()
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	for id := uint64(0); id < n; id++ {
		if err := a.engine.CheckInvariants(id); err != nil {
			a.logger.Error("health: invariant check failed", slog.Uint64("pool", id), slog.Any("error", err))
			writeJSONError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "pools": n, "tick": a.engine.CurrentTick()})
}

func (a *farmAPI) getState(w http.ResponseWriter, r *http.Request) {
	rate, err := a.engine.EmissionPerTick()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	weight, err := a.engine.TotalAllocationWeight()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	n, err := a.engine.NumPools()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	paused, err := a.engine.Paused()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView{
		Tick:                  a.engine.CurrentTick(),
		RewardToken:           a.engine.RewardToken(),
		EmissionPerTick:       amountString(rate),
		TotalAllocationWeight: weight,
		NumPools:              n,
		Paused:                paused,
	})
}

func (a *farmAPI) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := a.engine.Pools()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]poolView, 0, len(pools))
	for _, p := range pools {
		out = append(out, newPoolView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *farmAPI) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pool, err := a.engine.Pool(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolView(pool))
}

func (a *farmAPI) listStakers(w http.ResponseWriter, r *http.Request) {
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	stakers, err := a.engine.Stakers(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]string, 0, len(stakers))
	for _, s := range stakers {
		out = append(out, crypto.FormatRaw(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *farmAPI) accountParams(r *http.Request) (uint64, [20]byte, error) {
	id, err := poolParam(r)
	if err != nil {
		return 0, [20]byte{}, err
	}
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		return 0, [20]byte{}, err
	}
	return id, user, nil
}

func (a *farmAPI) getAccount(w http.ResponseWriter, r *http.Request) {
	id, user, err := a.accountParams(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	acc, err := a.engine.Account(id, user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	pending, err := a.engine.PendingRewards(id, user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	pool, err := a.engine.Pool(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	tick := a.engine.CurrentTick()
	view := accountView{
		PoolID:         id,
		Owner:          crypto.FormatRaw(user),
		VirtualBalance: amountString(acc.VirtualBalance),
		RewardDebt:     amountString(acc.RewardDebt),
		TotalStaked:    amountString(acc.TotalPrincipal()),
		Pending:        amountString(pending),
		NextDepositID:  acc.NextDepositID,
		Deposits:       make([]depositView, 0, len(acc.Deposits)),
	}
	for _, dep := range acc.Deposits {
		view.Deposits = append(view.Deposits, newDepositView(dep, dep.State(tick, pool.ForceUnlocked)))
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *farmAPI) getPending(w http.ResponseWriter, r *http.Request) {
	id, user, err := a.accountParams(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pending, err := a.engine.PendingRewards(id, user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pending": amountString(pending)})
}

func (a *farmAPI) getDeposit(w http.ResponseWriter, r *http.Request) {
	id, user, err := a.accountParams(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	depositID, err := parseUint("deposit id", chi.URLParam(r, "depositID"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	dep, state, err := a.engine.DepositInfo(id, user, depositID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDepositView(dep, state))
}

func (a *farmAPI) listJournal(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := parseUint("after", raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		after = v
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := parseUint("limit", raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		limit = int(v)
	}
	entries, err := a.journal.List(r.Context(), after, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *farmAPI) deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	depositID, err := a.engine.Deposit(caller, id, amount, req.LockDuration)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"depositId": depositID})
}

func (a *farmAPI) withdrawFromDeposit(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	depositID, err := parseUint("deposit id", chi.URLParam(r, "depositID"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recipient, err := recipientOr(req.Recipient, caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := a.engine.WithdrawFromDeposit(caller, id, amount, recipient, depositID); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recipientCall decodes an optional recipient body shared by the exit routes.
func (a *farmAPI) recipientCall(w http.ResponseWriter, r *http.Request) (caller [20]byte, poolID uint64, recipient [20]byte, ok bool) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	poolID, err = poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req recipientRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	recipient, err = recipientOr(req.Recipient, caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	return caller, poolID, recipient, true
}

func (a *farmAPI) harvest(w http.ResponseWriter, r *http.Request) {
	caller, poolID, recipient, ok := a.recipientCall(w, r)
	if !ok {
		return
	}
	reward, err := a.engine.Harvest(caller, poolID, recipient)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward": amountString(reward)})
}

func (a *farmAPI) withdrawAllAndHarvest(w http.ResponseWriter, r *http.Request) {
	caller, poolID, recipient, ok := a.recipientCall(w, r)
	if !ok {
		return
	}
	principal, reward, err := a.engine.WithdrawAllAndHarvest(caller, poolID, recipient)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"principal": amountString(principal), "reward": amountString(reward)})
}

func (a *farmAPI) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, poolID, recipient, ok := a.recipientCall(w, r)
	if !ok {
		return
	}
	principal, err := a.engine.EmergencyWithdraw(caller, poolID, recipient)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"principal": amountString(principal)})
}

func (a *farmAPI) addPool(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req addPoolRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	table, err := parseMultiplierTable(req.Multipliers)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	id, err := a.engine.AddPool(caller, req.Weight, req.StakeToken, table)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"poolId": id})
}

func (a *farmAPI) setPoolWeight(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req weightRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := a.engine.SetPoolWeight(caller, id, req.Weight); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *farmAPI) setLockMultiplier(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	id, err := poolParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	duration, err := parseUint("lock duration", chi.URLParam(r, "lockDuration"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req multiplierRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	mult, err := parseAmount("multiplier", req.Multiplier)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := a.engine.SetLockMultiplier(caller, id, duration, mult); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// poolCall runs a governance action that only needs the caller and pool id.
func (a *farmAPI) poolCall(action func(caller [20]byte, poolID uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.caller(r)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		id, err := poolParam(r)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := action(caller, id); err != nil {
			writeLedgerError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *farmAPI) lockPool(w http.ResponseWriter, r *http.Request) {
	a.poolCall(a.engine.LockPool)(w, r)
}

func (a *farmAPI) unlockPool(w http.ResponseWriter, r *http.Request) {
	a.poolCall(a.engine.UnlockPool)(w, r)
}

func (a *farmAPI) resetRewards(w http.ResponseWriter, r *http.Request) {
	a.poolCall(a.engine.ResetRewards)(w, r)
}

func (a *farmAPI) updateEmissionRate(w http.ResponseWriter, r *http.Request) {
	caller, err := a.caller(r)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	rate, err := parseAmount("rate", req.Rate)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := a.engine.UpdateEmissionRate(caller, rate); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *farmAPI) callerCall(action func(caller [20]byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.caller(r)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		if err := action(caller); err != nil {
			writeLedgerError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *farmAPI) pause(w http.ResponseWriter, r *http.Request) {
	a.callerCall(a.engine.Pause)(w, r)
}

func (a *farmAPI) unpause(w http.ResponseWriter, r *http.Request) {
	a.callerCall(a.engine.Unpause)(w, r)
}
