package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"stakefarm/crypto"
	"stakefarm/gateway/middleware"
	"stakefarm/native/bank"
	"stakefarm/native/farm"
	"stakefarm/storage"
)

var (
	governor = raw(0xa0)
	alice    = raw(0x01)
	custody  = raw(0xfe)
)

func raw(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), farm.Scale())
}

type fixture struct {
	t      *testing.T
	clock  *farm.ManualClock
	engine *farm.Engine
	bank   *bank.Ledger
	server *httptest.Server
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	kv := storage.NewKV(storage.NewMemDB())
	ledger := bank.NewLedger(kv, custody)
	require.NoError(t, ledger.Credit("RWD", custody, e18(1_000_000)))
	require.NoError(t, ledger.Credit("LPT", alice, e18(1_000)))
	require.NoError(t, kv.Commit())

	clock := farm.NewManualClock(0)
	engine := farm.NewEngine(kv, ledger, clock, "RWD")
	engine.SetAuthorizer(farm.NewRoles([][20]byte{governor}, nil))

	cfg := Config{Engine: engine, TrustCallerHeader: true}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &fixture{t: t, clock: clock, engine: engine, bank: ledger, server: srv}
}

func (f *fixture) do(method, path string, caller *[20]byte, body interface{}) (int, map[string]interface{}) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if caller != nil {
		req.Header.Set(callerHeader, crypto.FormatRaw(*caller))
	}
	res, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer res.Body.Close()
	out := map[string]interface{}{}
	if res.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(res.Body).Decode(&out)
	}
	return res.StatusCode, out
}

func TestLedgerFlowOverHTTP(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(http.MethodPost, "/v1/governance/pools", &governor, addPoolRequest{
		Weight:      100,
		StakeToken:  "lpt",
		Multipliers: map[string]string{"0": farm.Scale().String(), "10": farm.MultiplierFromBps(20_000).String()},
	})
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, float64(0), body["poolId"])

	code, _ = f.do(http.MethodPut, "/v1/governance/emission", &governor, rateRequest{Rate: e18(5).String()})
	require.Equal(t, http.StatusNoContent, code)

	code, body = f.do(http.MethodPost, "/v1/pools/0/deposits", &alice, depositRequest{Amount: e18(10).String(), LockDuration: 10})
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, float64(0), body["depositId"])

	f.clock.Advance(4)
	code, body = f.do(http.MethodGet, "/v1/pools/0/accounts/"+crypto.FormatRaw(alice)+"/pending", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, e18(20).String(), body["pending"])

	code, body = f.do(http.MethodPost, "/v1/pools/0/deposits/0/withdraw", &alice, withdrawRequest{Amount: e18(1).String()})
	require.Equal(t, http.StatusLocked, code)
	require.Contains(t, body["error"], "locked")

	code, body = f.do(http.MethodPost, "/v1/pools/0/harvest", &alice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, e18(20).String(), body["reward"])
	bal, err := f.bank.BalanceOf("RWD", alice)
	require.NoError(t, err)
	require.Equal(t, e18(20), bal)

	code, body = f.do(http.MethodGet, "/v1/pools/0/accounts/"+crypto.FormatRaw(alice), nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, e18(20).String(), body["virtualBalance"])
	deposits := body["deposits"].([]interface{})
	require.Len(t, deposits, 1)
	require.Equal(t, "locked", deposits[0].(map[string]interface{})["state"])

	code, body = f.do(http.MethodGet, "/v1/state", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(4), body["tick"])
	require.Equal(t, "RWD", body["rewardToken"])

	code, body = f.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.AddPool(governor, 1, "LPT", map[uint64]*big.Int{0: farm.Scale()})
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		caller *[20]byte
		body   interface{}
		want   int
	}{
		{name: "no caller", method: http.MethodPost, path: "/v1/pools/0/harvest", want: http.StatusUnauthorized},
		{name: "not governor", method: http.MethodPost, path: "/v1/governance/pause", caller: &alice, want: http.StatusForbidden},
		{name: "unknown pool", method: http.MethodGet, path: "/v1/pools/7", want: http.StatusNotFound},
		{name: "bad pool id", method: http.MethodGet, path: "/v1/pools/x", want: http.StatusBadRequest},
		{name: "bad amount", method: http.MethodPost, path: "/v1/pools/0/deposits", caller: &alice, body: depositRequest{Amount: "ten"}, want: http.StatusBadRequest},
		{name: "unknown lock", method: http.MethodPost, path: "/v1/pools/0/deposits", caller: &alice, body: depositRequest{Amount: "1", LockDuration: 3}, want: http.StatusBadRequest},
		{name: "unknown deposit", method: http.MethodGet, path: "/v1/pools/0/accounts/" + crypto.FormatRaw(alice) + "/deposits/4", want: http.StatusNotFound},
		{name: "bank shortfall", method: http.MethodPost, path: "/v1/pools/0/deposits", caller: &alice, body: depositRequest{Amount: e18(5_000).String()}, want: http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := f.do(tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.want, code)
		})
	}

	code, _ := f.do(http.MethodPost, "/v1/governance/pause", &governor, nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = f.do(http.MethodPost, "/v1/pools/0/deposits", &alice, depositRequest{Amount: "1"})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestGovernanceRoutesRequireScope(t *testing.T) {
	const secret = "route-secret"
	f := newFixture(t, func(cfg *Config) {
		cfg.TrustCallerHeader = false
		cfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:       true,
			HMACSecret:    secret,
			OptionalPaths: []string{"/v1/pools", "/v1/state"},
		}, nil)
	})
	sign := func(scope string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   crypto.FormatRaw(governor),
			"scope": scope,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}
	post := func(token string) int {
		body := bytes.NewBufferString(fmt.Sprintf(`{"rate":"%s"}`, e18(1)))
		req, err := http.NewRequest(http.MethodPut, f.server.URL+"/v1/governance/emission", body)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := f.server.Client().Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res.StatusCode
	}

	require.Equal(t, http.StatusUnauthorized, post(""))
	require.Equal(t, http.StatusForbidden, post(sign(ScopeWrite)))
	require.Equal(t, http.StatusNoContent, post(sign(ScopeGovern)))

	rate, err := f.engine.EmissionPerTick()
	require.NoError(t, err)
	require.Equal(t, e18(1), rate)

	// Reads stay anonymous.
	code, _ := f.do(http.MethodGet, "/v1/pools", nil, nil)
	require.Equal(t, http.StatusOK, code)
}
