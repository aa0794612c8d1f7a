package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assetmemory "github.com/sheikh-saqib/custody-vault-ledger/internal/asset/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/metrics"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/vault"
)

type testServer struct {
	handler http.Handler
	token   *assetmemory.Token
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	token := assetmemory.NewToken("USDC")
	v, err := vault.New(memory.NewMemoryVaultStore(), token, "vault", vault.WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	return &testServer{handler: NewHandler(v, token, reg), token: token}
}

func (s *testServer) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func (s *testServer) initialize(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/admin/initialize", "admin",
		`{"asset":"USDC","admin":"admin","deposit_fee_bp":500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/health", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDepositFlow(t *testing.T) {
	s := newTestServer(t)
	s.initialize(t)

	rec := s.do(t, http.MethodPost, "/asset/mint", "", `{"account":"alice","amount":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/asset/approve", "alice", `{"amount":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/deposit", "alice", `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/accounts/balance?account_id=alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var balance balanceResponse
	decodeBody(t, rec, &balance)
	assert.Equal(t, "alice", balance.AccountID)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(95)))

	rec = s.do(t, http.MethodGet, "/asset/balance?account_id=vault", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &balance)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(100)))

	rec = s.do(t, http.MethodGet, "/ledgerEntries?account_id=alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	decodeBody(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "deposit", entries[0]["kind"])

	rec = s.do(t, http.MethodGet, "/vault", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st vaultResponse
	decodeBody(t, rec, &st)
	assert.EqualValues(t, 1, st.Version)
	assert.Equal(t, "vault", st.Custody)
	assert.True(t, st.TotalDeposits.Equal(decimal.NewFromInt(95)))
	assert.Nil(t, st.YieldRateBp)

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `custody_vault_operations_total{operation="deposit",outcome="ok"} 1`)
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/deposit", "alice", `{"amount":"100"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "not initialized")

	s.initialize(t)
	require.NoError(t, s.token.Mint(context.Background(), "alice", decimal.NewFromInt(10)))

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		want   int
	}{
		{"missing caller", http.MethodPost, "/deposit", "", `{"amount":"1"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/deposit", "alice", `{`, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/deposit", "alice", `{"amount":"-1"}`, http.StatusBadRequest},
		{"no allowance", http.MethodPost, "/deposit", "alice", `{"amount":"5"}`, http.StatusBadGateway},
		{"not admin", http.MethodPost, "/admin/upgrade", "alice", `{"version":2}`, http.StatusForbidden},
		{"skipped version", http.MethodPost, "/admin/upgrade", "admin", `{"version":3}`, http.StatusConflict},
		{"missing account", http.MethodGet, "/accounts/balance", "", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.caller, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			var resp errorResponse
			decodeBody(t, rec, &resp)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPausedDepositIsLocked(t *testing.T) {
	s := newTestServer(t)
	s.initialize(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/upgrade", "admin", `{"version":2}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/initialize-v2", "admin", `{"bp":100}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/pause", "admin", "").Code)

	rec := s.do(t, http.MethodPost, "/deposit", "alice", `{"amount":"1"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "blocked by policy", resp.Kind)
}

func TestWithdrawalQueueEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.initialize(t)
	ctx := context.Background()
	require.NoError(t, s.token.Mint(ctx, "alice", decimal.NewFromInt(1000)))
	require.NoError(t, s.token.Approve(ctx, "alice", "vault", decimal.NewFromInt(1000)))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/deposit", "alice", `{"amount":"1000"}`).Code)

	for _, step := range []struct{ path, body string }{
		{"/admin/upgrade", `{"version":2}`},
		{"/admin/initialize-v2", `{"bp":0}`},
		{"/admin/upgrade", `{"version":3}`},
		{"/admin/initialize-v3", `{"delay_seconds":3600}`},
	} {
		rec := s.do(t, http.MethodPost, step.path, "admin", step.body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/accounts/withdrawal-request?account_id=alice", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/withdrawals/request", "alice", `{"amount":"400"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/accounts/withdrawal-request?account_id=alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var req map[string]any
	decodeBody(t, rec, &req)
	assert.Equal(t, "400", req["amount"])

	rec = s.do(t, http.MethodPost, "/withdrawals/execute", "alice", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errResp errorResponse
	decodeBody(t, rec, &errResp)
	assert.Contains(t, errResp.Error, "delay not passed")

	rec = s.do(t, http.MethodPost, "/withdrawals/emergency", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b, err := s.token.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.NewFromInt(950)))

	rec = s.do(t, http.MethodGet, "/vault", "", "")
	var st vaultResponse
	decodeBody(t, rec, &st)
	require.NotNil(t, st.WithdrawalDelaySeconds)
	assert.EqualValues(t, 3600, *st.WithdrawalDelaySeconds)
}

func TestWithdrawalDelayOutOfRange(t *testing.T) {
	s := newTestServer(t)
	s.initialize(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/upgrade", "admin", `{"version":2}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/initialize-v2", "admin", `{"bp":0}`).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/upgrade", "admin", `{"version":3}`).Code)

	for _, body := range []string{`{"delay_seconds":18446744074}`, `{"delay_seconds":9223372037}`, `{"delay_seconds":-1}`} {
		rec := s.do(t, http.MethodPost, "/admin/initialize-v3", "admin", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := s.do(t, http.MethodPost, "/admin/initialize-v3", "admin", `{"delay_seconds":9223372036}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/admin/withdrawal-delay", "admin", `{"delay_seconds":18446744074}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp errorResponse
	decodeBody(t, rec, &errResp)
	assert.Contains(t, errResp.Error, "delay_seconds")

	rec = s.do(t, http.MethodGet, "/vault", "", "")
	var st vaultResponse
	decodeBody(t, rec, &st)
	require.NotNil(t, st.WithdrawalDelaySeconds)
	assert.EqualValues(t, 9223372036, *st.WithdrawalDelaySeconds)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, httpStatus(assert.AnError))
	assert.Equal(t, http.StatusNotFound, httpStatus(errors.Wrap(errors.ErrNotFound, "x")))
	assert.Equal(t, http.StatusConflict, httpStatus(vault.ErrReentrant))
}
