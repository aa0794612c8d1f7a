// Package api exposes the vault over HTTP. The caller of every request is
// taken from the X-Caller header.
package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/vault"
)

// CallerHeader carries the identity of the caller.
const CallerHeader = "X-Caller"

// DemoAsset is an asset ledger that can mint and approve on behalf of its
// holders. The asset endpoints are only served for such ledgers.
type DemoAsset interface {
	Mint(ctx context.Context, account models.Address, amount decimal.Decimal) error
	Approve(ctx context.Context, owner, spender models.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account models.Address) (decimal.Decimal, error)
}

type handler struct {
	vault *vault.Vault
	asset DemoAsset
}

// NewHandler routes the vault endpoints. asset and gatherer are optional.
func NewHandler(v *vault.Vault, asset DemoAsset, gatherer prometheus.Gatherer) http.Handler {
	h := &handler{vault: v, asset: asset}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status("ok"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /vault", h.getVault)
	mux.HandleFunc("GET /accounts/balance", h.getBalance)
	mux.HandleFunc("GET /accounts/yield", h.getYield)
	mux.HandleFunc("GET /accounts/withdrawal-request", h.getWithdrawalRequest)
	mux.HandleFunc("GET /ledgerEntries", h.getLedgerEntries)

	mux.HandleFunc("POST /deposit", h.amountOp(v.Deposit))
	mux.HandleFunc("POST /withdraw", h.amountOp(v.Withdraw))
	mux.HandleFunc("POST /withdrawals/request", h.amountOp(v.RequestWithdrawal))
	mux.HandleFunc("POST /withdrawals/execute", h.callerOp(v.ExecuteWithdrawal))
	mux.HandleFunc("POST /withdrawals/emergency", h.callerOp(v.EmergencyWithdraw))
	mux.HandleFunc("POST /yield/claim", h.claimYield)

	mux.HandleFunc("POST /admin/initialize", h.initialize)
	mux.HandleFunc("POST /admin/upgrade", h.upgrade)
	mux.HandleFunc("POST /admin/initialize-v2", h.bpOp(v.InitializeV2))
	mux.HandleFunc("POST /admin/initialize-v3", h.delayOp(v.InitializeV3))
	mux.HandleFunc("POST /admin/deposit-fee", h.bpOp(v.SetDepositFee))
	mux.HandleFunc("POST /admin/yield-rate", h.bpOp(v.SetYieldRate))
	mux.HandleFunc("POST /admin/pause", h.callerOp(v.PauseDeposits))
	mux.HandleFunc("POST /admin/resume", h.callerOp(v.ResumeDeposits))
	mux.HandleFunc("POST /admin/withdrawal-delay", h.delayOp(v.SetWithdrawalDelay))

	if asset != nil {
		mux.HandleFunc("POST /asset/mint", h.mint)
		mux.HandleFunc("POST /asset/approve", h.approve)
		mux.HandleFunc("GET /asset/balance", h.assetBalance)
	}
	return mux
}

type statusResponse struct {
	Status string `json:"status"`
}

func status(s string) statusResponse {
	return statusResponse{Status: s}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

// httpStatus maps an error category to a response code.
func httpStatus(err error) int {
	switch errors.Kind(err) {
	case errors.ErrUnauthorized:
		return http.StatusForbidden
	case errors.ErrState:
		return http.StatusConflict
	case errors.ErrInput:
		return http.StatusBadRequest
	case errors.ErrPolicy:
		return http.StatusLocked
	case errors.ErrCollaborator:
		return http.StatusBadGateway
	case errors.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	resp := errorResponse{Error: err.Error()}
	if kind := errors.Kind(err); kind != nil {
		resp.Kind = kind.Error()
	}
	if code == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, code, resp)
}

func caller(w http.ResponseWriter, r *http.Request) (models.Address, bool) {
	c := r.Header.Get(CallerHeader)
	if c == "" {
		writeError(w, errors.Wrapf(errors.ErrInput, "%s header is required", CallerHeader))
		return "", false
	}
	return models.Address(c), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.Wrapf(errors.ErrInput, "invalid request body: %s", err))
		return false
	}
	return true
}

func accountID(w http.ResponseWriter, r *http.Request) (models.Address, bool) {
	id := r.URL.Query().Get("account_id")
	if id == "" {
		writeError(w, errors.Wrap(errors.ErrInput, "account_id is a mandatory field"))
		return "", false
	}
	return models.Address(id), true
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type bpRequest struct {
	BasisPoints uint32 `json:"bp"`
}

type delayRequest struct {
	DelaySeconds int64 `json:"delay_seconds"`
}

func (h *handler) amountOp(op func(context.Context, models.Address, decimal.Decimal) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		var req amountRequest
		if !decode(w, r, &req) {
			return
		}
		if err := op(r.Context(), who, req.Amount); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status("ok"))
	}
}

func (h *handler) callerOp(op func(context.Context, models.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		if err := op(r.Context(), who); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status("ok"))
	}
}

func (h *handler) bpOp(op func(context.Context, models.Address, uint32) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		var req bpRequest
		if !decode(w, r, &req) {
			return
		}
		if err := op(r.Context(), who, req.BasisPoints); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status("ok"))
	}
}

// maxDelaySeconds is the longest delay a time.Duration can hold.
const maxDelaySeconds = math.MaxInt64 / int64(time.Second)

func (h *handler) delayOp(op func(context.Context, models.Address, time.Duration) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		var req delayRequest
		if !decode(w, r, &req) {
			return
		}
		if req.DelaySeconds < 0 || req.DelaySeconds > maxDelaySeconds {
			writeError(w, errors.Wrapf(errors.ErrInput, "delay_seconds must be between 0 and %d", maxDelaySeconds))
			return
		}
		if err := op(r.Context(), who, time.Duration(req.DelaySeconds)*time.Second); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status("ok"))
	}
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Asset        string `json:"asset"`
		Admin        string `json:"admin"`
		DepositFeeBp uint32 `json:"deposit_fee_bp"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := h.vault.Initialize(r.Context(), who, vault.InitParams{
		AssetRef:     models.Address(req.Asset),
		Admin:        models.Address(req.Admin),
		DepositFeeBp: req.DepositFeeBp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, status("initialized"))
}

func (h *handler) upgrade(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Version uint32 `json:"version"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.vault.Upgrade(r.Context(), who, models.Version(req.Version)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status("upgraded"))
}

func (h *handler) claimYield(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	claimed, err := h.vault.ClaimYield(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Claimed   decimal.Decimal `json:"claimed"`
	}{who.String(), claimed})
}

type vaultResponse struct {
	Version                uint32          `json:"version"`
	Initialized            uint32          `json:"initialized"`
	Asset                  string          `json:"asset"`
	Admin                  string          `json:"admin"`
	Custody                string          `json:"custody"`
	DepositFeeBp           uint32          `json:"deposit_fee_bp"`
	TotalDeposits          decimal.Decimal `json:"total_deposits"`
	YieldRateBp            *uint32         `json:"yield_rate_bp,omitempty"`
	DepositsPaused         *bool           `json:"deposits_paused,omitempty"`
	WithdrawalDelaySeconds *int64          `json:"withdrawal_delay_seconds,omitempty"`
}

func (h *handler) getVault(w http.ResponseWriter, r *http.Request) {
	st, err := h.vault.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := vaultResponse{
		Version:       uint32(st.Version),
		Initialized:   uint32(st.Initialized),
		Asset:         st.V1.AssetRef.String(),
		Admin:         st.V1.Admin.String(),
		Custody:       h.vault.Custody().String(),
		DepositFeeBp:  st.V1.DepositFeeBp,
		TotalDeposits: st.V1.TotalDeposits,
	}
	if st.V2 != nil {
		resp.YieldRateBp = &st.V2.YieldRateBp
		resp.DepositsPaused = &st.V2.DepositsPaused
	}
	if st.V3 != nil {
		seconds := int64(st.V3.WithdrawalDelay / time.Second)
		resp.WithdrawalDelaySeconds = &seconds
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	balance, err := h.vault.BalanceOf(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id.String(), Balance: balance})
}

func (h *handler) getYield(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	y, err := h.vault.GetUserYield(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Yield     decimal.Decimal `json:"yield"`
	}{id.String(), y})
}

func (h *handler) getWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	req, err := h.vault.GetWithdrawalRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req == nil {
		writeError(w, errors.Wrapf(errors.ErrNotFound, "withdrawal request of %s", id))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) getLedgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.vault.LedgerEntries(r.Context(), models.Address(r.URL.Query().Get("account_id")))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string          `json:"account"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, errors.Wrap(errors.ErrInput, "account is required"))
		return
	}
	if err := h.asset.Mint(r.Context(), models.Address(req.Account), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status("minted"))
}

// approve lets the vault custody account pull the caller's funds.
func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.asset.Approve(r.Context(), who, h.vault.Custody(), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status("approved"))
}

func (h *handler) assetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	balance, err := h.asset.BalanceOf(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id.String(), Balance: balance})
}
