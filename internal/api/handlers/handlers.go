package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luchan-pos/avocado-bonus/internal/api/dto"
	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/client"
	ledgermodel "github.com/luchan-pos/avocado-bonus/internal/model/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/model/operator"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
	"github.com/luchan-pos/avocado-bonus/internal/service/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/utils/auth"
)

type AuthHandler struct {
	logger *slog.Logger
	repo   operator.Repository
	secret string
}

func NewAuthHandler(repo operator.Repository,
	secret string, log *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		logger: log,
		repo:   repo,
		secret: secret,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loginHash := auth.HashLogin(req.Login)
	if h.repo.Exists(r.Context(), loginHash) {
		http.Error(w, "login is taken", http.StatusConflict)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to hash password",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	op := operator.Operator{
		LoginHash:    loginHash,
		PasswordHash: passwordHash,
	}
	if err := h.repo.Create(r.Context(), &op); err != nil {
		if errors.Is(err, serviceerrs.ErrConflict) {
			http.Error(w, "login is taken", http.StatusConflict)
			return
		}
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to create operator",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	h.setAuthCookie(w, r.Context(), op.ID)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Login == "" || req.Password == "" {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	op, err := h.repo.FindByLogin(r.Context(), auth.HashLogin(req.Login))
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	if !auth.VerifyPassword(op.PasswordHash, req.Password) {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	h.setAuthCookie(w, r.Context(), op.ID)
}

func (h *AuthHandler) setAuthCookie(w http.ResponseWriter,
	ctx context.Context, operatorID string,
) {
	cookie, err := auth.Authenticate(operatorID, []byte(h.secret))
	if err != nil {
		h.logger.LogAttrs(ctx,
			slog.LevelError,
			"failed to issue token",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &cookie)
	w.WriteHeader(http.StatusOK)
}

type Ledger interface {
	Accrue(ctx context.Context, req ledger.AccrueRequest) (*ledgermodel.Entry, error)
	Spend(ctx context.Context, req ledger.SpendRequest) (*ledgermodel.Entry, error)
	GetAccount(ctx context.Context, clientID string) (client.Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]client.Account, error)
	ListEntries(ctx context.Context,
		clientID string, limit, offset int) ([]ledgermodel.Entry, error)
}

type ReceiptGuard interface {
	TryLockReceipt(ctx context.Context,
		clientID, receiptID string, ttl time.Duration) bool
	UnlockReceipt(ctx context.Context, clientID, receiptID string)
}

type BonusHandler struct {
	logger        *slog.Logger
	ledger        Ledger
	guard         ReceiptGuard
	usePagination bool
}

func NewBonusHandler(l Ledger, guard ReceiptGuard,
	usePagination bool, log *slog.Logger,
) *BonusHandler {
	return &BonusHandler{
		logger:        log,
		ledger:        l,
		guard:         guard,
		usePagination: usePagination,
	}
}

const receiptLockTTL = 30 * time.Second

func (h *BonusHandler) PostReceipt(w http.ResponseWriter, r *http.Request) {
	var req dto.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	amount, err := amountFromNumber(req.BonusAmount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	total, err := amountFromNumber(req.ReceiptTotal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	percent, _ := req.BonusPercent.Float64()

	if !h.guard.TryLockReceipt(r.Context(), req.ClientID, req.ReceiptID, receiptLockTTL) {
		http.Error(w,
			serviceerrs.ErrReceiptInFlight.Error(), http.StatusConflict)
		return
	}
	defer h.guard.UnlockReceipt(r.Context(), req.ClientID, req.ReceiptID)

	entry, err := h.ledger.Accrue(r.Context(), ledger.AccrueRequest{
		ClientID:     req.ClientID,
		ReceiptID:    req.ReceiptID,
		Amount:       amount,
		ReceiptTotal: total,
		BonusPercent: percent,
	})
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"accrual failed",
			slog.String("client_id", req.ClientID),
			slog.String("receipt_id", req.ReceiptID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "accrual failed", http.StatusInternalServerError)
		return
	}

	accrued := "0"
	if entry != nil {
		accrued = entry.Amount.String()
	}
	writeJSON(w, h.logger, r.Context(), dto.ReceiptResponse{
		ClientID:        req.ClientID,
		BonusAccrued:    json.Number(accrued),
		LineItemDetails: req.Items,
	})
}

func (h *BonusHandler) PostSpend(w http.ResponseWriter, r *http.Request) {
	var req dto.SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	sum, err := amountFromNumber(req.Sum)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	entry, err := h.ledger.Spend(r.Context(), ledger.SpendRequest{
		ClientID:  req.ClientID,
		ReceiptID: req.ReceiptID,
		Amount:    sum,
	})
	if errors.Is(err, serviceerrs.ErrInsufficientFunds) {
		http.Error(w,
			serviceerrs.ErrInsufficientFunds.Error(), http.StatusPaymentRequired)
		return
	}
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"redemption failed",
			slog.String("client_id", req.ClientID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "redemption failed", http.StatusInternalServerError)
		return
	}

	spent := "0"
	if entry != nil {
		spent = entry.Amount.String() // negative: a debit
	}
	writeJSON(w, h.logger, r.Context(), dto.ReceiptResponse{
		ClientID:     req.ClientID,
		BonusAccrued: json.Number(spent),
	})
}

func (h *BonusHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.pagination(r)
	accounts, err := h.ledger.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to list accounts",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	resp := make([]dto.AccountResponse, len(accounts))
	for i, acc := range accounts {
		resp[i] = accountResponse(acc)
	}
	writeJSON(w, h.logger, r.Context(), resp)
}

func (h *BonusHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	acc, err := h.ledger.GetAccount(r.Context(), clientID)
	if errors.Is(err, serviceerrs.ErrNotFound) {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to get account",
			slog.String("client_id", clientID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "failed to get account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, r.Context(), accountResponse(acc))
}

func (h *BonusHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	limit, offset := h.pagination(r)
	entries, err := h.ledger.ListEntries(r.Context(), clientID, limit, offset)
	if err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to list history",
			slog.String("client_id", clientID),
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dto.EntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = dto.EntryResponse{
			CreatedAt:    e.CreatedAt,
			Operation:    e.Operation,
			Description:  e.Description,
			ReceiptID:    e.ReceiptID,
			Amount:       json.Number(e.Amount.String()),
			BalanceAfter: json.Number(e.BalanceAfter.String()),
		}
	}
	writeJSON(w, h.logger, r.Context(), resp)
}

func (h *BonusHandler) pagination(r *http.Request) (int, int) {
	if !h.usePagination {
		return model.DefaultPageSize, 0
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = model.DefaultPageSize
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	logger *slog.Logger
	pinger Pinger
}

func NewHealthHandler(p Pinger, log *slog.Logger) *HealthHandler {
	return &HealthHandler{
		logger: log,
		pinger: p,
	}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.LogAttrs(r.Context(),
			slog.LevelError,
			"DB is unreachable",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w, "DB is unreachable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func accountResponse(acc client.Account) dto.AccountResponse {
	return dto.AccountResponse{
		UpdatedAt: acc.UpdatedAt,
		ClientID:  acc.ClientID,
		Balance:   json.Number(acc.Balance.String()),
	}
}

func amountFromNumber(n json.Number) (model.Amount, error) {
	if n == "" {
		return model.Amount{}, nil
	}
	return model.FromString(n.String())
}

func writeJSON(w http.ResponseWriter, log *slog.Logger,
	ctx context.Context, payload any,
) {
	w.Header().Set(model.HeaderContentType, "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.LogAttrs(ctx,
			slog.LevelError,
			"failed to encode response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
