package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luchan-pos/avocado-bonus/internal/api/dto"
	"github.com/luchan-pos/avocado-bonus/internal/model"
	"github.com/luchan-pos/avocado-bonus/internal/model/client"
	ledgermodel "github.com/luchan-pos/avocado-bonus/internal/model/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/model/operator"
	"github.com/luchan-pos/avocado-bonus/internal/serviceerrs"
	"github.com/luchan-pos/avocado-bonus/internal/service/ledger"
	"github.com/luchan-pos/avocado-bonus/internal/utils/auth"
)

type mockOperatorRepo struct {
	mock.Mock
}

func (m *mockOperatorRepo) Create(ctx context.Context, op *operator.Operator) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *mockOperatorRepo) Exists(ctx context.Context, loginHash string) bool {
	args := m.Called(ctx, loginHash)
	if fn, ok := args.Get(0).(func(context.Context, string) bool); ok {
		return fn(ctx, loginHash)
	}
	return args.Bool(0)
}

func (m *mockOperatorRepo) FindByLogin(ctx context.Context, loginHash string,
) (operator.Operator, error) {
	args := m.Called(ctx, loginHash)
	return args.Get(0).(operator.Operator), args.Error(1)
}

func (m *mockOperatorRepo) FindByID(ctx context.Context, id string,
) (operator.Operator, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(operator.Operator), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Accrue(ctx context.Context, req ledger.AccrueRequest,
) (*ledgermodel.Entry, error) {
	args := m.Called(ctx, req)
	entry, _ := args.Get(0).(*ledgermodel.Entry)
	return entry, args.Error(1)
}

func (m *mockLedger) Spend(ctx context.Context, req ledger.SpendRequest,
) (*ledgermodel.Entry, error) {
	args := m.Called(ctx, req)
	entry, _ := args.Get(0).(*ledgermodel.Entry)
	return entry, args.Error(1)
}

func (m *mockLedger) GetAccount(ctx context.Context, clientID string,
) (client.Account, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).(client.Account), args.Error(1)
}

func (m *mockLedger) ListAccounts(ctx context.Context, limit, offset int,
) ([]client.Account, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]client.Account), args.Error(1)
}

func (m *mockLedger) ListEntries(ctx context.Context,
	clientID string, limit, offset int,
) ([]ledgermodel.Entry, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]ledgermodel.Entry), args.Error(1)
}

type stubGuard struct {
	locked bool
}

func (g *stubGuard) TryLockReceipt(_ context.Context,
	_, _ string, _ time.Duration,
) bool {
	return !g.locked
}

func (g *stubGuard) UnlockReceipt(_ context.Context, _, _ string) {}

func testAuthHandlers(t *testing.T,
	endpoint string,
	handlerFunc http.HandlerFunc,
	login, password string,
	wantToken bool,
	wantCode int,
) {
	t.Helper()

	reqBody := fmt.Sprintf(`{"login":%s, "password":%s}`,
		login, password)
	req := httptest.NewRequest(
		http.MethodPost, endpoint, strings.NewReader(reqBody))
	rr := httptest.NewRecorder()
	handlerFunc(rr, req)

	res := rr.Result()
	err := res.Body.Close()
	require.NoError(t, err)

	hasToken := false
	for _, c := range res.Cookies() {
		if c.Name == auth.CookieName && len(c.Value) != 0 {
			hasToken = true
			break
		}
	}

	assert.Equal(t, wantToken, hasToken)
	assert.Equal(t, wantCode, rr.Code)
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name      string
		login     string
		password  string
		wantCode  int
		wantToken bool
	}{
		{
			"empty login",
			`""`,
			`"very-strong-password"`,
			http.StatusBadRequest,
			false,
		},
		{
			"empty password",
			`"pos-0"`,
			`""`,
			http.StatusBadRequest,
			false,
		},
		{
			"weak password",
			`"pos-1"`,
			`"password"`,
			http.StatusBadRequest,
			false,
		},
		{
			"happy test #1",
			`"pos-2"`,
			`"very-strong-password"`,
			http.StatusOK,
			true,
		},
		{
			"happy test #2",
			`"pos-3"`,
			`"very-strong-password"`,
			http.StatusOK,
			true,
		},
		{
			"conflict",
			`"pos-2"`,
			`"very-strong-password"`,
			http.StatusConflict,
			false,
		},
		{
			"decoding error #1",
			`42`,
			`"very-strong-password"`,
			http.StatusBadRequest,
			false,
		},
		{
			"decoding error #2",
			`pos-4`,
			`3.14`,
			http.StatusBadRequest,
			false,
		},
	}

	repo := &mockOperatorRepo{}
	callCounts := make(map[string]int)
	repo.On("Exists", mock.Anything, mock.Anything).
		Return(func(_ context.Context, loginHash string) bool {
			callCounts[loginHash]++
			return callCounts[loginHash] != 1
		})
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	authHandler := NewAuthHandler(repo, "super-secret-key", slog.Default())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testAuthHandlers(t,
				"/register",
				authHandler.Register,
				tt.login, tt.password,
				tt.wantToken, tt.wantCode)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	passwordHash, err := auth.HashPassword("very-strong-password")
	require.NoError(t, err)

	repo := &mockOperatorRepo{}
	repo.On("FindByLogin", mock.Anything, auth.HashLogin("pos-missing")).
		Return(operator.Operator{}, serviceerrs.ErrNotFound)
	repo.On("FindByLogin", mock.Anything, auth.HashLogin("pos-1")).
		Return(operator.Operator{
			ID:           "operator-1",
			LoginHash:    auth.HashLogin("pos-1"),
			PasswordHash: passwordHash,
		}, nil)

	authHandler := NewAuthHandler(repo, "super-secret-key", slog.Default())

	tests := []struct {
		name      string
		login     string
		password  string
		wantCode  int
		wantToken bool
	}{
		{
			"not existing operator",
			`"pos-missing"`,
			`"very-strong-password"`,
			http.StatusUnauthorized,
			false,
		},
		{
			"happy test",
			`"pos-1"`,
			`"very-strong-password"`,
			http.StatusOK,
			true,
		},
		{
			"wrong password",
			`"pos-1"`,
			`"very-WRONG-password"`,
			http.StatusUnauthorized,
			false,
		},
		{
			"empty credentials",
			`""`,
			`""`,
			http.StatusUnauthorized,
			false,
		},
		{
			"decoding error",
			`42`,
			`3.14`,
			http.StatusBadRequest,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testAuthHandlers(t,
				"/login",
				authHandler.Login,
				tt.login, tt.password,
				tt.wantToken, tt.wantCode)
		})
	}
}

func TestBonusHandler_PostReceipt(t *testing.T) {
	mustEntry := func(amount float64) *ledgermodel.Entry {
		a, err := model.FromFloat(amount)
		require.NoError(t, err)
		return &ledgermodel.Entry{
			ID:        "entry-1",
			ClientID:  "client-1",
			Operation: ledgermodel.OpEarn,
			Amount:    a,
		}
	}

	l := &mockLedger{}
	l.On("Accrue", mock.Anything, mock.MatchedBy(func(req ledger.AccrueRequest) bool {
		return req.ClientID == "client-1" && req.Amount.TotalKopecks() == 2550
	})).Return(mustEntry(25.5), nil)
	l.On("Accrue", mock.Anything, mock.MatchedBy(func(req ledger.AccrueRequest) bool {
		return req.Amount.IsZero()
	})).Return((*ledgermodel.Entry)(nil), nil)

	h := NewBonusHandler(l, &stubGuard{}, false, slog.Default())

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantAccrued string
	}{
		{
			"happy accrual",
			`{"client_id":"client-1","receipt":"79927398713","bonus_amount":25.5}`,
			http.StatusOK,
			"25.5",
		},
		{
			"zero amount is a no-op",
			`{"client_id":"client-1","receipt":"79927398713","bonus_amount":0}`,
			http.StatusOK,
			"0",
		},
		{
			"malformed JSON",
			`{"client_id":`,
			http.StatusBadRequest,
			"",
		},
		{
			"receipt checksum mismatch",
			`{"client_id":"client-1","receipt":"79927398710","bonus_amount":25.5}`,
			http.StatusUnprocessableEntity,
			"",
		},
		{
			"empty client",
			`{"receipt":"79927398713","bonus_amount":25.5}`,
			http.StatusUnprocessableEntity,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost,
				"/api/bonus/receipts", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.PostReceipt(rr, req)

			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantAccrued == "" {
				return
			}

			var resp dto.ReceiptResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantAccrued, resp.BonusAccrued.String())
			assert.Equal(t, "client-1", resp.ClientID)
		})
	}
}

func TestBonusHandler_PostReceipt_inFlight(t *testing.T) {
	l := &mockLedger{}
	h := NewBonusHandler(l, &stubGuard{locked: true}, false, slog.Default())

	body := `{"client_id":"client-1","receipt":"79927398713","bonus_amount":25.5}`
	req := httptest.NewRequest(http.MethodPost,
		"/api/bonus/receipts", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.PostReceipt(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	l.AssertNotCalled(t, "Accrue", mock.Anything, mock.Anything)
}

func TestBonusHandler_PostSpend(t *testing.T) {
	spendEntry := func(amount float64) *ledgermodel.Entry {
		a, err := model.FromFloat(amount)
		require.NoError(t, err)
		return &ledgermodel.Entry{
			ID:        "entry-2",
			ClientID:  "client-1",
			Operation: ledgermodel.OpSpend,
			Amount:    a,
		}
	}

	l := &mockLedger{}
	l.On("Spend", mock.Anything, mock.MatchedBy(func(req ledger.SpendRequest) bool {
		return req.ClientID == "client-1" && req.Amount.TotalKopecks() == 3000
	})).Return(spendEntry(-30), nil)
	l.On("Spend", mock.Anything, mock.MatchedBy(func(req ledger.SpendRequest) bool {
		return req.ClientID == "client-poor"
	})).Return((*ledgermodel.Entry)(nil), serviceerrs.ErrInsufficientFunds)

	h := NewBonusHandler(l, &stubGuard{}, false, slog.Default())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			"happy redemption",
			`{"client_id":"client-1","sum":30}`,
			http.StatusOK,
		},
		{
			"insufficient funds",
			`{"client_id":"client-poor","sum":30}`,
			http.StatusPaymentRequired,
		},
		{
			"negative sum",
			`{"client_id":"client-1","sum":-30}`,
			http.StatusUnprocessableEntity,
		},
		{
			"malformed JSON",
			`{"sum":`,
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost,
				"/api/bonus/spend", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.PostSpend(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(
		context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestBonusHandler_GetAccount(t *testing.T) {
	balance, err := model.FromFloat(125.5)
	require.NoError(t, err)

	l := &mockLedger{}
	l.On("GetAccount", mock.Anything, "client-1").
		Return(client.Account{
			ID:       "account-1",
			ClientID: "client-1",
			Balance:  balance,
		}, nil)
	l.On("GetAccount", mock.Anything, "client-missing").
		Return(client.Account{}, serviceerrs.ErrNotFound)

	h := NewBonusHandler(l, &stubGuard{}, false, slog.Default())

	t.Run("found", func(t *testing.T) {
		req := withURLParam(httptest.NewRequest(
			http.MethodGet, "/api/bonus/accounts/client-1", http.NoBody),
			"clientID", "client-1")
		rr := httptest.NewRecorder()
		h.GetAccount(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp dto.AccountResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "client-1", resp.ClientID)
		assert.Equal(t, "125.5", resp.Balance.String())
	})

	t.Run("not found", func(t *testing.T) {
		req := withURLParam(httptest.NewRequest(
			http.MethodGet, "/api/bonus/accounts/client-missing", http.NoBody),
			"clientID", "client-missing")
		rr := httptest.NewRecorder()
		h.GetAccount(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestBonusHandler_GetHistory_empty(t *testing.T) {
	l := &mockLedger{}
	l.On("ListEntries", mock.Anything, "client-quiet", mock.Anything, mock.Anything).
		Return([]ledgermodel.Entry{}, nil)

	h := NewBonusHandler(l, &stubGuard{}, false, slog.Default())

	req := withURLParam(httptest.NewRequest(
		http.MethodGet, "/api/bonus/accounts/client-quiet/history", http.NoBody),
		"clientID", "client-quiet")
	rr := httptest.NewRecorder()
	h.GetHistory(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}
