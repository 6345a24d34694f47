package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	middleware "github.com/nimeshabuddhika/resilient-ledger/pkg/middlewares"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiEnvelope struct {
	TraceID string          `json:"traceId"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

type accountBody struct {
	AccountID     int64        `json:"accountId"`
	AccountNumber string       `json:"accountNumber"`
	OwnerID       string       `json:"ownerId"`
	Balance       money.Amount `json:"balance"`
	TransferLimit money.Amount `json:"transferLimit"`
}

type transactionBody struct {
	TransactionID string       `json:"transactionId"`
	Type          string       `json:"type"`
	Amount        money.Amount `json:"amount"`
	Fee           money.Amount `json:"fee"`
	IsCancelled   bool         `json:"isCancelled"`
	Cancellable   bool         `json:"cancellable"`
	ReversalOf    *string      `json:"reversalOf"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := repositories.NewMemoryStore()
	engine := ledger.NewEngine(logger, store, ledger.WithLocker(ledger.NewAccountLocker(time.Second)))
	accounts := services.NewAccountService(logger, store, engine.Locker(), 0)
	trxs := services.NewTransactionService(logger, engine, services.NewMemoryIdempotencyStore(nil), time.Minute, nil)

	r := gin.New()
	r.Use(middleware.TraceID())
	NewBaseHandler(logger, map[string]HealthCheck{"store": func(context.Context) error { return nil }}).RegisterRoutes(r)
	api := r.Group("/api/v1")
	api.Use(middleware.Principal(logger))
	NewAccountHandler(logger, accounts).RegisterRoutes(api)
	NewTransactionHandler(logger, trxs).RegisterRoutes(api)
	return r
}

func call(t *testing.T, r http.Handler, method, path, user string, body interface{}, headers ...string) (int, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(pkg.HeaderUserId, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env apiEnvelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode(t *testing.T, env apiEnvelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func createAccount(t *testing.T, r http.Handler, user, limit string) accountBody {
	t.Helper()
	code, env := call(t, r, http.MethodPost, "/api/v1/accounts", user, map[string]string{"transferLimit": limit})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var acc accountBody
	decode(t, env, &acc)
	return acc
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	code, _ := call(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealth_Degraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewBaseHandler(zap.NewNop(), map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("down") }}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"down"`)
}

func TestRequiresPrincipal(t *testing.T) {
	r := newTestRouter(t)
	code, env := call(t, r, http.MethodGet, "/api/v1/accounts/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, pkg.ErrUnauthorizedCode.Code, env.Code)
}

func TestAccountLifecycle(t *testing.T) {
	r := newTestRouter(t)
	user := faker.UUIDHyphenated()
	acc := createAccount(t, r, user, "1000")
	assert.Equal(t, user, acc.OwnerID)
	assert.Equal(t, "0.00", acc.Balance.String())

	code, env := call(t, r, http.MethodGet, "/api/v1/accounts/my", user, nil)
	require.Equal(t, http.StatusOK, code)
	var mine []accountBody
	decode(t, env, &mine)
	require.Len(t, mine, 1)
	assert.NotEmpty(t, env.TraceID)

	code, env = call(t, r, http.MethodGet, "/api/v1/accounts/info/"+acc.AccountNumber, "someone-else", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, fmt.Sprintf(`{"accountNumber":%q,"ownerId":%q}`, acc.AccountNumber, user), string(env.Data))

	path := fmt.Sprintf("/api/v1/accounts/%d", acc.AccountID)
	code, env = call(t, r, http.MethodPut, path+"/limit", user, map[string]string{"transferLimit": "50.25"})
	require.Equal(t, http.StatusOK, code)
	var updated accountBody
	decode(t, env, &updated)
	assert.Equal(t, "50.25", updated.TransferLimit.String())

	code, _ = call(t, r, http.MethodGet, path, "intruder", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, r, http.MethodDelete, path, user, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = call(t, r, http.MethodGet, path, user, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAccountValidation(t *testing.T) {
	r := newTestRouter(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/accounts", "alice", map[string]string{"transferLimit": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, pkg.ErrInvalidInputCode.Code, env.Code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/accounts", "alice", map[string]string{"transferLimit": "1.001"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/accounts", "alice", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodGet, "/api/v1/accounts/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMoneyMovementFlow(t *testing.T) {
	r := newTestRouter(t)
	alice := createAccount(t, r, "alice", "1000")
	bob := createAccount(t, r, "bob", "1000")
	base := fmt.Sprintf("/api/v1/transactions/%d", alice.AccountID)

	code, env := call(t, r, http.MethodPost, base+"/deposit", "alice", map[string]string{"amount": "500"})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, r, http.MethodPost, base+"/transfer", "alice",
		map[string]string{"receiverAccountNumber": bob.AccountNumber, "amount": "200"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var transfer transactionBody
	decode(t, env, &transfer)
	assert.Equal(t, "TRANSFER", transfer.Type)
	assert.Equal(t, "200.00", transfer.Amount.String())
	assert.Equal(t, "100.00", transfer.Fee.String())

	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", alice.AccountID), "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var after accountBody
	decode(t, env, &after)
	assert.Equal(t, "200.00", after.Balance.String())

	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/v1/transactions/account/%d", alice.AccountID), "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var history []transactionBody
	decode(t, env, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "DEPOSIT", history[0].Type)

	code, env = call(t, r, http.MethodGet, "/api/v1/transactions/"+transfer.TransactionID, "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var detail transactionBody
	decode(t, env, &detail)
	assert.True(t, detail.Cancellable)

	code, env = call(t, r, http.MethodGet, "/api/v1/transactions/"+transfer.TransactionID, "carol", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, pkg.ErrAccessDeniedCode.Code, env.Code)

	code, env = call(t, r, http.MethodPost, "/api/v1/transactions/"+transfer.TransactionID+"/reverse", "alice", nil)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var reversal struct {
		Original transactionBody `json:"original"`
		Reversal transactionBody `json:"reversal"`
	}
	decode(t, env, &reversal)
	assert.True(t, reversal.Original.IsCancelled)
	assert.Equal(t, "REVERSAL", reversal.Reversal.Type)
	require.NotNil(t, reversal.Reversal.ReversalOf)
	assert.Equal(t, transfer.TransactionID, *reversal.Reversal.ReversalOf)

	code, env = call(t, r, http.MethodPost, "/api/v1/transactions/"+transfer.TransactionID+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, pkg.ErrNotCancellableCode.Code, env.Code)
}

func TestCancelEndpoint(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "alice", "1000")
	code, env := call(t, r, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/deposit", acc.AccountID), "alice", map[string]string{"amount": "10"})
	require.Equal(t, http.StatusCreated, code)
	var dep transactionBody
	decode(t, env, &dep)

	code, env = call(t, r, http.MethodPost, "/api/v1/transactions/"+dep.TransactionID+"/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var cancelled transactionBody
	decode(t, env, &cancelled)
	assert.True(t, cancelled.IsCancelled)

	code, _ = call(t, r, http.MethodPost, "/api/v1/transactions/not-a-uuid/cancel", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTransactionErrors(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "alice", "100")
	base := fmt.Sprintf("/api/v1/transactions/%d", acc.AccountID)

	tests := []struct {
		name   string
		path   string
		user   string
		body   interface{}
		status int
		code   string
	}{
		{"insufficient funds", base + "/withdraw", "alice", map[string]string{"amount": "1"}, http.StatusUnprocessableEntity, pkg.ErrInsufficientFundsCode.Code},
		{"zero amount", base + "/deposit", "alice", map[string]string{"amount": "0"}, http.StatusBadRequest, pkg.ErrInvalidAmountCode.Code},
		{"missing amount", base + "/deposit", "alice", map[string]string{}, http.StatusBadRequest, pkg.ErrInvalidAmountCode.Code},
		{"foreign account", base + "/deposit", "mallory", map[string]string{"amount": "1"}, http.StatusForbidden, pkg.ErrAccessDeniedCode.Code},
		{"unknown receiver", base + "/transfer", "alice", map[string]string{"receiverAccountNumber": "100099999999", "amount": "1"}, http.StatusNotFound, pkg.ErrRecordNotFoundCode.Code},
		{"self transfer", base + "/transfer", "alice", map[string]string{"receiverAccountNumber": acc.AccountNumber, "amount": "1"}, http.StatusBadRequest, pkg.ErrSameAccountCode.Code},
		{"missing receiver", base + "/transfer", "alice", map[string]string{"amount": "1"}, http.StatusBadRequest, pkg.ErrInvalidInputCode.Code},
		{"bad account id", "/api/v1/transactions/0/deposit", "alice", map[string]string{"amount": "1"}, http.StatusBadRequest, pkg.ErrInvalidInputCode.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, r, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestIdempotencyKeyHeader(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "alice", "100")
	path := fmt.Sprintf("/api/v1/transactions/%d/deposit", acc.AccountID)

	code, _ := call(t, r, http.MethodPost, path, "alice", map[string]string{"amount": "10"}, pkg.HeaderIdempotencyKey, "dep-1")
	require.Equal(t, http.StatusCreated, code)
	code, env := call(t, r, http.MethodPost, path, "alice", map[string]string{"amount": "10"}, pkg.HeaderIdempotencyKey, "dep-1")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, pkg.ErrIdempotencyConflictCode.Code, env.Code)

	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%d", acc.AccountID), "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var after accountBody
	decode(t, env, &after)
	assert.Equal(t, "10.00", after.Balance.String())
}

func TestDeleteRequiresZeroBalance(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "alice", "100")
	code, _ := call(t, r, http.MethodPost, fmt.Sprintf("/api/v1/transactions/%d/deposit", acc.AccountID), "alice", map[string]string{"amount": "1"})
	require.Equal(t, http.StatusCreated, code)

	code, env := call(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/accounts/%d", acc.AccountID), "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, pkg.ErrBalanceNotZeroCode.Code, env.Code)
}
