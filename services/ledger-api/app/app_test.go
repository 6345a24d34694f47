package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func memoryConfig(snapshot string) *configs.Config {
	return &configs.Config{
		Port:                  "0",
		StoreDriver:           "memory",
		SnapshotPath:          snapshot,
		KafkaPartition:        1,
		TransferFee:           "100",
		FeePolicy:             "flat",
		LockTimeout:           time.Second,
		CancellationWindow:    time.Hour,
		IdempotencyTTL:        time.Hour,
		AccountNumberAttempts: 5,
	}
}

func do(t *testing.T, h http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(pkg.HeaderUserId, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestBuild_MemoryStoreServesApi(t *testing.T) {
	srv, cleanup, err := Build(context.Background(), zap.NewNop(), memoryConfig(""))
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, ":0", srv.Addr)

	w := do(t, srv.Handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv.Handler, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = do(t, srv.Handler, http.MethodGet, "/api/v1/accounts/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv.Handler, http.MethodPost, "/api/v1/accounts", "alice", map[string]string{"transferLimit": "500"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(pkg.HeaderTraceId))
}

func TestBuild_SnapshotSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	srv, cleanup, err := Build(context.Background(), zap.NewNop(), memoryConfig(path))
	require.NoError(t, err)
	w := do(t, srv.Handler, http.MethodPost, "/api/v1/accounts", "alice", map[string]string{"transferLimit": "500"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cleanup()
	assert.FileExists(t, path)

	srv, cleanup, err = Build(context.Background(), zap.NewNop(), memoryConfig(path))
	require.NoError(t, err)
	defer cleanup()

	w = do(t, srv.Handler, http.MethodGet, "/api/v1/accounts/my", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []struct {
			OwnerID string `json:"ownerId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "alice", resp.Data[0].OwnerID)
}

func TestBuild_RejectsBadFeePolicy(t *testing.T) {
	cfg := memoryConfig("")
	cfg.FeePolicy = "tiered"
	cfg.FeeTiers = "not-a-tier"

	_, _, err := Build(context.Background(), zap.NewNop(), cfg)
	assert.Error(t, err)
}
