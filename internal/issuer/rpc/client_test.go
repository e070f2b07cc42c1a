package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/issuer"
)

// decodeShareParams extracts the single params object of a request.
func decodeShareParams(t *testing.T, req rpcRequest) shareParams {
	t.Helper()
	require.Len(t, req.Params, 1)
	raw, err := json.Marshal(req.Params[0])
	require.NoError(t, err)
	var p shareParams
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func writeResult(w http.ResponseWriter, id uint64, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func TestClient_Mint(t *testing.T) {
	var got shareParams
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mintShares", req.Method)
		got = decodeShareParams(t, req)
		auth = r.Header.Get("Authorization")
		writeResult(w, req.ID, map[string]any{"signature": "sig1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAuthToken("s3cret"))
	require.NoError(t, client.Mint(context.Background(), "fund1", "alice", 250))

	assert.Equal(t, "fund1", got.Fund)
	assert.Equal(t, "alice", got.Member)
	assert.Equal(t, uint64(250), got.Amount)
	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, "Bearer s3cret", auth)
}

func TestClient_RetryReusesIdempotencyKey(t *testing.T) {
	var (
		mu       sync.Mutex
		keys     []string
		attempts atomic.Int32
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		p := decodeShareParams(t, req)
		mu.Lock()
		keys = append(keys, p.IdempotencyKey)
		mu.Unlock()

		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeResult(w, req.ID, map[string]any{})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
	require.NoError(t, client.Burn(context.Background(), "fund1", "alice", 10))

	assert.Equal(t, int32(3), attempts.Load())
	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])
}

func TestClient_InsufficientBalanceNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": CodeInsufficientBalance, "message": "insufficient funds"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))
	err := client.Burn(context.Background(), "fund1", "alice", 10)
	assert.ErrorIs(t, err, issuer.ErrInsufficientBalance)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_BalanceOf(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getShareBalance", req.Method)
		writeResult(w, req.ID, map[string]any{"amount": 1500, "decimals": 6})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	bal, err := client.BalanceOf(context.Background(), "fund1", "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), bal)
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	err := client.Mint(context.Background(), "fund1", "alice", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))
	err := client.Mint(context.Background(), "fund1", "alice", 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}
