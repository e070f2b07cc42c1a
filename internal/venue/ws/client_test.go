package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/venue"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handlerFunc answers one request. Returning false drops the connection.
type handlerFunc func(conn *websocket.Conn, req wsRequest) bool

func newVenueServer(t *testing.T, handle handlerFunc) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			if !handle(conn, req) {
				return
			}
		}
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func decodeTrade(t *testing.T, req wsRequest) tradeParams {
	t.Helper()
	require.Len(t, req.Params, 1)
	raw, err := json.Marshal(req.Params[0])
	require.NoError(t, err)
	var p tradeParams
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func fillAll(t *testing.T) handlerFunc {
	return func(conn *websocket.Conn, req wsRequest) bool {
		p := decodeTrade(t, req)
		ref := "tx-" + p.ProposalID
		if p.ClientOrderID != "" {
			ref = "tx-" + p.ClientOrderID
		}
		err := conn.WriteJSON(wsResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: &tradeResult{
				FilledAmount:     p.Amount,
				ReceivedAsset:    p.TargetAsset,
				ReceivedQuantity: p.Amount * 2,
				Reference:        ref,
			},
		})
		return err == nil
	}
}

func testConfig() *Config {
	return &Config{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		PingInterval:      time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func TestClient_SubmitTradeFilled(t *testing.T) {
	server, url := newVenueServer(t, fillAll(t))
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	defer client.Close()

	fill, err := client.SubmitTrade(context.Background(), domain.TradeRequest{
		ProposalID: "prop1", FundID: "fund1", TargetAsset: "USDC", Amount: 80, Venue: "jupiter",
		ClientOrderID: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(80), fill.FilledAmount)
	assert.Equal(t, "USDC", fill.ReceivedAsset)
	assert.Equal(t, uint64(160), fill.ReceivedQuantity)
	assert.Equal(t, "tx-order-1", fill.Reference, "client order id reaches the venue")
}

func TestClient_ConcurrentRequestsCorrelated(t *testing.T) {
	server, url := newVenueServer(t, fillAll(t))
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	defer client.Close()

	const n = 10
	type result struct {
		amount uint64
		fill   *domain.TradeFill
		err    error
	}
	results := make(chan result, n)
	for i := 1; i <= n; i++ {
		go func(amount uint64) {
			fill, err := client.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p", TargetAsset: "SOL", Amount: amount})
			results <- result{amount: amount, fill: fill, err: err}
		}(uint64(i))
	}

	for i := 0; i < n; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, r.amount, r.fill.FilledAmount)
	}
}

func TestClient_VenueRejection(t *testing.T) {
	server, url := newVenueServer(t, func(conn *websocket.Conn, req wsRequest) bool {
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]any{
				"code":    -32001,
				"message": "slippage exceeded",
				"data":    map[string]any{"retryable": false},
			},
		}
		return conn.WriteJSON(resp) == nil
	})
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p", Amount: 5})
	var f *venue.Failure
	require.ErrorAs(t, err, &f)
	assert.False(t, f.Retryable)
	assert.Contains(t, f.Reason, "slippage exceeded")
}

func TestClient_ContextTimeout(t *testing.T) {
	server, url := newVenueServer(t, func(*websocket.Conn, wsRequest) bool {
		return true // never answer
	})
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.SubmitTrade(ctx, domain.TradeRequest{ProposalID: "p", Amount: 5})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	client.pendingMu.Lock()
	assert.Empty(t, client.pending)
	client.pendingMu.Unlock()
}

func TestClient_DroppedConnectionFailsPendingAndReconnects(t *testing.T) {
	var connections atomic.Int32
	server, url := newVenueServer(t, func(conn *websocket.Conn, req wsRequest) bool {
		// first request on the first connection is dropped unanswered
		if connections.Load() == 0 {
			connections.Add(1)
			return false
		}
		return fillAll(t)(conn, req)
	})
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p1", Amount: 5})
	var f *venue.Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, f.Retryable)

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		fill, err := client.SubmitTrade(ctx, domain.TradeRequest{ProposalID: "p2", Amount: 7})
		return err == nil && fill.FilledAmount == 7
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClient_SubmitAfterClose(t *testing.T) {
	server, url := newVenueServer(t, fillAll(t))
	defer server.Close()

	client, err := NewClient(context.Background(), url, testConfig(), logging.Quiet())
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p", Amount: 1})
	var f *venue.Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, f.Retryable)
}
