// Package rpc implements the token issuer over an HTTP JSON-RPC 2.0 mint service.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"solana-fund-dao/internal/issuer"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// CodeInsufficientBalance is the service error code for a burn exceeding the holder balance.
const CodeInsufficientBalance = -32010

// Client implements issuer.TokenIssuer using HTTP JSON-RPC 2.0.
type Client struct {
	endpoint    string
	authToken   string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Compile-time interface check.
var _ issuer.TokenIssuer = (*Client)(nil)

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithAuthToken sends a bearer token with every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new issuer RPC client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap maps service error codes onto issuer sentinels.
func (e *rpcError) Unwrap() error {
	if e.Code == CodeInsufficientBalance {
		return issuer.ErrInsufficientBalance
	}
	return nil
}

// shareParams is the params object of mintShares and burnShares.
type shareParams struct {
	Fund           string `json:"fund"`
	Member         string `json:"member"`
	Amount         uint64 `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type balanceParams struct {
	Fund   string `json:"fund"`
	Member string `json:"member"`
}

type balanceResult struct {
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// Mint implements issuer.TokenIssuer. Retries reuse one idempotency key so
// the service applies the mint at most once.
func (c *Client) Mint(ctx context.Context, fundID, memberID string, amount uint64) error {
	params := shareParams{Fund: fundID, Member: memberID, Amount: amount, IdempotencyKey: uuid.NewString()}
	if err := c.call(ctx, "mintShares", []any{params}, nil); err != nil {
		return fmt.Errorf("mint %d shares to %s: %w", amount, memberID, err)
	}
	return nil
}

// Burn implements issuer.TokenIssuer.
func (c *Client) Burn(ctx context.Context, fundID, memberID string, amount uint64) error {
	params := shareParams{Fund: fundID, Member: memberID, Amount: amount, IdempotencyKey: uuid.NewString()}
	if err := c.call(ctx, "burnShares", []any{params}, nil); err != nil {
		return fmt.Errorf("burn %d shares from %s: %w", amount, memberID, err)
	}
	return nil
}

// BalanceOf implements issuer.TokenIssuer.
func (c *Client) BalanceOf(ctx context.Context, fundID, memberID string) (uint64, error) {
	var result balanceResult
	if err := c.call(ctx, "getShareBalance", []any{balanceParams{Fund: fundID, Member: memberID}}, &result); err != nil {
		return 0, fmt.Errorf("get share balance of %s: %w", memberID, err)
	}
	return result.Amount, nil
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
