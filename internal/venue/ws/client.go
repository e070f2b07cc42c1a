// Package ws implements the trade venue over a JSON-RPC 2.0 websocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mborders/logmatic"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/venue"
)

// Config configures websocket client behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client implements venue.Executor. Requests are correlated with responses by
// JSON-RPC id, so many trades may be in flight on one connection.
type Client struct {
	endpoint string
	config   Config
	log      *logmatic.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pending maps request ID to the channel waiting for its response
	pending   map[uint64]chan wsResponse
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// Compile-time interface check.
var _ venue.Executor = (*Client)(nil)

// NewClient creates a new venue client and connects to the endpoint.
func NewClient(ctx context.Context, endpoint string, config *Config, log *logmatic.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		log:      logging.OrDefault(log),
		pending:  make(map[uint64]chan wsResponse),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the websocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.conn = conn
	return nil
}

// SubmitTrade implements venue.Executor. Transport problems are reported as
// retryable failures; venue rejections keep the retryable flag the venue sent.
func (c *Client) SubmitTrade(ctx context.Context, tr domain.TradeRequest) (*domain.TradeFill, error) {
	if c.closed.Load() {
		return nil, venue.Transient("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "submitTrade",
		Params: []any{tradeParams{
			ProposalID:    tr.ProposalID,
			FundID:        tr.FundID,
			TargetAsset:   tr.TargetAsset,
			Amount:        tr.Amount,
			Venue:         tr.Venue,
			ClientOrderID: tr.ClientOrderID,
		}},
	}

	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.forget(reqID)
		return nil, venue.Transient("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.forget(reqID)
		return nil, venue.Transient(fmt.Sprintf("write submitTrade: %v", err))
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, venue.Transient("connection lost awaiting confirmation")
		}
		return resp.fill()
	case <-c.done:
		return nil, venue.Transient("client closed")
	case <-ctx.Done():
		c.forget(reqID)
		return nil, ctx.Err()
	}
}

// forget removes a pending request that will not be awaited.
func (c *Client) forget(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// failPending closes every pending request channel. Requests written to a
// connection that dropped will never be answered.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.failPending()

	c.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches responses to waiting requests.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.log.Warn("venue connection to %s lost: %v", c.endpoint, err)
				c.failPending()
				c.connMu.Lock()
				if c.conn == conn {
					c.conn.Close()
					c.conn = nil
				}
				c.connMu.Unlock()
				go c.reconnect(reconnectDelay)

				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > c.config.MaxReconnectDelay {
					reconnectDelay = c.config.MaxReconnectDelay
				}
			}

			select {
			case <-c.done:
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect dials again after delay. On failure the next attempt is made
// with a longer delay until the client is closed.
func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	for !c.closed.Load() {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			c.log.Info("venue connection to %s re-established", c.endpoint)
			return
		}

		c.log.Debug("venue reconnect to %s failed: %v", c.endpoint, err)
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// handleMessage routes a response to the request waiting for it.
func (c *Client) handleMessage(message []byte) {
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.log.Warn("venue sent undecodable message: %v", err)
		return
	}
	if resp.ID == 0 {
		return // notification, not a response
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("venue response for unknown request %d dropped", resp.ID)
		return
	}
	ch <- resp
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				// A failed ping surfaces as a read error in readLoop
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}

// Wire message types

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type tradeParams struct {
	ProposalID    string `json:"proposalId"`
	FundID        string `json:"fundId"`
	TargetAsset   string `json:"targetAsset"`
	Amount        uint64 `json:"amount"`
	Venue         string `json:"venue"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
}

type wsResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      uint64       `json:"id"`
	Result  *tradeResult `json:"result,omitempty"`
	Error   *wsError     `json:"error,omitempty"`
}

type tradeResult struct {
	FilledAmount     uint64 `json:"filledAmount"`
	ReceivedAsset    string `json:"receivedAsset"`
	ReceivedQuantity uint64 `json:"receivedQuantity"`
	Reference        string `json:"reference"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Retryable bool `json:"retryable"`
	} `json:"data,omitempty"`
}

func (r wsResponse) fill() (*domain.TradeFill, error) {
	if r.Error != nil {
		return nil, &venue.Failure{
			Reason:    fmt.Sprintf("%s (code %d)", r.Error.Message, r.Error.Code),
			Retryable: r.Error.Data != nil && r.Error.Data.Retryable,
		}
	}
	if r.Result == nil {
		return nil, venue.Reject("empty submitTrade result")
	}
	return &domain.TradeFill{
		FilledAmount:     r.Result.FilledAmount,
		ReceivedAsset:    r.Result.ReceivedAsset,
		ReceivedQuantity: r.Result.ReceivedQuantity,
		Reference:        r.Result.Reference,
	}, nil
}
