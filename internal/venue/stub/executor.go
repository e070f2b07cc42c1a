// Package stub provides a scripted trade venue for tests and dry runs.
package stub

import (
	"context"
	"sync"
	"time"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/venue"
)

// Outcome is one scripted venue response.
type Outcome struct {
	Fill  *domain.TradeFill // returned when Err is nil; nil means a full fill at 1:1
	Err   error
	Delay time.Duration // time the venue takes to answer
}

// Executor implements venue.Executor with scripted outcomes.
// When the script is exhausted every trade is filled in full.
type Executor struct {
	mu       sync.Mutex
	script   []Outcome
	requests []domain.TradeRequest

	// Started, when set, receives each request as the venue starts working on it.
	Started chan domain.TradeRequest
	// Release, when set, must be closed (or sent to) before the venue answers.
	Release chan struct{}
}

// NewExecutor creates an executor that plays the outcomes in order.
func NewExecutor(outcomes ...Outcome) *Executor {
	return &Executor{script: outcomes}
}

// Compile-time interface check.
var _ venue.Executor = (*Executor)(nil)

// Push appends outcomes to the script.
func (e *Executor) Push(outcomes ...Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = append(e.script, outcomes...)
}

// SubmitTrade implements venue.Executor.
func (e *Executor) SubmitTrade(ctx context.Context, req domain.TradeRequest) (*domain.TradeFill, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	var out Outcome
	if len(e.script) > 0 {
		out = e.script[0]
		e.script = e.script[1:]
	}
	e.mu.Unlock()

	if e.Started != nil {
		select {
		case e.Started <- req:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Release != nil {
		select {
		case <-e.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if out.Delay > 0 {
		select {
		case <-time.After(out.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if out.Err != nil {
		return nil, out.Err
	}
	if out.Fill != nil {
		fill := *out.Fill
		return &fill, nil
	}
	return &domain.TradeFill{
		FilledAmount:     req.Amount,
		ReceivedAsset:    req.TargetAsset,
		ReceivedQuantity: req.Amount,
		Reference:        "stub-" + req.ProposalID,
	}, nil
}

// Requests returns every request received, in order.
func (e *Executor) Requests() []domain.TradeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TradeRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// Calls returns the number of trades submitted.
func (e *Executor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}
