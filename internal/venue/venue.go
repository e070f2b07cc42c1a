// Package venue defines the external trade execution boundary.
package venue

import (
	"context"
	"errors"
	"fmt"

	"solana-fund-dao/internal/domain"
)

// Executor submits approved trades to an external market.
type Executor interface {
	// SubmitTrade places the trade and blocks until the venue confirms a fill
	// or reports a failure. Failures are returned as *Failure.
	SubmitTrade(ctx context.Context, req domain.TradeRequest) (*domain.TradeFill, error)
}

// Failure is a venue-reported trade failure.
type Failure struct {
	Reason    string
	Retryable bool // transient (timeout, disconnect) as opposed to rejected by the venue
}

func (f *Failure) Error() string {
	if f.Retryable {
		return fmt.Sprintf("venue failure (retryable): %s", f.Reason)
	}
	return fmt.Sprintf("venue failure: %s", f.Reason)
}

// Reject returns a non-retryable failure.
func Reject(reason string) *Failure {
	return &Failure{Reason: reason}
}

// Transient returns a retryable failure.
func Transient(reason string) *Failure {
	return &Failure{Reason: reason, Retryable: true}
}

// FailureReason extracts a human readable reason from any submit error.
func FailureReason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "execution timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "execution canceled"
	}
	return err.Error()
}
