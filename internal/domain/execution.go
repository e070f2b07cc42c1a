package domain

import "time"

// TradeRequest is what the venue is asked to execute for an approved proposal.
type TradeRequest struct {
	ProposalID  string
	FundID      string
	TargetAsset string
	Amount      uint64
	Venue       string

	// ClientOrderID is stable per proposal so the venue can reject duplicates.
	ClientOrderID string
}

// TradeFill is a confirmed (possibly partial) fill reported by the venue.
type TradeFill struct {
	FilledAmount     uint64 // native units actually spent
	ReceivedAsset    string
	ReceivedQuantity uint64
	Reference        string // venue-side transaction reference
}

// ExecutionResult is the recorded outcome of an execution attempt.
type ExecutionResult struct {
	ProposalID    string
	FundID        string
	State         ProposalState // EXECUTED or EXECUTION_FAILED
	Fill          *TradeFill
	FailureReason string
	BalanceAfter  uint64
	CompletedAt   time.Time
}
