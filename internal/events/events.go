// Package events publishes fund lifecycle events after ledger commits.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindFundCreated       Kind = "fund.created"
	KindDeposited         Kind = "fund.deposited"
	KindWithdrawn         Kind = "fund.withdrawn"
	KindFundArchived      Kind = "fund.archived"
	KindProposalSubmitted Kind = "proposal.submitted"
	KindVoteCast          Kind = "proposal.vote_cast"
	KindProposalFinalized Kind = "proposal.finalized"
	KindProposalExecuted  Kind = "proposal.executed"
	KindExecutionFailed   Kind = "proposal.execution_failed"
)

// Event is a committed state change of a fund or proposal.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	FundID     string    `json:"fund_id"`
	ProposalID string    `json:"proposal_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`  // member or creator that triggered the change
	Amount     uint64    `json:"amount,omitempty"` // native units or shares moved
	State      string    `json:"state,omitempty"`  // proposal state after the change
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates an event with a fresh id.
func New(kind Kind, fundID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		FundID:     fundID,
		OccurredAt: at,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards all events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher, joining their errors.
type Multi []Publisher

// Publish implements Publisher. Every sink is attempted even if one fails.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
