package observability

import (
	"context"
	"errors"
	"time"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/storage"
)

// InstrumentedLedger records query latency and errors of a storage.Ledger.
type InstrumentedLedger struct {
	next     storage.Ledger
	metrics  *Metrics
	database string
}

// InstrumentLedger wraps l. database labels the metrics, e.g. "postgres".
func InstrumentLedger(l storage.Ledger, m *Metrics, database string) *InstrumentedLedger {
	return &InstrumentedLedger{next: l, metrics: m, database: database}
}

// Compile-time interface check.
var _ storage.Ledger = (*InstrumentedLedger)(nil)

func (l *InstrumentedLedger) observe(operation string, start time.Time, err error) {
	// Missing rows are answers, not query failures
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	l.metrics.RecordDBQuery(l.database, operation, time.Since(start).Seconds(), err)
}

// Apply implements storage.Ledger.
func (l *InstrumentedLedger) Apply(ctx context.Context, b *storage.Batch) error {
	start := time.Now()
	err := l.next.Apply(ctx, b)
	l.observe("apply", start, err)
	return err
}

// GetFund implements storage.Ledger.
func (l *InstrumentedLedger) GetFund(ctx context.Context, fundID string) (*domain.Fund, error) {
	start := time.Now()
	f, err := l.next.GetFund(ctx, fundID)
	l.observe("get_fund", start, err)
	return f, err
}

// ListFunds implements storage.Ledger.
func (l *InstrumentedLedger) ListFunds(ctx context.Context) ([]*domain.Fund, error) {
	start := time.Now()
	funds, err := l.next.ListFunds(ctx)
	l.observe("list_funds", start, err)
	return funds, err
}

// GetMember implements storage.Ledger.
func (l *InstrumentedLedger) GetMember(ctx context.Context, fundID, memberID string) (*domain.Member, error) {
	start := time.Now()
	m, err := l.next.GetMember(ctx, fundID, memberID)
	l.observe("get_member", start, err)
	return m, err
}

// ListMembers implements storage.Ledger.
func (l *InstrumentedLedger) ListMembers(ctx context.Context, fundID string) ([]*domain.Member, error) {
	start := time.Now()
	members, err := l.next.ListMembers(ctx, fundID)
	l.observe("list_members", start, err)
	return members, err
}

// GetProposal implements storage.Ledger.
func (l *InstrumentedLedger) GetProposal(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	start := time.Now()
	p, err := l.next.GetProposal(ctx, proposalID)
	l.observe("get_proposal", start, err)
	return p, err
}

// ListProposals implements storage.Ledger.
func (l *InstrumentedLedger) ListProposals(ctx context.Context, fundID string) ([]*domain.Proposal, error) {
	start := time.Now()
	proposals, err := l.next.ListProposals(ctx, fundID)
	l.observe("list_proposals", start, err)
	return proposals, err
}

// ListProposalsByState implements storage.Ledger.
func (l *InstrumentedLedger) ListProposalsByState(ctx context.Context, state domain.ProposalState) ([]*domain.Proposal, error) {
	start := time.Now()
	proposals, err := l.next.ListProposalsByState(ctx, state)
	l.observe("list_proposals_by_state", start, err)
	return proposals, err
}

// GetVote implements storage.Ledger.
func (l *InstrumentedLedger) GetVote(ctx context.Context, proposalID, voterID string) (*domain.Vote, error) {
	start := time.Now()
	v, err := l.next.GetVote(ctx, proposalID, voterID)
	l.observe("get_vote", start, err)
	return v, err
}

// ListVotes implements storage.Ledger.
func (l *InstrumentedLedger) ListVotes(ctx context.Context, proposalID string) ([]*domain.Vote, error) {
	start := time.Now()
	votes, err := l.next.ListVotes(ctx, proposalID)
	l.observe("list_votes", start, err)
	return votes, err
}

// ListVotesByVoter implements storage.Ledger.
func (l *InstrumentedLedger) ListVotesByVoter(ctx context.Context, fundID, voterID string) ([]*domain.Vote, error) {
	start := time.Now()
	votes, err := l.next.ListVotesByVoter(ctx, fundID, voterID)
	l.observe("list_votes_by_voter", start, err)
	return votes, err
}

// ListEntries implements storage.Ledger.
func (l *InstrumentedLedger) ListEntries(ctx context.Context, fundID string) ([]*domain.LedgerEntry, error) {
	start := time.Now()
	entries, err := l.next.ListEntries(ctx, fundID)
	l.observe("list_entries", start, err)
	return entries, err
}
