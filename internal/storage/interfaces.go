package storage

import (
	"context"

	"solana-fund-dao/internal/domain"
)

// FundStore provides read access to funds.
type FundStore interface {
	// GetFund retrieves a fund by its ID. Returns ErrNotFound if not exists.
	GetFund(ctx context.Context, fundID string) (*domain.Fund, error)

	// ListFunds retrieves all funds, ordered by created_at ASC.
	ListFunds(ctx context.Context) ([]*domain.Fund, error)
}

// MemberStore provides read access to fund members.
type MemberStore interface {
	// GetMember retrieves a member record. Returns ErrNotFound if not exists.
	GetMember(ctx context.Context, fundID, memberID string) (*domain.Member, error)

	// ListMembers retrieves all members of a fund, ordered by joined_at ASC.
	ListMembers(ctx context.Context, fundID string) ([]*domain.Member, error)
}

// ProposalStore provides read access to proposals.
type ProposalStore interface {
	// GetProposal retrieves a proposal by its ID. Returns ErrNotFound if not exists.
	GetProposal(ctx context.Context, proposalID string) (*domain.Proposal, error)

	// ListProposals retrieves all proposals of a fund, ordered by created_at ASC.
	ListProposals(ctx context.Context, fundID string) ([]*domain.Proposal, error)

	// ListProposalsByState retrieves proposals of any fund in the given state,
	// ordered by deadline ASC.
	ListProposalsByState(ctx context.Context, state domain.ProposalState) ([]*domain.Proposal, error)
}

// VoteStore provides read access to votes.
type VoteStore interface {
	// GetVote retrieves a voter's vote on a proposal. Returns ErrNotFound if not exists.
	GetVote(ctx context.Context, proposalID, voterID string) (*domain.Vote, error)

	// ListVotes retrieves all votes on a proposal, ordered by cast_at ASC.
	ListVotes(ctx context.Context, proposalID string) ([]*domain.Vote, error)

	// ListVotesByVoter retrieves all votes a member cast within a fund.
	ListVotesByVoter(ctx context.Context, fundID, voterID string) ([]*domain.Vote, error)
}

// LedgerEntryStore provides read access to the append-only fund journal.
type LedgerEntryStore interface {
	// ListEntries retrieves all journal entries of a fund, in commit order.
	ListEntries(ctx context.Context, fundID string) ([]*domain.LedgerEntry, error)
}

// Ledger is the authoritative account store. All writes go through Apply so
// that every fund operation commits atomically or not at all.
type Ledger interface {
	FundStore
	MemberStore
	ProposalStore
	VoteStore
	LedgerEntryStore

	// Apply commits a batch atomically. Versioned records are checked against
	// the stored version and ErrConflict is returned on mismatch. On success
	// the versions of the batch records are advanced in place.
	Apply(ctx context.Context, b *Batch) error
}
