package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/storage"
)

type memberKey struct {
	fundID   string
	memberID string
}

type voteKey struct {
	proposalID string
	voterID    string
}

// Ledger is an in-memory implementation of storage.Ledger.
type Ledger struct {
	mu        sync.RWMutex
	funds     map[string]*domain.Fund     // keyed by fund_id
	members   map[memberKey]*domain.Member
	proposals map[string]*domain.Proposal // keyed by proposal_id
	votes     map[voteKey]*domain.Vote
	entries   map[string][]*domain.LedgerEntry // keyed by fund_id, commit order
	entryIDs  map[string]struct{}
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		funds:     make(map[string]*domain.Fund),
		members:   make(map[memberKey]*domain.Member),
		proposals: make(map[string]*domain.Proposal),
		votes:     make(map[voteKey]*domain.Vote),
		entries:   make(map[string][]*domain.LedgerEntry),
		entryIDs:  make(map[string]struct{}),
	}
}

// Apply commits a batch atomically. All checks run before any write.
func (l *Ledger) Apply(_ context.Context, b *storage.Batch) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// First pass: check keys and versions
	if b.NewFund != nil {
		if _, exists := l.funds[b.NewFund.ID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	if b.Fund != nil {
		stored, exists := l.funds[b.Fund.ID]
		if !exists {
			return storage.ErrNotFound
		}
		if stored.Version != b.Fund.Version {
			return storage.ErrConflict
		}
	}
	if b.NewProposal != nil {
		if _, exists := l.proposals[b.NewProposal.ID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, p := range b.Proposals {
		stored, exists := l.proposals[p.ID]
		if !exists {
			return storage.ErrNotFound
		}
		if stored.Version != p.Version {
			return storage.ErrConflict
		}
	}
	for _, e := range b.Entries {
		if _, exists := l.entryIDs[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
	}

	// Second pass: write copies
	if b.NewFund != nil {
		b.NewFund.Version = 1
		l.funds[b.NewFund.ID] = b.NewFund.Clone()
	}
	if b.Fund != nil {
		b.Fund.Version++
		l.funds[b.Fund.ID] = b.Fund.Clone()
	}
	for _, m := range b.Members {
		l.members[memberKey{m.FundID, m.MemberID}] = m.Clone()
	}
	if b.NewProposal != nil {
		b.NewProposal.Version = 1
		l.proposals[b.NewProposal.ID] = b.NewProposal.Clone()
	}
	for _, p := range b.Proposals {
		p.Version++
		l.proposals[p.ID] = p.Clone()
	}
	for _, v := range b.Votes {
		voteCopy := *v
		l.votes[voteKey{v.ProposalID, v.VoterID}] = &voteCopy
	}
	for _, e := range b.Entries {
		entryCopy := *e
		l.entries[e.FundID] = append(l.entries[e.FundID], &entryCopy)
		l.entryIDs[e.ID] = struct{}{}
	}

	return nil
}

// GetFund retrieves a fund by its ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetFund(_ context.Context, fundID string) (*domain.Fund, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, exists := l.funds[fundID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return f.Clone(), nil
}

// ListFunds retrieves all funds, ordered by created_at ASC.
func (l *Ledger) ListFunds(_ context.Context) ([]*domain.Fund, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*domain.Fund, 0, len(l.funds))
	for _, f := range l.funds {
		result = append(result, f.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// GetMember retrieves a member record. Returns ErrNotFound if not exists.
func (l *Ledger) GetMember(_ context.Context, fundID, memberID string) (*domain.Member, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, exists := l.members[memberKey{fundID, memberID}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return m.Clone(), nil
}

// ListMembers retrieves all members of a fund, ordered by joined_at ASC.
func (l *Ledger) ListMembers(_ context.Context, fundID string) ([]*domain.Member, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Member
	for k, m := range l.members {
		if k.fundID == fundID {
			result = append(result, m.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].MemberID < result[j].MemberID
		}
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})

	return result, nil
}

// GetProposal retrieves a proposal by its ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetProposal(_ context.Context, proposalID string) (*domain.Proposal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, exists := l.proposals[proposalID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// ListProposals retrieves all proposals of a fund, ordered by created_at ASC.
func (l *Ledger) ListProposals(_ context.Context, fundID string) ([]*domain.Proposal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Proposal
	for _, p := range l.proposals {
		if p.FundID == fundID {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// ListProposalsByState retrieves proposals in the given state, ordered by deadline ASC.
func (l *Ledger) ListProposalsByState(_ context.Context, state domain.ProposalState) ([]*domain.Proposal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Proposal
	for _, p := range l.proposals {
		if p.State == state {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Deadline.Equal(result[j].Deadline) {
			return result[i].ID < result[j].ID
		}
		return result[i].Deadline.Before(result[j].Deadline)
	})

	return result, nil
}

// GetVote retrieves a voter's vote on a proposal. Returns ErrNotFound if not exists.
func (l *Ledger) GetVote(_ context.Context, proposalID, voterID string) (*domain.Vote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, exists := l.votes[voteKey{proposalID, voterID}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	voteCopy := *v
	return &voteCopy, nil
}

// ListVotes retrieves all votes on a proposal, ordered by cast_at ASC.
func (l *Ledger) ListVotes(_ context.Context, proposalID string) ([]*domain.Vote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Vote
	for k, v := range l.votes {
		if k.proposalID == proposalID {
			voteCopy := *v
			result = append(result, &voteCopy)
		}
	}

	sortVotes(result)
	return result, nil
}

// ListVotesByVoter retrieves all votes a member cast within a fund.
func (l *Ledger) ListVotesByVoter(_ context.Context, fundID, voterID string) ([]*domain.Vote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.Vote
	for k, v := range l.votes {
		if k.voterID == voterID && v.FundID == fundID {
			voteCopy := *v
			result = append(result, &voteCopy)
		}
	}

	sortVotes(result)
	return result, nil
}

// ListEntries retrieves all journal entries of a fund, in commit order.
func (l *Ledger) ListEntries(_ context.Context, fundID string) ([]*domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored := l.entries[fundID]
	result := make([]*domain.LedgerEntry, 0, len(stored))
	for _, e := range stored {
		entryCopy := *e
		result = append(result, &entryCopy)
	}
	return result, nil
}

func sortVotes(votes []*domain.Vote) {
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].CastAt.Equal(votes[j].CastAt) {
			return votes[i].VoterID < votes[j].VoterID
		}
		return votes[i].CastAt.Before(votes[j].CastAt)
	})
}

// Verify interface compliance at compile time.
var _ storage.Ledger = (*Ledger)(nil)
