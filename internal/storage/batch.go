package storage

import "solana-fund-dao/internal/domain"

// Batch is the set of writes produced by a single fund operation.
type Batch struct {
	// NewFund inserts a fund. Returns ErrDuplicateKey if the id exists.
	NewFund *domain.Fund
	// Fund updates an existing fund, guarded by Fund.Version.
	Fund *domain.Fund

	// Members are upserted by (fund_id, member_id).
	Members []*domain.Member

	// NewProposal inserts a proposal. Returns ErrDuplicateKey if the id exists.
	NewProposal *domain.Proposal
	// Proposals are updated, each guarded by its Version.
	Proposals []*domain.Proposal

	// Votes are upserted by (proposal_id, voter_id).
	Votes []*domain.Vote

	// Entries are appended to the journal.
	Entries []*domain.LedgerEntry
}

// IsEmpty reports whether the batch has no writes.
func (b *Batch) IsEmpty() bool {
	return b.NewFund == nil && b.Fund == nil && len(b.Members) == 0 &&
		b.NewProposal == nil && len(b.Proposals) == 0 && len(b.Votes) == 0 && len(b.Entries) == 0
}

// Validate checks the batch for structurally invalid records.
func (b *Batch) Validate() error {
	if b.NewFund != nil && b.NewFund.ID == "" {
		return ErrInvalidInput
	}
	if b.Fund != nil && b.Fund.ID == "" {
		return ErrInvalidInput
	}
	if b.NewFund != nil && b.Fund != nil && b.NewFund.ID == b.Fund.ID {
		return ErrInvalidInput
	}
	for _, m := range b.Members {
		if m == nil || m.FundID == "" || m.MemberID == "" {
			return ErrInvalidInput
		}
	}
	if b.NewProposal != nil && (b.NewProposal.ID == "" || b.NewProposal.FundID == "") {
		return ErrInvalidInput
	}
	for _, p := range b.Proposals {
		if p == nil || p.ID == "" {
			return ErrInvalidInput
		}
	}
	for _, v := range b.Votes {
		if v == nil || v.ProposalID == "" || v.VoterID == "" {
			return ErrInvalidInput
		}
	}
	seen := make(map[string]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		if e == nil || e.ID == "" || e.FundID == "" {
			return ErrInvalidInput
		}
		if _, dup := seen[e.ID]; dup {
			return ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
