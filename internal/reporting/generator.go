package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/fund"
)

// StatementSource provides fund statements and issuer reconciliation.
type StatementSource interface {
	Statement(ctx context.Context, fundID string) (*fund.Statement, error)
	Reconcile(ctx context.Context, fundID string) ([]fund.ShareMismatch, error)
}

// ProposalLister lists the proposals of a fund.
type ProposalLister interface {
	ListByFund(ctx context.Context, fundID string) ([]*domain.Proposal, error)
}

// Generator produces fund statements.
type Generator struct {
	funds     StatementSource
	proposals ProposalLister
	reconcile bool
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new statement generator. proposals may be nil.
func NewGenerator(funds StatementSource, proposals ProposalLister) *Generator {
	return &Generator{
		funds:     funds,
		proposals: proposals,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithReconcile makes Generate compare member shares with the issuer.
func (g *Generator) WithReconcile(on bool) *Generator {
	g.reconcile = on
	return g
}

// Generate builds the statement of one fund.
func (g *Generator) Generate(ctx context.Context, fundID string) (*Report, error) {
	st, err := g.funds.Statement(ctx, fundID)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		Fund:        summarize(st.Fund),
		Members:     memberRows(st.Members, st.Fund.ShareSupply),
		Entries:     entryRows(st.Entries),
	}

	if g.proposals != nil {
		ps, err := g.proposals.ListByFund(ctx, fundID)
		if err != nil {
			return nil, fmt.Errorf("list proposals: %w", err)
		}
		r.Proposals = proposalRows(ps)
	}

	if g.reconcile {
		mismatches, err := g.funds.Reconcile(ctx, fundID)
		if err != nil {
			return nil, err
		}
		r.Reconciled = true
		for _, m := range mismatches {
			r.Mismatches = append(r.Mismatches, MismatchRow(m))
		}
	}

	return r, nil
}

func summarize(f *domain.Fund) FundSummary {
	s := FundSummary{
		ID:              f.ID,
		Creator:         f.Creator,
		Vault:           f.Vault,
		GovernanceMint:  f.GovernanceMint,
		Status:          string(f.Status),
		QuorumThreshold: f.Config.QuorumThreshold.String(),
		VotingWindow:    f.Config.VotingWindow,
		MinimumDeposit:  f.Config.MinimumDeposit,
		Roster:          f.Config.Roster,
		Balance:         f.Balance,
		ShareSupply:     f.ShareSupply,
		TotalDeposited:  f.TotalDeposited,
		TotalWithdrawn:  f.TotalWithdrawn,
		TotalExecuted:   f.TotalExecuted,
	}
	if err := f.CheckInvariant(); err != nil {
		s.InvariantError = err.Error()
	}
	return s
}

func memberRows(members []*domain.Member, supply uint64) []MemberRow {
	rows := make([]MemberRow, 0, len(members))
	for _, m := range members {
		rows = append(rows, MemberRow{
			MemberID:      m.MemberID,
			Address:       m.Address,
			Shares:        m.Shares,
			SharePct:      percent(m.Shares, supply),
			Deposited:     m.Deposited,
			Withdrawn:     m.Withdrawn,
			ProposalCount: m.ProposalCount,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MemberID < rows[j].MemberID })
	return rows
}

func proposalRows(ps []*domain.Proposal) []ProposalRow {
	rows := make([]ProposalRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, ProposalRow{
			ProposalID:    p.ID,
			ProposerID:    p.ProposerID,
			TargetAsset:   p.TargetAsset,
			Amount:        p.Amount,
			State:         string(p.State),
			ForWeight:     p.ForWeight,
			AgainstWeight: p.AgainstWeight,
			Snapshot:      p.SnapshotSupply,
			Turnout:       percent(p.ForWeight+p.AgainstWeight, p.SnapshotSupply),
			FilledAmount:  p.FilledAmount,
			FailureReason: p.FailureReason,
			Deadline:      p.Deadline,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Deadline.Equal(rows[j].Deadline) {
			return rows[i].Deadline.Before(rows[j].Deadline)
		}
		return rows[i].ProposalID < rows[j].ProposalID
	})
	return rows
}

func entryRows(entries []*domain.LedgerEntry) []EntryRow {
	rows := make([]EntryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, EntryRow{
			EntryID:      e.ID,
			Kind:         string(e.Kind),
			MemberID:     e.MemberID,
			ProposalID:   e.ProposalID,
			Amount:       e.Amount,
			SharesDelta:  e.SharesDelta,
			BalanceAfter: e.BalanceAfter,
			SupplyAfter:  e.SupplyAfter,
			CreatedAt:    e.CreatedAt,
		})
	}
	return rows
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
