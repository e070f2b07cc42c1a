package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/fund"
	issuermem "solana-fund-dao/internal/issuer/memory"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/proposal"
	"solana-fund-dao/internal/storage/memory"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	funds     *fund.Manager
	proposals *proposal.Engine
	issuer    *issuermem.Issuer
	fundID    string
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ledger := memory.NewLedger()
	reg := fund.NewRegistry()
	now := func() time.Time { return testNow }

	fx := &fixture{issuer: issuermem.New()}
	var err error
	fx.funds, err = fund.NewManager(fund.Options{
		Ledger: ledger, Issuer: fx.issuer, Registry: reg, Logger: logging.Quiet(), Now: now,
	})
	require.NoError(t, err)
	fx.proposals, err = proposal.NewEngine(proposal.Options{
		Ledger: ledger, Registry: reg, Logger: logging.Quiet(), Now: now,
	})
	require.NoError(t, err)

	f, err := fx.funds.CreateFundWithSeed(ctx, "alice", "report", 300, domain.FundConfig{
		QuorumThreshold: decimal.RequireFromString("0.5"),
		VotingWindow:    time.Hour,
		MinimumDeposit:  10,
	})
	require.NoError(t, err)
	fx.fundID = f.ID

	_, err = fx.funds.Deposit(ctx, f.ID, "bob", 100)
	require.NoError(t, err)
	_, err = fx.funds.Withdraw(ctx, f.ID, "bob", 20)
	require.NoError(t, err)

	p, err := fx.proposals.Submit(ctx, f.ID, "alice", "JUP", 50, "stub")
	require.NoError(t, err)
	_, err = fx.proposals.CastVote(ctx, p.ID, "bob", domain.DirectionAgainst)
	require.NoError(t, err)
	return fx
}

func TestGenerate_Statement(t *testing.T) {
	fx := setupFixture(t)
	r, err := NewGenerator(fx.funds, fx.proposals).WithClock(func() time.Time { return testNow }).
		Generate(context.Background(), fx.fundID)
	require.NoError(t, err)

	assert.Equal(t, testNow, r.GeneratedAt)
	assert.Equal(t, fx.fundID, r.Fund.ID)
	assert.Equal(t, uint64(380), r.Fund.Balance)
	assert.Equal(t, uint64(380), r.Fund.ShareSupply)
	assert.Equal(t, uint64(20), r.Fund.TotalWithdrawn)
	assert.Empty(t, r.Fund.InvariantError)
	assert.Equal(t, "0.5", r.Fund.QuorumThreshold)

	require.Len(t, r.Members, 2)
	assert.Equal(t, "alice", r.Members[0].MemberID)
	assert.Equal(t, "bob", r.Members[1].MemberID)
	assert.Equal(t, uint64(80), r.Members[1].Shares)
	assert.InDelta(t, 80.0/380*100, r.Members[1].SharePct, 1e-9)
	assert.Equal(t, uint64(1), r.Members[0].ProposalCount)

	require.Len(t, r.Proposals, 1)
	assert.Equal(t, "VOTING", r.Proposals[0].State)
	assert.Equal(t, uint64(80), r.Proposals[0].AgainstWeight)

	require.Len(t, r.Entries, 3)
	kinds := []string{r.Entries[0].Kind, r.Entries[1].Kind, r.Entries[2].Kind}
	assert.ElementsMatch(t, []string{"DEPOSIT", "DEPOSIT", "WITHDRAWAL"}, kinds)

	assert.False(t, r.Reconciled)
	assert.Nil(t, r.Mismatches)
}

func TestGenerate_Reconcile(t *testing.T) {
	fx := setupFixture(t)
	gen := NewGenerator(fx.funds, nil).WithReconcile(true)

	r, err := gen.Generate(context.Background(), fx.fundID)
	require.NoError(t, err)
	assert.True(t, r.Reconciled)
	assert.Empty(t, r.Mismatches)
	assert.Nil(t, r.Proposals)

	fx.issuer.SetBalance(fx.fundID, "bob", 5)
	r, err = gen.Generate(context.Background(), fx.fundID)
	require.NoError(t, err)
	require.Len(t, r.Mismatches, 1)
	assert.Equal(t, MismatchRow{MemberID: "bob", LedgerShares: 80, IssuerShares: 5}, r.Mismatches[0])
}

func TestGenerate_UnknownFund(t *testing.T) {
	fx := setupFixture(t)
	_, err := NewGenerator(fx.funds, fx.proposals).Generate(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrFundNotFound)
}

func TestRenderMarkdown_Sections(t *testing.T) {
	fx := setupFixture(t)
	fx.issuer.SetBalance(fx.fundID, "bob", 5)
	r, err := NewGenerator(fx.funds, fx.proposals).WithReconcile(true).
		WithClock(func() time.Time { return testNow }).
		Generate(context.Background(), fx.fundID)
	require.NoError(t, err)

	md := RenderMarkdown(r)
	for _, section := range []string{
		"# Fund Statement " + fx.fundID,
		"Generated: 2024-05-01T09:00:00Z",
		"## Fund",
		"**Balance check passed.**",
		"## Members",
		"## Proposals",
		"## Journal",
		"## Issuer Reconciliation",
		"| bob | 80 | 5 |",
		"| Roster | open |",
	} {
		assert.Contains(t, md, section)
	}

	// Deterministic for the same input.
	assert.Equal(t, md, RenderMarkdown(r))
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{Fund: FundSummary{ID: "f1", InvariantError: "broken"}})
	assert.Contains(t, md, "No members.")
	assert.Contains(t, md, "No proposals.")
	assert.Contains(t, md, "No journal entries.")
	assert.Contains(t, md, "**Balance check failed:** broken")
	assert.NotContains(t, md, "Issuer Reconciliation")

	md = RenderMarkdown(&Report{Fund: FundSummary{ID: "f1", Roster: []string{"alice", "bob"}}})
	assert.Contains(t, md, "| Roster | alice, bob |")
}

func TestRenderCSV(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	journal := RenderJournalCSV([]EntryRow{
		{EntryID: "e1", Kind: "DEPOSIT", MemberID: "alice", Amount: 100, SharesDelta: 100, BalanceAfter: 100, SupplyAfter: 100, CreatedAt: at},
		{EntryID: "e2", Kind: "TRADE", ProposalID: "p1", Amount: 30, BalanceAfter: 70, SupplyAfter: 100, CreatedAt: at},
	})
	lines := strings.Split(strings.TrimSpace(journal), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "entry_id,created_at,kind"))
	assert.Equal(t, "e1,2024-05-01T09:00:00Z,DEPOSIT,alice,,100,100,100,100", lines[1])
	assert.Equal(t, "e2,2024-05-01T09:00:00Z,TRADE,,p1,30,0,70,100", lines[2])

	members := RenderMembersCSV([]MemberRow{{MemberID: "alice", Address: "addr", Shares: 1, SharePct: 50, Deposited: 1}})
	assert.Contains(t, members, "alice,addr,1,50.000000,1,0,0\n")
}
