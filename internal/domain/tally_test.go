package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTally(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	tests := []struct {
		name          string
		forW, against uint64
		supply        uint64
		quorum        decimal.Decimal
		want          ProposalState
	}{
		{"approved with majority", 100, 50, 150, half, ProposalStateApproved},
		{"no votes expires", 0, 0, 150, half, ProposalStateExpired},
		{"below quorum expires", 74, 0, 150, half, ProposalStateExpired},
		{"exact quorum approves", 75, 0, 150, half, ProposalStateApproved},
		{"tie with quorum rejects", 75, 75, 150, half, ProposalStateRejected},
		{"against majority rejects", 60, 90, 150, decimal.RequireFromString("0.4"), ProposalStateRejected},
		{"full quorum requires every share", 99, 0, 100, decimal.NewFromInt(1), ProposalStateExpired},
		{"thirds are exact", 1, 0, 3, decimal.RequireFromString("0.3333333333333333"), ProposalStateApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tally(tt.forW, tt.against, tt.supply, tt.quorum))
		})
	}
}

func TestQuorumMet_LargeSupply(t *testing.T) {
	supply := uint64(MaxAmount)
	assert.True(t, QuorumMet(supply, supply, decimal.NewFromInt(1)))
	assert.False(t, QuorumMet(supply-1, supply, decimal.NewFromInt(1)))
}

func TestProposal_FinalizeIfDue(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Proposal{
		State:          ProposalStateVoting,
		Deadline:       t0.Add(time.Hour),
		SnapshotSupply: 150,
		ForWeight:      100,
		AgainstWeight:  50,
	}
	quorum := decimal.RequireFromString("0.5")

	assert.False(t, p.FinalizeIfDue(t0.Add(59*time.Minute), quorum))
	assert.Equal(t, ProposalStateVoting, p.State)

	assert.True(t, p.FinalizeIfDue(t0.Add(time.Hour), quorum))
	assert.Equal(t, ProposalStateApproved, p.State)
	assert.NotNil(t, p.FinalizedAt)

	assert.False(t, p.FinalizeIfDue(t0.Add(2*time.Hour), quorum))
}
