package stub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/venue"
)

func TestExecutor_DefaultFullFill(t *testing.T) {
	e := NewExecutor()
	fill, err := e.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p1", TargetAsset: "USDC", Amount: 80})
	require.NoError(t, err)
	assert.Equal(t, uint64(80), fill.FilledAmount)
	assert.Equal(t, "USDC", fill.ReceivedAsset)
	assert.Equal(t, 1, e.Calls())
}

func TestExecutor_ScriptedOutcomes(t *testing.T) {
	e := NewExecutor(
		Outcome{Fill: &domain.TradeFill{FilledAmount: 30, ReceivedAsset: "BONK", ReceivedQuantity: 9000}},
		Outcome{Err: venue.Reject("no liquidity")},
	)

	fill, err := e.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p1", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), fill.FilledAmount)

	_, err = e.SubmitTrade(context.Background(), domain.TradeRequest{ProposalID: "p2", Amount: 50})
	var f *venue.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "no liquidity", f.Reason)

	reqs := e.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "p2", reqs[1].ProposalID)
}

func TestExecutor_DelayHonorsContext(t *testing.T) {
	e := NewExecutor(Outcome{Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.SubmitTrade(ctx, domain.TradeRequest{ProposalID: "p1", Amount: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
