package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/issuer"
)

func TestIssuer_MintBurnBalance(t *testing.T) {
	ctx := context.Background()
	iss := New()

	require.NoError(t, iss.Mint(ctx, "fund1", "alice", 100))
	require.NoError(t, iss.Mint(ctx, "fund1", "bob", 50))
	require.NoError(t, iss.Burn(ctx, "fund1", "alice", 30))

	bal, err := iss.BalanceOf(ctx, "fund1", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(70), bal)
	assert.Equal(t, uint64(120), iss.Supply("fund1"))
	assert.Equal(t, uint64(6), uint64(iss.Decimals()))

	other, err := iss.BalanceOf(ctx, "fund2", "alice")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestIssuer_BurnMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	iss := New()

	require.NoError(t, iss.Mint(ctx, "fund1", "alice", 10))
	err := iss.Burn(ctx, "fund1", "alice", 11)
	assert.ErrorIs(t, err, issuer.ErrInsufficientBalance)
	assert.Equal(t, uint64(10), iss.Supply("fund1"))
}

func TestIssuer_FailureInjection(t *testing.T) {
	ctx := context.Background()
	iss := New()
	boom := errors.New("rpc unavailable")
	iss.FailNext = func(op Op, _, _ string, _ uint64) error {
		if op == OpMint {
			return boom
		}
		return nil
	}

	assert.ErrorIs(t, iss.Mint(ctx, "fund1", "alice", 10), boom)
	assert.Zero(t, iss.Supply("fund1"))
	assert.Equal(t, 1, iss.Calls(OpMint))
}

func TestIssuer_ConcurrentMints(t *testing.T) {
	ctx := context.Background()
	iss := New()

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = iss.Mint(ctx, "fund1", "alice", 2)
		}()
	}
	wg.Wait()

	bal, err := iss.BalanceOf(ctx, "fund1", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
}
