package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/fund"
	"solana-fund-dao/internal/idhash"
	issuermem "solana-fund-dao/internal/issuer/memory"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/proposal"
	"solana-fund-dao/internal/storage"
	"solana-fund-dao/internal/storage/memory"
	"solana-fund-dao/internal/venue"
	"solana-fund-dao/internal/venue/stub"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// switchLedger fails Apply while fail is set.
type switchLedger struct {
	storage.Ledger
	mu   sync.Mutex
	fail error
}

func (l *switchLedger) setFail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

func (l *switchLedger) Apply(ctx context.Context, b *storage.Batch) error {
	l.mu.Lock()
	err := l.fail
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.Ledger.Apply(ctx, b)
}

type testEnv struct {
	funds      *fund.Manager
	proposals  *proposal.Engine
	dispatcher *Dispatcher
	venue      *stub.Executor
	ledger     *switchLedger
	events     *events.Recorder
	metrics    *observability.Metrics
	clock      *testClock
	fundID     string
}

// newTestEnv sets up a fund with alice at 100, bob at 50, quorum 0.5.
func newTestEnv(t *testing.T, timeout time.Duration) *testEnv {
	t.Helper()
	env := &testEnv{
		venue:   stub.NewExecutor(),
		ledger:  &switchLedger{Ledger: memory.NewLedger()},
		events:  &events.Recorder{},
		metrics: observability.NewMetrics("exec_test", prometheus.NewRegistry()),
		clock:   &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	reg := fund.NewRegistry()
	log := logging.Quiet()

	var err error
	env.funds, err = fund.NewManager(fund.Options{
		Ledger: env.ledger, Issuer: issuermem.New(), Registry: reg, Logger: log, Now: env.clock.Now,
	})
	require.NoError(t, err)
	env.proposals, err = proposal.NewEngine(proposal.Options{
		Ledger: env.ledger, Registry: reg, Logger: log, Now: env.clock.Now,
	})
	require.NoError(t, err)
	env.dispatcher, err = NewDispatcher(Options{
		Ledger:    env.ledger,
		Registry:  reg,
		Venue:     env.venue,
		Timeout:   timeout,
		Publisher: env.events,
		Metrics:   env.metrics,
		Logger:    log,
		Now:       env.clock.Now,
	})
	require.NoError(t, err)

	ctx := context.Background()
	f, err := env.funds.CreateFundWithSeed(ctx, "alice", "seed", 100, domain.FundConfig{
		QuorumThreshold: decimal.RequireFromString("0.5"),
		VotingWindow:    time.Hour,
		MinimumDeposit:  1,
	})
	require.NoError(t, err)
	_, err = env.funds.Deposit(ctx, f.ID, "bob", 50)
	require.NoError(t, err)
	env.fundID = f.ID
	return env
}

// approved submits a proposal, votes alice FOR and bob AGAINST, and moves the
// clock past the deadline. The tally happens lazily on the next access.
func (e *testEnv) approved(t *testing.T, amount uint64) *domain.Proposal {
	t.Helper()
	ctx := context.Background()
	p, err := e.proposals.Submit(ctx, e.fundID, "alice", "JUP", amount, "stub")
	require.NoError(t, err)
	_, err = e.proposals.CastVote(ctx, p.ID, "alice", domain.DirectionFor)
	require.NoError(t, err)
	_, err = e.proposals.CastVote(ctx, p.ID, "bob", domain.DirectionAgainst)
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	return p
}

func (e *testEnv) fund(t *testing.T) *domain.Fund {
	t.Helper()
	f, err := e.funds.GetFund(context.Background(), e.fundID)
	require.NoError(t, err)
	return f
}

func (e *testEnv) proposal(t *testing.T, id string) *domain.Proposal {
	t.Helper()
	p, err := e.proposals.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestExecute_ApprovedTradeDebitsBalance(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	p := env.approved(t, 80)

	res, err := env.dispatcher.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalStateExecuted, res.State)
	assert.Equal(t, uint64(70), res.BalanceAfter)
	require.NotNil(t, res.Fill)
	assert.Equal(t, uint64(80), res.Fill.FilledAmount)

	reqs := env.venue.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, idhash.ExecutionKey(env.fundID, p.ID, "JUP", 80), reqs[0].ClientOrderID)

	f := env.fund(t)
	assert.Equal(t, uint64(70), f.Balance)
	assert.Equal(t, uint64(80), f.TotalExecuted)
	assert.Equal(t, uint64(150), f.ShareSupply, "trades do not touch shares")
	require.NoError(t, f.CheckInvariant())

	got := env.proposal(t, p.ID)
	assert.Equal(t, domain.ProposalStateExecuted, got.State)
	assert.Equal(t, uint64(80), got.FilledAmount)
	assert.Equal(t, "JUP", got.ReceivedAsset)
	require.NotNil(t, got.ExecutedAt)

	stmt, err := env.funds.Statement(ctx, env.fundID)
	require.NoError(t, err)
	last := stmt.Entries[len(stmt.Entries)-1]
	assert.Equal(t, domain.EntryKindTrade, last.Kind)
	assert.Equal(t, p.ID, last.ProposalID)
	assert.Equal(t, uint64(70), last.BalanceAfter)

	assert.Equal(t, []events.Kind{events.KindProposalFinalized, events.KindProposalExecuted}, env.events.Kinds())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ExecutionsTotal.WithLabelValues(string(domain.ProposalStateExecuted))))
}

func TestExecute_Twice(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	p := env.approved(t, 80)

	_, err := env.dispatcher.Execute(ctx, p.ID)
	require.NoError(t, err)
	_, err = env.dispatcher.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)

	assert.Equal(t, 1, env.venue.Calls())
	assert.Equal(t, uint64(70), env.fund(t).Balance, "debited exactly once")
}

func TestExecute_ConcurrentOnlyOnce(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	p := env.approved(t, 80)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.dispatcher.Execute(ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyExecuted):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, already)
	assert.Equal(t, 1, env.venue.Calls())
	f := env.fund(t)
	assert.Equal(t, uint64(70), f.Balance, "debited exactly once")
	require.NoError(t, f.CheckInvariant())
	assert.Equal(t, domain.ProposalStateExecuted, env.proposal(t, p.ID).State)
}

func TestExecute_NotApproved(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	p, err := env.proposals.Submit(ctx, env.fundID, "bob", "JUP", 10, "stub")
	require.NoError(t, err)
	_, err = env.dispatcher.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotApproved, "still voting")

	env.clock.Advance(time.Hour)
	_, err = env.dispatcher.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotApproved, "expired")
	assert.Equal(t, domain.ProposalStateExpired, env.proposal(t, p.ID).State)

	_, err = env.dispatcher.Execute(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProposalNotFound)

	assert.Equal(t, 0, env.venue.Calls())
}

func TestExecute_PartialFill(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.approved(t, 80)
	env.venue.Push(stub.Outcome{Fill: &domain.TradeFill{FilledAmount: 50, ReceivedAsset: "JUP", ReceivedQuantity: 400}})

	res, err := env.dispatcher.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalStateExecuted, res.State)

	assert.Equal(t, uint64(100), env.fund(t).Balance)
	got := env.proposal(t, p.ID)
	assert.Equal(t, uint64(50), got.FilledAmount)
	assert.Equal(t, uint64(400), got.ReceivedQuantity)
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		outcome stub.Outcome
		timeout time.Duration
		reason  string
	}{
		{"venue rejects", stub.Outcome{Err: venue.Reject("slippage exceeded")}, 0, "slippage exceeded"},
		{"timeout", stub.Outcome{Delay: time.Second}, 20 * time.Millisecond, "execution timed out"},
		{"empty fill", stub.Outcome{Fill: &domain.TradeFill{ReceivedAsset: "JUP"}}, 0, "venue reported an empty fill"},
		{"overfill", stub.Outcome{Fill: &domain.TradeFill{FilledAmount: 81}}, 0, "venue filled 81 above requested 80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.timeout)
			ctx := context.Background()
			p := env.approved(t, 80)
			env.venue.Push(tt.outcome)

			res, err := env.dispatcher.Execute(ctx, p.ID)
			require.ErrorIs(t, err, domain.ErrExecutionFailure)
			require.NotNil(t, res)
			assert.Equal(t, domain.ProposalStateExecutionFailed, res.State)
			assert.Equal(t, tt.reason, res.FailureReason)

			f := env.fund(t)
			assert.Equal(t, uint64(150), f.Balance, "balance untouched")
			assert.Equal(t, uint64(0), f.TotalExecuted)

			got := env.proposal(t, p.ID)
			assert.Equal(t, domain.ProposalStateExecutionFailed, got.State)
			assert.Equal(t, tt.reason, got.FailureReason)

			_, err = env.dispatcher.Execute(ctx, p.ID)
			assert.ErrorIs(t, err, domain.ErrAlreadyExecuted, "failed executions are final")
			assert.Contains(t, env.events.Kinds(), events.KindExecutionFailed)
		})
	}
}

func TestExecute_InFlight(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	p := env.approved(t, 80)
	env.venue.Started = make(chan domain.TradeRequest)
	env.venue.Release = make(chan struct{})

	type outcome struct {
		res *domain.ExecutionResult
		err error
	}
	done := make(chan outcome)
	go func() {
		res, err := env.dispatcher.Execute(ctx, p.ID)
		done <- outcome{res, err}
	}()
	req := <-env.venue.Started
	assert.Equal(t, uint64(80), req.Amount)

	_, err := env.dispatcher.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted, "in flight")

	// The fund lock is free while the venue works.
	_, err = env.funds.Deposit(ctx, env.fundID, "carol", 10)
	require.NoError(t, err)

	_, err = env.funds.Withdraw(ctx, env.fundID, "bob", 50)
	require.NoError(t, err)
	_, err = env.funds.Withdraw(ctx, env.fundID, "alice", 31)
	assert.ErrorIs(t, err, domain.ErrInsufficientFundBalance, "80 of 110 reserved")

	close(env.venue.Release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, domain.ProposalStateExecuted, out.res.State)
	assert.Equal(t, uint64(30), env.fund(t).Balance)
	require.NoError(t, env.fund(t).CheckInvariant())
}

func TestExecute_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		p, err := env.proposals.Submit(ctx, env.fundID, "alice", "JUP", 80, "stub")
		require.NoError(t, err)
		_, err = env.proposals.CastVote(ctx, p.ID, "alice", domain.DirectionFor)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	env.clock.Advance(time.Hour)

	_, err := env.dispatcher.Execute(ctx, ids[0])
	require.NoError(t, err)
	_, err = env.dispatcher.Execute(ctx, ids[1])
	assert.ErrorIs(t, err, domain.ErrInsufficientFundBalance)

	assert.Equal(t, domain.ProposalStateApproved, env.proposal(t, ids[1]).State, "stays approved")
	assert.Equal(t, uint64(70), env.fund(t).Balance)
	assert.Equal(t, 1, env.venue.Calls())
}

func TestExecute_CommitFailureKeepsReservation(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	p := env.approved(t, 80)
	// Finalize before arming the failure.
	require.Equal(t, domain.ProposalStateApproved, env.proposal(t, p.ID).State)

	env.venue.Started = make(chan domain.TradeRequest)
	env.venue.Release = make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := env.dispatcher.Execute(ctx, p.ID)
		done <- err
	}()
	<-env.venue.Started
	env.ledger.setFail(storage.ErrConflict)
	close(env.venue.Release)
	require.ErrorIs(t, <-done, storage.ErrConflict)
	env.ledger.setFail(nil)

	_, err := env.dispatcher.Execute(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted, "unrecorded fill stays reserved")
	assert.Equal(t, 1, env.venue.Calls())
}

func TestExecute_CallerCancelStillSettles(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.approved(t, 80)
	env.venue.Started = make(chan domain.TradeRequest)
	env.venue.Release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := env.dispatcher.Execute(ctx, p.ID)
		done <- err
	}()
	<-env.venue.Started
	cancel()

	assert.ErrorIs(t, <-done, domain.ErrExecutionFailure)
	got := env.proposal(t, p.ID)
	assert.Equal(t, domain.ProposalStateExecutionFailed, got.State)
	assert.Equal(t, "execution canceled", got.FailureReason)
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	_, err := NewDispatcher(Options{Registry: fund.NewRegistry(), Venue: stub.NewExecutor()})
	assert.Error(t, err)
	_, err = NewDispatcher(Options{Ledger: memory.NewLedger(), Venue: stub.NewExecutor()})
	assert.Error(t, err)
	_, err = NewDispatcher(Options{Ledger: memory.NewLedger(), Registry: fund.NewRegistry()})
	assert.Error(t, err)
}
