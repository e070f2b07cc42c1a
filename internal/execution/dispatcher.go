// Package execution carries approved proposals to the trade venue and records
// the confirmed outcome.
//
// Execution is two-phase. The amount is reserved under the fund lock, the
// venue is called with the lock released, and the result is committed under
// the lock again. A proposal is sent to the venue at most once.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mborders/logmatic"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/fund"
	"solana-fund-dao/internal/idhash"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/storage"
	"solana-fund-dao/internal/venue"
)

// DefaultTimeout bounds a venue call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Dispatcher. Ledger, Registry and Venue are required.
type Options struct {
	Ledger    storage.Ledger
	Registry  *fund.Registry
	Venue     venue.Executor
	Timeout   time.Duration
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *logmatic.Logger
	Now       func() time.Time
}

// Dispatcher executes approved proposals.
type Dispatcher struct {
	ledger   storage.Ledger
	registry *fund.Registry
	venue    venue.Executor
	timeout  time.Duration
	emitter  *events.Emitter
	metrics  *observability.Metrics
	log      *logmatic.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Ledger == nil {
		return nil, errors.New("execution dispatcher: ledger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("execution dispatcher: registry is required")
	}
	if opts.Venue == nil {
		return nil, errors.New("execution dispatcher: venue is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	log := logging.OrDefault(opts.Logger)
	metrics := opts.Metrics
	return &Dispatcher{
		ledger:   opts.Ledger,
		registry: opts.Registry,
		venue:    opts.Venue,
		timeout:  opts.Timeout,
		emitter: events.NewEmitter(opts.Publisher, log, func(kind events.Kind) {
			metrics.RecordPublishError(string(kind))
		}),
		metrics: metrics,
		log:     log,
		now:     opts.Now,
	}, nil
}

// Execute sends an approved proposal to the venue and records the outcome.
//
// When the venue fails, times out or reports an unusable fill, the proposal
// is marked EXECUTION_FAILED and both the recorded result and an
// ErrExecutionFailure error are returned.
func (d *Dispatcher) Execute(ctx context.Context, proposalID string) (res *domain.ExecutionResult, err error) {
	const op = "execute"
	defer func(start time.Time) { d.metrics.RecordOperation(op, start, err) }(time.Now())

	req, err := d.reserve(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}
	d.metrics.AddInFlight(1)
	defer d.metrics.AddInFlight(-1)

	d.log.Info("Executing proposal %s: %d units for %s via %s", proposalID, req.Amount, req.TargetAsset, req.Venue)

	vctx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	fill, venueErr := d.venue.SubmitTrade(vctx, *req)
	cancel()
	venueSecs := time.Since(start).Seconds()

	// The outcome is recorded even if the caller gave up while the venue ran.
	return d.settle(context.WithoutCancel(ctx), op, req, fill, venueErr, venueSecs)
}

// reserve validates the proposal and claims its amount. The returned request
// is what gets sent to the venue.
func (d *Dispatcher) reserve(ctx context.Context, op, proposalID string) (*domain.TradeRequest, error) {
	p, err := d.ledger.GetProposal(ctx, proposalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(op, domain.ErrProposalNotFound).Proposal(proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load proposal %s: %w", op, proposalID, err)
	}

	g := d.registry.Lock(p.FundID)
	defer g.Unlock()

	p, f, err := d.load(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}

	now := d.now()
	if p.FinalizeIfDue(now, f.Config.QuorumThreshold) {
		if err := d.ledger.Apply(ctx, &storage.Batch{Proposals: []*domain.Proposal{p}}); err != nil {
			return nil, fmt.Errorf("%s: commit finalized proposal: %w", op, err)
		}
		d.metrics.RecordFinalized(p.State)
		d.emitter.Emit(ctx, fund.FinalizedEvents([]*domain.Proposal{p}, now)...)
	}

	switch {
	case g.InFlight(p.ID), p.State == domain.ProposalStateExecuted, p.State == domain.ProposalStateExecutionFailed:
		return nil, domain.NewError(op, domain.ErrAlreadyExecuted).Fund(p.FundID).Proposal(p.ID)
	case p.State != domain.ProposalStateApproved:
		return nil, domain.NewError(op, domain.ErrNotApproved).Fund(p.FundID).Proposal(p.ID).
			Wrap(fmt.Errorf("state %s", p.State))
	}
	if p.Amount > f.Balance-min(g.Reserved(), f.Balance) {
		return nil, domain.NewError(op, domain.ErrInsufficientFundBalance).Fund(p.FundID).Proposal(p.ID).WithAmount(p.Amount)
	}
	g.Reserve(p.ID, p.Amount)

	return &domain.TradeRequest{
		ProposalID:    p.ID,
		FundID:        p.FundID,
		TargetAsset:   p.TargetAsset,
		Amount:        p.Amount,
		Venue:         p.Venue,
		ClientOrderID: idhash.ExecutionKey(p.FundID, p.ID, p.TargetAsset, p.Amount),
	}, nil
}

// settle commits the venue outcome and releases the reservation.
func (d *Dispatcher) settle(ctx context.Context, op string, req *domain.TradeRequest, fill *domain.TradeFill, venueErr error, venueSecs float64) (*domain.ExecutionResult, error) {
	g := d.registry.Lock(req.FundID)
	defer g.Unlock()

	p, f, err := d.load(ctx, op, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if p.State != domain.ProposalStateApproved {
		// Nothing else may settle a reserved proposal.
		g.Release(p.ID)
		return nil, fmt.Errorf("%s: proposal %s left %s while in flight", op, p.ID, p.State)
	}

	now := d.now()
	res := &domain.ExecutionResult{ProposalID: p.ID, FundID: p.FundID, CompletedAt: now}
	batch := &storage.Batch{Proposals: []*domain.Proposal{p}}

	reason := failureReason(req, fill, venueErr)
	if reason == "" && fill.FilledAmount > f.Balance {
		reason = fmt.Sprintf("fill %d exceeds fund balance %d", fill.FilledAmount, f.Balance)
	}

	if reason == "" {
		f.Balance -= fill.FilledAmount
		f.TotalExecuted += fill.FilledAmount
		f.UpdatedAt = now
		p.State = domain.ProposalStateExecuted
		p.FilledAmount = fill.FilledAmount
		p.ReceivedAsset = fill.ReceivedAsset
		p.ReceivedQuantity = fill.ReceivedQuantity
		p.ExecutedAt = &now

		batch.Fund = f
		batch.Entries = []*domain.LedgerEntry{{
			ID:           uuid.NewString(),
			FundID:       f.ID,
			Kind:         domain.EntryKindTrade,
			ProposalID:   p.ID,
			Amount:       fill.FilledAmount,
			BalanceAfter: f.Balance,
			SupplyAfter:  f.ShareSupply,
			CreatedAt:    now,
		}}
		res.Fill = fill
	} else {
		p.State = domain.ProposalStateExecutionFailed
		p.FailureReason = reason
	}
	res.State = p.State
	res.FailureReason = p.FailureReason
	res.BalanceAfter = f.Balance

	if err := d.ledger.Apply(ctx, batch); err != nil {
		// The venue may have filled. Keep the reservation so the proposal
		// cannot be sent again before an operator reconciles it.
		d.log.Error("Proposal %s: venue outcome %s could not be recorded, reservation kept: %v", p.ID, p.State, err)
		return nil, fmt.Errorf("%s: commit outcome of proposal %s: %w", op, p.ID, err)
	}
	g.Release(p.ID)
	d.metrics.RecordExecution(p.State, venueSecs)

	ev := events.New(events.KindProposalExecuted, f.ID, now)
	ev.ProposalID = p.ID
	ev.State = string(p.State)
	if p.State == domain.ProposalStateExecuted {
		ev.Amount = fill.FilledAmount
		ev.Detail = fmt.Sprintf("%d %s ref=%s", fill.ReceivedQuantity, fill.ReceivedAsset, fill.Reference)
		d.log.Info("Proposal %s executed: filled %d of %d, received %d %s (balance %d)",
			p.ID, fill.FilledAmount, req.Amount, fill.ReceivedQuantity, fill.ReceivedAsset, f.Balance)
	} else {
		ev.Kind = events.KindExecutionFailed
		ev.Amount = req.Amount
		ev.Detail = reason
		d.log.Warn("Proposal %s execution failed: %s", p.ID, reason)
	}
	d.emitter.Emit(ctx, ev)

	if p.State == domain.ProposalStateExecutionFailed {
		cause := venueErr
		if cause == nil {
			cause = errors.New(reason)
		}
		return res, domain.NewError(op, domain.ErrExecutionFailure).Fund(f.ID).Proposal(p.ID).WithAmount(req.Amount).Wrap(cause)
	}
	return res, nil
}

// failureReason returns why the venue outcome cannot be booked, or "".
func failureReason(req *domain.TradeRequest, fill *domain.TradeFill, venueErr error) string {
	switch {
	case venueErr != nil:
		return venue.FailureReason(venueErr)
	case fill == nil:
		return "venue returned no fill"
	case fill.FilledAmount == 0:
		return "venue reported an empty fill"
	case fill.FilledAmount > req.Amount:
		return fmt.Sprintf("venue filled %d above requested %d", fill.FilledAmount, req.Amount)
	}
	return ""
}

// load re-reads the proposal and its fund. The caller holds the fund lock.
func (d *Dispatcher) load(ctx context.Context, op, proposalID string) (*domain.Proposal, *domain.Fund, error) {
	p, err := d.ledger.GetProposal(ctx, proposalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, domain.NewError(op, domain.ErrProposalNotFound).Proposal(proposalID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: load proposal %s: %w", op, proposalID, err)
	}
	f, err := fund.Load(ctx, d.ledger, op, p.FundID)
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}
