// Package proposal runs the proposal lifecycle: submission against a balance
// snapshot, weighted voting and the deadline tally.
//
// Deadlines are enforced lazily. Every read or write that touches a proposal
// first finalizes it if its deadline has passed.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mborders/logmatic"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/fund"
	"solana-fund-dao/internal/idhash"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/storage"
)

// Options configures an Engine. Ledger and Registry are required; the
// Registry must be the one the fund manager uses.
type Options struct {
	Ledger    storage.Ledger
	Registry  *fund.Registry
	Deriver   *idhash.Deriver
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *logmatic.Logger
	Now       func() time.Time
}

// Engine implements proposal submission, voting and finalization.
type Engine struct {
	ledger   storage.Ledger
	registry *fund.Registry
	deriver  *idhash.Deriver
	emitter  *events.Emitter
	metrics  *observability.Metrics
	log      *logmatic.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("proposal engine: ledger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("proposal engine: registry is required")
	}
	if opts.Deriver == nil {
		d, err := idhash.NewDeriver("")
		if err != nil {
			return nil, fmt.Errorf("proposal engine: %w", err)
		}
		opts.Deriver = d
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	log := logging.OrDefault(opts.Logger)
	metrics := opts.Metrics
	return &Engine{
		ledger:   opts.Ledger,
		registry: opts.Registry,
		deriver:  opts.Deriver,
		emitter: events.NewEmitter(opts.Publisher, log, func(kind events.Kind) {
			metrics.RecordPublishError(string(kind))
		}),
		metrics: metrics,
		log:     log,
		now:     opts.Now,
	}, nil
}

// Submit creates a proposal to spend amount of the fund's balance on
// targetAsset. The proposer's shares and every nonzero member balance are
// frozen as the voting snapshot, and voting opens immediately.
func (e *Engine) Submit(ctx context.Context, fundID, proposerID, targetAsset string, amount uint64, venue string) (p *domain.Proposal, err error) {
	const op = "submit_proposal"
	defer func(start time.Time) { e.metrics.RecordOperation(op, start, err) }(time.Now())

	if targetAsset == "" || venue == "" {
		return nil, domain.NewError(op, domain.ErrInvalidProposal).Fund(fundID).Member(proposerID)
	}
	if amount == 0 || amount > domain.MaxAmount {
		return nil, domain.NewError(op, domain.ErrInvalidAmount).Fund(fundID).Member(proposerID).WithAmount(amount)
	}

	g := e.registry.Lock(fundID)
	defer g.Unlock()

	f, err := fund.LoadActive(ctx, e.ledger, op, fundID)
	if err != nil {
		return nil, err
	}
	proposer, err := e.ledger.GetMember(ctx, fundID, proposerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !proposer.IsActive()) {
		return nil, domain.NewError(op, domain.ErrNotAMember).Fund(fundID).Member(proposerID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load member %s: %w", op, proposerID, err)
	}
	if amount > f.Balance-min(g.Reserved(), f.Balance) {
		return nil, domain.NewError(op, domain.ErrInsufficientFundBalance).Fund(fundID).Member(proposerID).WithAmount(amount)
	}

	members, err := e.ledger.ListMembers(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: list members: %w", op, err)
	}
	snapshot := make(map[string]uint64, len(members))
	var supply uint64
	for _, m := range members {
		if m.Shares > 0 {
			snapshot[m.MemberID] = m.Shares
			supply += m.Shares
		}
	}
	if supply != f.ShareSupply {
		return nil, fmt.Errorf("%s: fund %s member shares %d do not match supply %d", op, fundID, supply, f.ShareSupply)
	}

	id, err := e.deriver.ProposalAddress(fundID, proposerID, proposer.ProposalCount)
	if err != nil {
		return nil, fmt.Errorf("%s: derive proposal address: %w", op, err)
	}

	now := e.now()
	p = &domain.Proposal{
		ID:               id,
		FundID:           fundID,
		ProposerID:       proposerID,
		TargetAsset:      targetAsset,
		Amount:           amount,
		Venue:            venue,
		CreatedAt:        now,
		Deadline:         now.Add(f.Config.VotingWindow),
		SnapshotSupply:   supply,
		SnapshotBalances: snapshot,
		State:            domain.ProposalStatePending,
	}
	if err := transition(p, domain.ProposalStateVoting); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	proposer.ProposalCount++
	proposer.UpdatedAt = now

	if err := e.ledger.Apply(ctx, &storage.Batch{NewProposal: p, Members: []*domain.Member{proposer}}); err != nil {
		return nil, fmt.Errorf("%s: commit proposal %s: %w", op, id, err)
	}

	e.log.Info("Proposal %s submitted by %s on fund %s: %d units for %s via %s (deadline %s)",
		id, proposerID, fundID, amount, targetAsset, venue, p.Deadline.Format(time.RFC3339))

	ev := events.New(events.KindProposalSubmitted, fundID, now)
	ev.ProposalID = id
	ev.Actor = proposerID
	ev.Amount = amount
	ev.State = string(p.State)
	ev.Detail = targetAsset + "@" + venue
	e.emitter.Emit(ctx, ev)

	return p.Clone(), nil
}

// CastVote records the voter's vote weighted by their snapshot balance. A
// later vote by the same voter replaces the earlier one.
func (e *Engine) CastVote(ctx context.Context, proposalID, voterID string, direction domain.Direction) (p *domain.Proposal, err error) {
	const op = "cast_vote"
	defer func(start time.Time) { e.metrics.RecordOperation(op, start, err) }(time.Now())

	if !direction.IsValid() {
		return nil, domain.NewError(op, domain.ErrInvalidDirection).Proposal(proposalID).Member(voterID)
	}

	fundID, err := e.fundOf(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}

	g := e.registry.Lock(fundID)
	defer g.Unlock()

	p, f, err := e.load(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}
	if err := e.finalizeLocked(ctx, f, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.State != domain.ProposalStateVoting || !e.now().Before(p.Deadline) {
		return nil, domain.NewError(op, domain.ErrVotingClosed).Fund(fundID).Proposal(proposalID).Member(voterID)
	}

	weight := p.SnapshotWeight(voterID)
	if weight == 0 {
		return nil, domain.NewError(op, domain.ErrNotEligible).Fund(fundID).Proposal(proposalID).Member(voterID)
	}

	prev, err := e.ledger.GetVote(ctx, proposalID, voterID)
	switch {
	case err == nil:
		removeWeight(p, prev)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: load vote: %w", op, err)
	}

	now := e.now()
	vote := &domain.Vote{
		ProposalID: proposalID,
		FundID:     fundID,
		VoterID:    voterID,
		Direction:  direction,
		Weight:     weight,
		CastAt:     now,
	}
	addWeight(p, vote)

	if err := e.ledger.Apply(ctx, &storage.Batch{Proposals: []*domain.Proposal{p}, Votes: []*domain.Vote{vote}}); err != nil {
		return nil, fmt.Errorf("%s: commit vote: %w", op, err)
	}
	e.metrics.RecordVote()

	if prev != nil {
		e.log.Debug("Vote by %s on proposal %s replaced: %s -> %s (weight %d)", voterID, proposalID, prev.Direction, direction, weight)
	} else {
		e.log.Debug("Vote by %s on proposal %s: %s (weight %d)", voterID, proposalID, direction, weight)
	}

	ev := events.New(events.KindVoteCast, fundID, now)
	ev.ProposalID = proposalID
	ev.Actor = voterID
	ev.Amount = weight
	ev.State = string(direction)
	e.emitter.Emit(ctx, ev)

	return p.Clone(), nil
}

// Get returns the proposal after applying lazy expiry.
func (e *Engine) Get(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	return e.Refresh(ctx, proposalID)
}

// Refresh finalizes the proposal if its deadline has passed and returns the
// current state.
func (e *Engine) Refresh(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	const op = "refresh_proposal"

	p, err := e.ledger.GetProposal(ctx, proposalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(op, domain.ErrProposalNotFound).Proposal(proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load proposal %s: %w", op, proposalID, err)
	}
	if !p.IsDue(e.now()) {
		return p, nil
	}

	g := e.registry.Lock(p.FundID)
	defer g.Unlock()

	p, f, err := e.load(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}
	if err := e.finalizeLocked(ctx, f, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ListByFund returns the fund's proposals, oldest first, finalizing any that
// are past their deadline.
func (e *Engine) ListByFund(ctx context.Context, fundID string) ([]*domain.Proposal, error) {
	const op = "list_proposals"

	g := e.registry.Lock(fundID)
	defer g.Unlock()

	f, err := fund.Load(ctx, e.ledger, op, fundID)
	if err != nil {
		return nil, err
	}
	proposals, err := e.ledger.ListProposals(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := e.finalizeLocked(ctx, f, proposals...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return proposals, nil
}

// ListVotes returns the votes cast on a proposal.
func (e *Engine) ListVotes(ctx context.Context, proposalID string) ([]*domain.Vote, error) {
	if _, err := e.fundOf(ctx, "list_votes", proposalID); err != nil {
		return nil, err
	}
	votes, err := e.ledger.ListVotes(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

// ListDue returns voting proposals of every fund whose deadline has passed.
func (e *Engine) ListDue(ctx context.Context) ([]*domain.Proposal, error) {
	voting, err := e.ledger.ListProposalsByState(ctx, domain.ProposalStateVoting)
	if err != nil {
		return nil, fmt.Errorf("list voting proposals: %w", err)
	}
	now := e.now()
	var due []*domain.Proposal
	for _, p := range voting {
		if p.IsDue(now) {
			due = append(due, p)
		}
	}
	return due, nil
}

func (e *Engine) fundOf(ctx context.Context, op, proposalID string) (string, error) {
	p, err := e.ledger.GetProposal(ctx, proposalID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", domain.NewError(op, domain.ErrProposalNotFound).Proposal(proposalID)
	}
	if err != nil {
		return "", fmt.Errorf("%s: load proposal %s: %w", op, proposalID, err)
	}
	return p.FundID, nil
}

// load re-reads the proposal and its fund. The caller holds the fund lock.
func (e *Engine) load(ctx context.Context, op, proposalID string) (*domain.Proposal, *domain.Fund, error) {
	p, err := e.ledger.GetProposal(ctx, proposalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, domain.NewError(op, domain.ErrProposalNotFound).Proposal(proposalID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: load proposal %s: %w", op, proposalID, err)
	}
	f, err := fund.Load(ctx, e.ledger, op, p.FundID)
	if err != nil {
		return nil, nil, err
	}
	return p, f, nil
}

// finalizeLocked tallies the due proposals among ps and commits them. The
// caller holds the fund lock.
func (e *Engine) finalizeLocked(ctx context.Context, f *domain.Fund, ps ...*domain.Proposal) error {
	now := e.now()
	finalized := fund.FinalizeDue(ps, now, f.Config)
	if len(finalized) == 0 {
		return nil
	}
	if err := e.ledger.Apply(ctx, &storage.Batch{Proposals: finalized}); err != nil {
		return fmt.Errorf("commit finalized proposals: %w", err)
	}
	for _, p := range finalized {
		e.metrics.RecordFinalized(p.State)
		e.log.Info("Proposal %s finalized %s (for %d, against %d, supply %d, quorum %s)",
			p.ID, p.State, p.ForWeight, p.AgainstWeight, p.SnapshotSupply, f.Config.QuorumThreshold)
	}
	e.emitter.Emit(ctx, fund.FinalizedEvents(finalized, now)...)
	return nil
}

func transition(p *domain.Proposal, next domain.ProposalState) error {
	if !p.State.CanTransition(next) {
		return fmt.Errorf("proposal %s: illegal transition %s -> %s", p.ID, p.State, next)
	}
	p.State = next
	return nil
}

func addWeight(p *domain.Proposal, v *domain.Vote) {
	switch v.Direction {
	case domain.DirectionFor:
		p.ForWeight += v.Weight
	case domain.DirectionAgainst:
		p.AgainstWeight += v.Weight
	}
}

func removeWeight(p *domain.Proposal, v *domain.Vote) {
	switch v.Direction {
	case domain.DirectionFor:
		p.ForWeight -= min(v.Weight, p.ForWeight)
	case domain.DirectionAgainst:
		p.AgainstWeight -= min(v.Weight, p.AgainstWeight)
	}
}
