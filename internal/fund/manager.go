// Package fund manages pooled fund accounts: creation, deposits, share
// redemption and archival. Every mutation of a fund is serialized through
// the Registry.
package fund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mborders/logmatic"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/events"
	"solana-fund-dao/internal/idhash"
	"solana-fund-dao/internal/issuer"
	"solana-fund-dao/internal/logging"
	"solana-fund-dao/internal/observability"
	"solana-fund-dao/internal/storage"
)

// Options configures a Manager. Ledger and Issuer are required.
type Options struct {
	Ledger    storage.Ledger
	Issuer    issuer.TokenIssuer
	Deriver   *idhash.Deriver
	Registry  *Registry
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *logmatic.Logger
	Now       func() time.Time
}

// Manager implements the fund account operations.
type Manager struct {
	ledger   storage.Ledger
	issuer   issuer.TokenIssuer
	deriver  *idhash.Deriver
	registry *Registry
	emitter  *events.Emitter
	metrics  *observability.Metrics
	log      *logmatic.Logger
	now      func() time.Time
}

// ShareMismatch is a member whose ledger shares disagree with the issuer.
type ShareMismatch struct {
	MemberID     string
	LedgerShares uint64
	IssuerShares uint64
}

// Statement is a point-in-time view of a fund and its journal.
type Statement struct {
	Fund        *domain.Fund
	Members     []*domain.Member
	Entries     []*domain.LedgerEntry
	GeneratedAt time.Time
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Ledger == nil {
		return nil, errors.New("fund manager: ledger is required")
	}
	if opts.Issuer == nil {
		return nil, errors.New("fund manager: issuer is required")
	}
	if opts.Deriver == nil {
		d, err := idhash.NewDeriver("")
		if err != nil {
			return nil, fmt.Errorf("fund manager: %w", err)
		}
		opts.Deriver = d
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	log := logging.OrDefault(opts.Logger)
	return &Manager{
		ledger:   opts.Ledger,
		issuer:   opts.Issuer,
		deriver:  opts.Deriver,
		registry: opts.Registry,
		emitter:  events.NewEmitter(opts.Publisher, log, publishErrorHook(opts.Metrics)),
		metrics:  opts.Metrics,
		log:      log,
		now:      opts.Now,
	}, nil
}

// Registry returns the lock registry shared with the proposal engine and
// execution dispatcher.
func (m *Manager) Registry() *Registry {
	return m.registry
}

func publishErrorHook(metrics *observability.Metrics) func(events.Kind) {
	return func(kind events.Kind) {
		metrics.RecordPublishError(string(kind))
	}
}

// CreateFund creates a fund with a random seed. See CreateFundWithSeed.
func (m *Manager) CreateFund(ctx context.Context, creatorID string, initialDeposit uint64, cfg domain.FundConfig) (*domain.Fund, error) {
	return m.CreateFundWithSeed(ctx, creatorID, uuid.NewString(), initialDeposit, cfg)
}

// CreateFundWithSeed creates a fund whose address is derived from the creator
// and seed, mints initialDeposit shares to the creator and records the
// deposit.
func (m *Manager) CreateFundWithSeed(ctx context.Context, creatorID, seed string, initialDeposit uint64, cfg domain.FundConfig) (f *domain.Fund, err error) {
	const op = "create_fund"
	defer func(start time.Time) { m.metrics.RecordOperation(op, start, err) }(time.Now())

	if err := cfg.Validate(); err != nil {
		return nil, domain.NewError(op, domain.ErrInvalidConfig).Wrap(err)
	}
	if creatorID == "" {
		return nil, domain.NewError(op, domain.ErrNotAMember)
	}
	if !cfg.Admits(creatorID) {
		return nil, domain.NewError(op, domain.ErrInvalidConfig).Member(creatorID).
			Wrap(fmt.Errorf("creator %s is not on the roster", creatorID))
	}
	if initialDeposit == 0 || initialDeposit > domain.MaxAmount {
		return nil, domain.NewError(op, domain.ErrInvalidAmount).WithAmount(initialDeposit)
	}
	if initialDeposit < cfg.MinimumDeposit {
		return nil, domain.NewError(op, domain.ErrBelowMinimumDeposit).WithAmount(initialDeposit)
	}

	fundID, err := m.deriver.FundAddress(creatorID, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: derive fund address: %w", op, err)
	}
	vault, err := m.deriver.VaultAddress(fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: derive vault address: %w", op, err)
	}
	mint, err := m.deriver.MintAddress(fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: derive mint address: %w", op, err)
	}
	memberAddr, err := m.deriver.MemberAddress(fundID, creatorID)
	if err != nil {
		return nil, fmt.Errorf("%s: derive member address: %w", op, err)
	}

	g := m.registry.Lock(fundID)
	defer g.Unlock()

	if _, err := m.ledger.GetFund(ctx, fundID); err == nil {
		return nil, fmt.Errorf("%s: fund %s: %w", op, fundID, storage.ErrDuplicateKey)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: check fund %s: %w", op, fundID, err)
	}

	now := m.now()
	f = &domain.Fund{
		ID:             fundID,
		Creator:        creatorID,
		GovernanceMint: mint,
		Vault:          vault,
		Config:         cfg,
		Status:         domain.FundStatusActive,
		Balance:        initialDeposit,
		ShareSupply:    initialDeposit,
		TotalDeposited: initialDeposit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	member := &domain.Member{
		FundID:    fundID,
		MemberID:  creatorID,
		Address:   memberAddr,
		Shares:    initialDeposit,
		Deposited: initialDeposit,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	entry := m.entry(f, domain.EntryKindDeposit, creatorID, initialDeposit, int64(initialDeposit), now)

	if err := m.mint(ctx, fundID, creatorID, initialDeposit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	batch := &storage.Batch{NewFund: f, Members: []*domain.Member{member}, Entries: []*domain.LedgerEntry{entry}}
	if err := m.ledger.Apply(ctx, batch); err != nil {
		m.compensate(ctx, op, issuer.TokenIssuer.Burn, fundID, creatorID, initialDeposit)
		return nil, fmt.Errorf("%s: commit fund %s: %w", op, fundID, err)
	}

	m.log.Info("Created fund %s for %s with %d units (quorum %s, window %s)",
		fundID, creatorID, initialDeposit, cfg.QuorumThreshold, cfg.VotingWindow)

	ev := events.New(events.KindFundCreated, fundID, now)
	ev.Actor = creatorID
	ev.Amount = initialDeposit
	ev.State = string(f.Status)
	m.emitter.Emit(ctx, ev)

	return f.Clone(), nil
}

// Deposit adds amount to the fund's pool and mints the same number of shares
// to the member. A member's first deposit must meet the fund minimum.
//
// The issuer is called without the fund lock: the deposit is validated,
// shares are minted, then the deposit is validated again and committed.
// A deposit that no longer applies has its mint reversed.
func (m *Manager) Deposit(ctx context.Context, fundID, memberID string, amount uint64) (mem *domain.Member, err error) {
	const op = "deposit"
	defer func(start time.Time) { m.metrics.RecordOperation(op, start, err) }(time.Now())

	if memberID == "" {
		return nil, domain.NewError(op, domain.ErrNotAMember).Fund(fundID)
	}
	if amount == 0 || amount > domain.MaxAmount {
		return nil, domain.NewError(op, domain.ErrInvalidAmount).Fund(fundID).Member(memberID).WithAmount(amount)
	}

	g := m.registry.Lock(fundID)
	_, _, err = m.depositState(ctx, op, fundID, memberID, amount, m.now())
	g.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.mint(ctx, fundID, memberID, amount); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	g = m.registry.Lock(fundID)
	defer g.Unlock()

	now := m.now()
	f, mem, err := m.depositState(ctx, op, fundID, memberID, amount, now)
	if err != nil {
		m.compensate(ctx, op, issuer.TokenIssuer.Burn, fundID, memberID, amount)
		return nil, err
	}

	f.Balance += amount
	f.ShareSupply += amount
	f.TotalDeposited += amount
	f.UpdatedAt = now
	mem.Shares += amount
	mem.Deposited += amount
	mem.UpdatedAt = now
	entry := m.entry(f, domain.EntryKindDeposit, memberID, amount, int64(amount), now)

	batch := &storage.Batch{Fund: f, Members: []*domain.Member{mem}, Entries: []*domain.LedgerEntry{entry}}
	if err := m.ledger.Apply(ctx, batch); err != nil {
		m.compensate(ctx, op, issuer.TokenIssuer.Burn, fundID, memberID, amount)
		return nil, fmt.Errorf("%s: commit fund %s: %w", op, fundID, err)
	}

	m.log.Debug("Deposited %d units into fund %s for %s (balance %d)", amount, fundID, memberID, f.Balance)

	ev := events.New(events.KindDeposited, fundID, now)
	ev.Actor = memberID
	ev.Amount = amount
	m.emitter.Emit(ctx, ev)

	return mem.Clone(), nil
}

// depositState loads the fund and member a deposit applies to and checks the
// deposit is allowed. A first deposit gets a new zero-share member.
// Callers hold the fund lock.
func (m *Manager) depositState(ctx context.Context, op, fundID, memberID string, amount uint64, now time.Time) (*domain.Fund, *domain.Member, error) {
	f, err := LoadActive(ctx, m.ledger, op, fundID)
	if err != nil {
		return nil, nil, err
	}
	if !f.Config.Admits(memberID) {
		return nil, nil, domain.NewError(op, domain.ErrNotAMember).Fund(fundID).Member(memberID)
	}
	if amount > domain.MaxAmount-f.Balance || amount > domain.MaxAmount-f.TotalDeposited {
		return nil, nil, domain.NewError(op, domain.ErrInvalidAmount).Fund(fundID).Member(memberID).WithAmount(amount)
	}

	mem, err := m.ledger.GetMember(ctx, fundID, memberID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if amount < f.Config.MinimumDeposit {
			return nil, nil, domain.NewError(op, domain.ErrBelowMinimumDeposit).Fund(fundID).Member(memberID).WithAmount(amount)
		}
		addr, err := m.deriver.MemberAddress(fundID, memberID)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: derive member address: %w", op, err)
		}
		mem = &domain.Member{FundID: fundID, MemberID: memberID, Address: addr, JoinedAt: now}
	case err != nil:
		return nil, nil, fmt.Errorf("%s: load member %s: %w", op, memberID, err)
	}
	return f, mem, nil
}

// Withdraw redeems shareAmount shares for the same number of native units.
// Shares counted on a proposal that is still voting stay locked until its
// deadline.
//
// The shares and balance are reserved on the fund lock while the issuer
// burns them, then the withdrawal is validated again and committed.
func (m *Manager) Withdraw(ctx context.Context, fundID, memberID string, shareAmount uint64) (payout uint64, err error) {
	const op = "withdraw"
	defer func(start time.Time) { m.metrics.RecordOperation(op, start, err) }(time.Now())

	if shareAmount == 0 || shareAmount > domain.MaxAmount {
		return 0, domain.NewError(op, domain.ErrInvalidAmount).Fund(fundID).Member(memberID).WithAmount(shareAmount)
	}

	g := m.registry.Lock(fundID)
	_, err = m.withdrawState(ctx, op, g, fundID, memberID, shareAmount)
	if err == nil {
		g.ReserveWithdrawal(memberID, shareAmount)
	}
	g.Unlock()
	if err != nil {
		return 0, err
	}

	burnErr := m.burn(ctx, fundID, memberID, shareAmount)

	g = m.registry.Lock(fundID)
	defer g.Unlock()
	g.ReleaseWithdrawal(memberID, shareAmount)
	if burnErr != nil {
		return 0, fmt.Errorf("%s: %w", op, burnErr)
	}

	w, err := m.withdrawState(ctx, op, g, fundID, memberID, shareAmount)
	if err != nil {
		m.compensate(ctx, op, issuer.TokenIssuer.Mint, fundID, memberID, shareAmount)
		return 0, err
	}
	f, mem, now := w.fund, w.member, w.now

	f.Balance -= shareAmount
	f.ShareSupply -= shareAmount
	f.TotalWithdrawn += shareAmount
	f.UpdatedAt = now
	mem.Shares -= shareAmount
	mem.Withdrawn += shareAmount
	mem.UpdatedAt = now
	entry := m.entry(f, domain.EntryKindWithdrawal, memberID, shareAmount, -int64(shareAmount), now)

	archive := f.Balance == 0 && !HasOpen(w.proposals)
	if archive {
		f.Status = domain.FundStatusArchived
		f.ArchivedAt = &now
	}

	batch := &storage.Batch{
		Fund:      f,
		Members:   []*domain.Member{mem},
		Proposals: w.finalized,
		Entries:   []*domain.LedgerEntry{entry},
	}
	if err := m.ledger.Apply(ctx, batch); err != nil {
		m.compensate(ctx, op, issuer.TokenIssuer.Mint, fundID, memberID, shareAmount)
		return 0, fmt.Errorf("%s: commit fund %s: %w", op, fundID, err)
	}
	if archive {
		g.Retire()
	}

	m.log.Debug("Withdrew %d units from fund %s for %s (balance %d)", shareAmount, fundID, memberID, f.Balance)
	m.recordFinalized(w.finalized)

	ev := events.New(events.KindWithdrawn, fundID, now)
	ev.Actor = memberID
	ev.Amount = shareAmount
	evs := append(FinalizedEvents(w.finalized, now), ev)
	if archive {
		m.log.Info("Fund %s archived after final withdrawal", fundID)
		evs = append(evs, archivedEvent(f, now))
	}
	m.emitter.Emit(ctx, evs...)

	return shareAmount, nil
}

// withdrawal is the state a withdrawal commits against.
type withdrawal struct {
	fund      *domain.Fund
	member    *domain.Member
	proposals []*domain.Proposal
	finalized []*domain.Proposal
	now       time.Time
}

// withdrawState loads and checks a withdrawal, net of shares and balance
// other withdrawals and executions have reserved. Callers hold g.
func (m *Manager) withdrawState(ctx context.Context, op string, g *Guard, fundID, memberID string, shareAmount uint64) (*withdrawal, error) {
	f, err := LoadActive(ctx, m.ledger, op, fundID)
	if err != nil {
		return nil, err
	}
	mem, err := m.ledger.GetMember(ctx, fundID, memberID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(op, domain.ErrNotAMember).Fund(fundID).Member(memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load member %s: %w", op, memberID, err)
	}
	free := mem.Shares - min(g.Withdrawing(memberID), mem.Shares)
	if shareAmount > free {
		return nil, domain.NewError(op, domain.ErrInsufficientShares).Fund(fundID).Member(memberID).WithAmount(shareAmount)
	}

	now := m.now()
	proposals, err := m.ledger.ListProposals(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: list proposals: %w", op, err)
	}
	finalized := FinalizeDue(proposals, now, f.Config)

	locked, err := m.lockedShares(ctx, fundID, memberID, proposals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if free-shareAmount < locked {
		return nil, domain.NewError(op, domain.ErrWithdrawalBlockedByActiveVote).Fund(fundID).Member(memberID).WithAmount(shareAmount)
	}
	if shareAmount > f.Balance-min(g.Reserved(), f.Balance) {
		return nil, domain.NewError(op, domain.ErrInsufficientFundBalance).Fund(fundID).Member(memberID).WithAmount(shareAmount)
	}
	return &withdrawal{fund: f, member: mem, proposals: proposals, finalized: finalized, now: now}, nil
}

// lockedShares returns the largest weight counted for the member on any
// proposal still voting: the cast vote's weight, or the snapshot balance when
// the member is the proposer.
func (m *Manager) lockedShares(ctx context.Context, fundID, memberID string, proposals []*domain.Proposal) (uint64, error) {
	votes, err := m.ledger.ListVotesByVoter(ctx, fundID, memberID)
	if err != nil {
		return 0, fmt.Errorf("list votes: %w", err)
	}
	cast := make(map[string]uint64, len(votes))
	for _, v := range votes {
		cast[v.ProposalID] = v.Weight
	}

	var locked uint64
	for _, p := range proposals {
		if p.State != domain.ProposalStateVoting {
			continue
		}
		w := cast[p.ID]
		if p.ProposerID == memberID {
			w = max(w, p.SnapshotWeight(memberID))
		}
		locked = max(locked, w)
	}
	return locked, nil
}

// Archive closes an empty fund. The fund must have zero balance and no open
// proposals.
func (m *Manager) Archive(ctx context.Context, fundID string) (f *domain.Fund, err error) {
	const op = "archive"
	defer func(start time.Time) { m.metrics.RecordOperation(op, start, err) }(time.Now())

	g := m.registry.Lock(fundID)
	defer g.Unlock()

	f, err = LoadActive(ctx, m.ledger, op, fundID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	proposals, err := m.ledger.ListProposals(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("%s: list proposals: %w", op, err)
	}
	finalized := FinalizeDue(proposals, now, f.Config)
	if f.Balance > 0 || HasOpen(proposals) {
		return nil, domain.NewError(op, domain.ErrFundNotEmpty).Fund(fundID).WithAmount(f.Balance)
	}

	f.Status = domain.FundStatusArchived
	f.ArchivedAt = &now
	f.UpdatedAt = now
	if err := m.ledger.Apply(ctx, &storage.Batch{Fund: f, Proposals: finalized}); err != nil {
		return nil, fmt.Errorf("%s: commit fund %s: %w", op, fundID, err)
	}
	g.Retire()

	m.log.Info("Fund %s archived", fundID)
	m.recordFinalized(finalized)
	m.emitter.Emit(ctx, append(FinalizedEvents(finalized, now), archivedEvent(f, now))...)

	return f.Clone(), nil
}

// GetFund returns the fund.
func (m *Manager) GetFund(ctx context.Context, fundID string) (*domain.Fund, error) {
	return Load(ctx, m.ledger, "get_fund", fundID)
}

// ListFunds returns every fund, oldest first.
func (m *Manager) ListFunds(ctx context.Context) ([]*domain.Fund, error) {
	funds, err := m.ledger.ListFunds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	return funds, nil
}

// GetMember returns a member of the fund.
func (m *Manager) GetMember(ctx context.Context, fundID, memberID string) (*domain.Member, error) {
	mem, err := m.ledger.GetMember(ctx, fundID, memberID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError("get_member", domain.ErrNotAMember).Fund(fundID).Member(memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", memberID, err)
	}
	return mem, nil
}

// ListMembers returns the fund's members in join order.
func (m *Manager) ListMembers(ctx context.Context, fundID string) ([]*domain.Member, error) {
	if _, err := Load(ctx, m.ledger, "list_members", fundID); err != nil {
		return nil, err
	}
	members, err := m.ledger.ListMembers(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Statement returns the fund with its members and journal.
func (m *Manager) Statement(ctx context.Context, fundID string) (*Statement, error) {
	f, err := Load(ctx, m.ledger, "statement", fundID)
	if err != nil {
		return nil, err
	}
	members, err := m.ledger.ListMembers(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("statement: list members: %w", err)
	}
	entries, err := m.ledger.ListEntries(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("statement: list entries: %w", err)
	}
	return &Statement{Fund: f, Members: members, Entries: entries, GeneratedAt: m.now()}, nil
}

// Reconcile compares each member's ledger shares with the issuer balance.
func (m *Manager) Reconcile(ctx context.Context, fundID string) ([]ShareMismatch, error) {
	members, err := m.ListMembers(ctx, fundID)
	if err != nil {
		return nil, err
	}
	var mismatches []ShareMismatch
	for _, mem := range members {
		held, err := m.issuer.BalanceOf(ctx, fundID, mem.MemberID)
		m.metrics.RecordIssuerCall("balance_of", err)
		if err != nil {
			return nil, fmt.Errorf("reconcile: balance of %s: %w", mem.MemberID, err)
		}
		if held != mem.Shares {
			mismatches = append(mismatches, ShareMismatch{
				MemberID:     mem.MemberID,
				LedgerShares: mem.Shares,
				IssuerShares: held,
			})
		}
	}
	if len(mismatches) > 0 {
		m.log.Warn("Fund %s has %d share mismatches with the issuer", fundID, len(mismatches))
	}
	return mismatches, nil
}

func (m *Manager) entry(f *domain.Fund, kind domain.EntryKind, memberID string, amount uint64, sharesDelta int64, at time.Time) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:           uuid.NewString(),
		FundID:       f.ID,
		Kind:         kind,
		MemberID:     memberID,
		Amount:       amount,
		SharesDelta:  sharesDelta,
		BalanceAfter: f.Balance,
		SupplyAfter:  f.ShareSupply,
		CreatedAt:    at,
	}
}

func (m *Manager) mint(ctx context.Context, fundID, memberID string, amount uint64) error {
	err := m.issuer.Mint(ctx, fundID, memberID, amount)
	m.metrics.RecordIssuerCall("mint", err)
	if err != nil {
		return fmt.Errorf("mint %d shares to %s: %w", amount, memberID, err)
	}
	return nil
}

func (m *Manager) burn(ctx context.Context, fundID, memberID string, amount uint64) error {
	err := m.issuer.Burn(ctx, fundID, memberID, amount)
	m.metrics.RecordIssuerCall("burn", err)
	if err != nil {
		return fmt.Errorf("burn %d shares from %s: %w", amount, memberID, err)
	}
	return nil
}

// compensate reverses an issuer call whose ledger commit failed or whose
// operation no longer applies. It runs on
// a fresh context so a canceled caller still gets the reversal.
func (m *Manager) compensate(ctx context.Context, op string, inverse func(issuer.TokenIssuer, context.Context, string, string, uint64) error, fundID, memberID string, amount uint64) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	m.metrics.RecordCompensation()
	if err := inverse(m.issuer, cctx, fundID, memberID, amount); err != nil {
		m.log.Error("%s: compensating issuer call for fund %s member %s amount %d failed: %v",
			op, fundID, memberID, amount, err)
		return
	}
	m.log.Warn("%s: not committed, reversed issuer call for fund %s member %s amount %d",
		op, fundID, memberID, amount)
}

func (m *Manager) recordFinalized(ps []*domain.Proposal) {
	for _, p := range ps {
		m.metrics.RecordFinalized(p.State)
	}
}

// FinalizedEvents builds one finalized event per proposal.
func FinalizedEvents(ps []*domain.Proposal, at time.Time) []events.Event {
	evs := make([]events.Event, 0, len(ps))
	for _, p := range ps {
		ev := events.New(events.KindProposalFinalized, p.FundID, at)
		ev.ProposalID = p.ID
		ev.Amount = p.Amount
		ev.State = string(p.State)
		ev.Detail = fmt.Sprintf("for=%d against=%d supply=%d", p.ForWeight, p.AgainstWeight, p.SnapshotSupply)
		evs = append(evs, ev)
	}
	return evs
}

func archivedEvent(f *domain.Fund, at time.Time) events.Event {
	ev := events.New(events.KindFundArchived, f.ID, at)
	ev.State = string(f.Status)
	return ev
}
