package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/storage"
)

// Ledger implements storage.Ledger using PostgreSQL.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

const fundColumns = `
	fund_id, creator, governance_mint, vault,
	quorum_threshold, voting_window_ms, minimum_deposit, status,
	balance, share_supply, total_deposited, total_withdrawn, total_executed,
	version, created_at, updated_at, archived_at, roster`

const memberColumns = `
	fund_id, member_id, address, shares, deposited, withdrawn,
	proposal_count, joined_at, updated_at`

const proposalColumns = `
	proposal_id, fund_id, proposer_id, target_asset, amount, venue,
	created_at, deadline, snapshot_supply, snapshot_balances,
	for_weight, against_weight, state, finalized_at,
	filled_amount, received_asset, received_quantity, executed_at, failure_reason,
	version`

const voteColumns = `proposal_id, fund_id, voter_id, direction, weight, cast_at`

const entryColumns = `
	entry_id, fund_id, kind, member_id, proposal_id,
	amount, shares_delta, balance_after, supply_after, created_at`

// Apply commits a batch in a single transaction. Versions of the batch
// records are advanced only after the transaction commits.
func (l *Ledger) Apply(ctx context.Context, b *storage.Batch) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if b.IsEmpty() {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if b.NewFund != nil {
		if err := insertFund(ctx, tx, b.NewFund); err != nil {
			return err
		}
	}
	if b.Fund != nil {
		if err := updateFund(ctx, tx, b.Fund); err != nil {
			return err
		}
	}
	for _, m := range b.Members {
		if err := upsertMember(ctx, tx, m); err != nil {
			return err
		}
	}
	if b.NewProposal != nil {
		if err := insertProposal(ctx, tx, b.NewProposal); err != nil {
			return err
		}
	}
	for _, p := range b.Proposals {
		if err := updateProposal(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, v := range b.Votes {
		if err := upsertVote(ctx, tx, v); err != nil {
			return err
		}
	}
	for _, e := range b.Entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	if b.NewFund != nil {
		b.NewFund.Version = 1
	}
	if b.Fund != nil {
		b.Fund.Version++
	}
	if b.NewProposal != nil {
		b.NewProposal.Version = 1
	}
	for _, p := range b.Proposals {
		p.Version++
	}
	return nil
}

func insertFund(ctx context.Context, tx pgx.Tx, f *domain.Fund) error {
	query := `INSERT INTO funds (` + fundColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15, $16, $17)`

	roster := f.Config.Roster
	if roster == nil {
		roster = []string{}
	}
	_, err := tx.Exec(ctx, query,
		f.ID, f.Creator, f.GovernanceMint, f.Vault,
		f.Config.QuorumThreshold.String(), f.Config.VotingWindow.Milliseconds(), f.Config.MinimumDeposit, string(f.Status),
		f.Balance, f.ShareSupply, f.TotalDeposited, f.TotalWithdrawn, f.TotalExecuted,
		f.CreatedAt, f.UpdatedAt, f.ArchivedAt, roster,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert fund: %w", err)
	}
	return nil
}

func updateFund(ctx context.Context, tx pgx.Tx, f *domain.Fund) error {
	query := `
		UPDATE funds SET
			status = $3, balance = $4, share_supply = $5,
			total_deposited = $6, total_withdrawn = $7, total_executed = $8,
			updated_at = $9, archived_at = $10, version = version + 1
		WHERE fund_id = $1 AND version = $2
	`

	tag, err := tx.Exec(ctx, query,
		f.ID, f.Version,
		string(f.Status), f.Balance, f.ShareSupply,
		f.TotalDeposited, f.TotalWithdrawn, f.TotalExecuted,
		f.UpdatedAt, f.ArchivedAt,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update fund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, tx, `SELECT 1 FROM funds WHERE fund_id = $1`, f.ID)
	}
	return nil
}

func upsertMember(ctx context.Context, tx pgx.Tx, m *domain.Member) error {
	query := `INSERT INTO fund_members (` + memberColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fund_id, member_id) DO UPDATE SET
			address = EXCLUDED.address,
			shares = EXCLUDED.shares,
			deposited = EXCLUDED.deposited,
			withdrawn = EXCLUDED.withdrawn,
			proposal_count = EXCLUDED.proposal_count,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		m.FundID, m.MemberID, m.Address, m.Shares, m.Deposited, m.Withdrawn,
		m.ProposalCount, m.JoinedAt, m.UpdatedAt,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func insertProposal(ctx context.Context, tx pgx.Tx, p *domain.Proposal) error {
	snapshot, err := json.Marshal(p.SnapshotBalances)
	if err != nil {
		return fmt.Errorf("marshal snapshot balances: %w", err)
	}

	query := `INSERT INTO proposals (` + proposalColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, 1)`

	_, err = tx.Exec(ctx, query,
		p.ID, p.FundID, p.ProposerID, p.TargetAsset, p.Amount, p.Venue,
		p.CreatedAt, p.Deadline, p.SnapshotSupply, snapshot,
		p.ForWeight, p.AgainstWeight, string(p.State), p.FinalizedAt,
		p.FilledAmount, p.ReceivedAsset, p.ReceivedQuantity, p.ExecutedAt, p.FailureReason,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func updateProposal(ctx context.Context, tx pgx.Tx, p *domain.Proposal) error {
	query := `
		UPDATE proposals SET
			for_weight = $3, against_weight = $4, state = $5, finalized_at = $6,
			filled_amount = $7, received_asset = $8, received_quantity = $9,
			executed_at = $10, failure_reason = $11, version = version + 1
		WHERE proposal_id = $1 AND version = $2
	`

	tag, err := tx.Exec(ctx, query,
		p.ID, p.Version,
		p.ForWeight, p.AgainstWeight, string(p.State), p.FinalizedAt,
		p.FilledAmount, p.ReceivedAsset, p.ReceivedQuantity,
		p.ExecutedAt, p.FailureReason,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, tx, `SELECT 1 FROM proposals WHERE proposal_id = $1`, p.ID)
	}
	return nil
}

func upsertVote(ctx context.Context, tx pgx.Tx, v *domain.Vote) error {
	query := `INSERT INTO votes (` + voteColumns + `) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (proposal_id, voter_id) DO UPDATE SET
			direction = EXCLUDED.direction,
			weight = EXCLUDED.weight,
			cast_at = EXCLUDED.cast_at`

	_, err := tx.Exec(ctx, query, v.ProposalID, v.FundID, v.VoterID, string(v.Direction), v.Weight, v.CastAt)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.FundID, string(e.Kind), e.MemberID, e.ProposalID,
		e.Amount, e.SharesDelta, e.BalanceAfter, e.SupplyAfter, e.CreatedAt,
	)
	if err != nil {
		if mapped := classify(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// missingOrConflict distinguishes a missing row from a stale version after
// a guarded UPDATE touched no rows.
func missingOrConflict(ctx context.Context, tx pgx.Tx, query, id string) error {
	var one int
	err := tx.QueryRow(ctx, query, id).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check row exists: %w", err)
	}
	return storage.ErrConflict
}

// GetFund retrieves a fund by its ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetFund(ctx context.Context, fundID string) (*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE fund_id = $1`

	f, err := scanFund(l.pool.QueryRow(ctx, query, fundID))
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fund: %w", err)
	}
	return f, nil
}

// ListFunds retrieves all funds, ordered by created_at ASC.
func (l *Ledger) ListFunds(ctx context.Context) ([]*domain.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds ORDER BY created_at ASC, fund_id ASC`

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var funds []*domain.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund row: %w", err)
		}
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fund rows: %w", err)
	}
	return funds, nil
}

// GetMember retrieves a member record. Returns ErrNotFound if not exists.
func (l *Ledger) GetMember(ctx context.Context, fundID, memberID string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM fund_members WHERE fund_id = $1 AND member_id = $2`

	m, err := scanMember(l.pool.QueryRow(ctx, query, fundID, memberID))
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers retrieves all members of a fund, ordered by joined_at ASC.
func (l *Ledger) ListMembers(ctx context.Context, fundID string) ([]*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM fund_members
		WHERE fund_id = $1 ORDER BY joined_at ASC, member_id ASC`

	rows, err := l.pool.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member rows: %w", err)
	}
	return members, nil
}

// GetProposal retrieves a proposal by its ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetProposal(ctx context.Context, proposalID string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE proposal_id = $1`

	p, err := scanProposal(l.pool.QueryRow(ctx, query, proposalID))
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// ListProposals retrieves all proposals of a fund, ordered by created_at ASC.
func (l *Ledger) ListProposals(ctx context.Context, fundID string) ([]*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		WHERE fund_id = $1 ORDER BY created_at ASC, proposal_id ASC`

	return l.queryProposals(ctx, query, fundID)
}

// ListProposalsByState retrieves proposals in the given state, ordered by deadline ASC.
func (l *Ledger) ListProposalsByState(ctx context.Context, state domain.ProposalState) ([]*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		WHERE state = $1 ORDER BY deadline ASC, proposal_id ASC`

	return l.queryProposals(ctx, query, string(state))
}

func (l *Ledger) queryProposals(ctx context.Context, query string, args ...any) ([]*domain.Proposal, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal row: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal rows: %w", err)
	}
	return proposals, nil
}

// GetVote retrieves a voter's vote on a proposal. Returns ErrNotFound if not exists.
func (l *Ledger) GetVote(ctx context.Context, proposalID, voterID string) (*domain.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE proposal_id = $1 AND voter_id = $2`

	v, err := scanVote(l.pool.QueryRow(ctx, query, proposalID, voterID))
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return v, nil
}

// ListVotes retrieves all votes on a proposal, ordered by cast_at ASC.
func (l *Ledger) ListVotes(ctx context.Context, proposalID string) ([]*domain.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes
		WHERE proposal_id = $1 ORDER BY cast_at ASC, voter_id ASC`

	return l.queryVotes(ctx, query, proposalID)
}

// ListVotesByVoter retrieves all votes a member cast within a fund.
func (l *Ledger) ListVotesByVoter(ctx context.Context, fundID, voterID string) ([]*domain.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes
		WHERE fund_id = $1 AND voter_id = $2 ORDER BY cast_at ASC, proposal_id ASC`

	return l.queryVotes(ctx, query, fundID, voterID)
}

func (l *Ledger) queryVotes(ctx context.Context, query string, args ...any) ([]*domain.Vote, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []*domain.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote rows: %w", err)
	}
	return votes, nil
}

// ListEntries retrieves all journal entries of a fund, in commit order.
func (l *Ledger) ListEntries(ctx context.Context, fundID string) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE fund_id = $1 ORDER BY seq ASC`

	rows, err := l.pool.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var (
			e    domain.LedgerEntry
			kind string
		)
		err := rows.Scan(
			&e.ID, &e.FundID, &kind, &e.MemberID, &e.ProposalID,
			&e.Amount, &e.SharesDelta, &e.BalanceAfter, &e.SupplyAfter, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}

func scanFund(row pgx.Row) (*domain.Fund, error) {
	var (
		f         domain.Fund
		quorum    string
		windowMs  int64
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&f.ID, &f.Creator, &f.GovernanceMint, &f.Vault,
		&quorum, &windowMs, &f.Config.MinimumDeposit, &status,
		&f.Balance, &f.ShareSupply, &f.TotalDeposited, &f.TotalWithdrawn, &f.TotalExecuted,
		&f.Version, &createdAt, &updatedAt, &f.ArchivedAt, &f.Config.Roster,
	)
	if err != nil {
		return nil, err
	}

	f.Config.QuorumThreshold, err = decimal.NewFromString(quorum)
	if err != nil {
		return nil, fmt.Errorf("parse quorum threshold %q: %w", quorum, err)
	}
	f.Config.VotingWindow = time.Duration(windowMs) * time.Millisecond
	if len(f.Config.Roster) == 0 {
		f.Config.Roster = nil
	}
	f.Status = domain.FundStatus(status)
	f.CreatedAt = createdAt.UTC()
	f.UpdatedAt = updatedAt.UTC()
	if f.ArchivedAt != nil {
		t := f.ArchivedAt.UTC()
		f.ArchivedAt = &t
	}
	return &f, nil
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member

	err := row.Scan(
		&m.FundID, &m.MemberID, &m.Address, &m.Shares, &m.Deposited, &m.Withdrawn,
		&m.ProposalCount, &m.JoinedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.JoinedAt = m.JoinedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var (
		p        domain.Proposal
		snapshot []byte
		state    string
	)

	err := row.Scan(
		&p.ID, &p.FundID, &p.ProposerID, &p.TargetAsset, &p.Amount, &p.Venue,
		&p.CreatedAt, &p.Deadline, &p.SnapshotSupply, &snapshot,
		&p.ForWeight, &p.AgainstWeight, &state, &p.FinalizedAt,
		&p.FilledAmount, &p.ReceivedAsset, &p.ReceivedQuantity, &p.ExecutedAt, &p.FailureReason,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(snapshot, &p.SnapshotBalances); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot balances: %w", err)
	}
	p.State = domain.ProposalState(state)
	p.CreatedAt = p.CreatedAt.UTC()
	p.Deadline = p.Deadline.UTC()
	return &p, nil
}

func scanVote(row pgx.Row) (*domain.Vote, error) {
	var (
		v         domain.Vote
		direction string
	)

	err := row.Scan(&v.ProposalID, &v.FundID, &v.VoterID, &direction, &v.Weight, &v.CastAt)
	if err != nil {
		return nil, err
	}
	v.Direction = domain.Direction(direction)
	v.CastAt = v.CastAt.UTC()
	return &v, nil
}
