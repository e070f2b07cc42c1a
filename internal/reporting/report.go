package reporting

import "time"

// Report is a fund statement ready for rendering.
type Report struct {
	GeneratedAt time.Time

	Fund FundSummary

	// Members sorted by member id
	Members []MemberRow

	// Proposals sorted by deadline, then id
	Proposals []ProposalRow

	// Journal in commit order
	Entries []EntryRow

	// Members whose ledger shares disagree with the issuer. Nil when
	// reconciliation was not requested.
	Mismatches []MismatchRow
	Reconciled bool
}

// FundSummary holds the fund header of a statement.
type FundSummary struct {
	ID              string
	Creator         string
	Vault           string
	GovernanceMint  string
	Status          string
	QuorumThreshold string
	VotingWindow    time.Duration
	MinimumDeposit  uint64
	Roster          []string // nil for open funds
	Balance         uint64
	ShareSupply     uint64
	TotalDeposited  uint64
	TotalWithdrawn  uint64
	TotalExecuted   uint64
	InvariantError  string // empty when the balance identity holds
}

// MemberRow represents one member position.
type MemberRow struct {
	MemberID      string
	Address       string
	Shares        uint64
	SharePct      float64 // shares / supply * 100, 0 when supply is 0
	Deposited     uint64
	Withdrawn     uint64
	ProposalCount uint64
}

// ProposalRow represents one proposal and its tally.
type ProposalRow struct {
	ProposalID    string
	ProposerID    string
	TargetAsset   string
	Amount        uint64
	State         string
	ForWeight     uint64
	AgainstWeight uint64
	Snapshot      uint64
	Turnout       float64 // (for + against) / snapshot * 100
	FilledAmount  uint64
	FailureReason string
	Deadline      time.Time
}

// EntryRow represents one journal entry.
type EntryRow struct {
	EntryID      string
	Kind         string
	MemberID     string
	ProposalID   string
	Amount       uint64
	SharesDelta  int64
	BalanceAfter uint64
	SupplyAfter  uint64
	CreatedAt    time.Time
}

// MismatchRow is a member whose ledger and issuer share balances differ.
type MismatchRow struct {
	MemberID     string
	LedgerShares uint64
	IssuerShares uint64
}
