package domain

import "time"

// EntryKind classifies a ledger journal entry.
type EntryKind string

const (
	EntryKindDeposit    EntryKind = "DEPOSIT"
	EntryKindWithdrawal EntryKind = "WITHDRAWAL"
	EntryKindTrade      EntryKind = "TRADE"
)

// LedgerEntry is an append-only record of a balance-changing operation.
type LedgerEntry struct {
	ID           string // uuid
	FundID       string
	Kind         EntryKind
	MemberID     string // empty for trades
	ProposalID   string // empty for deposits/withdrawals
	Amount       uint64 // native units moved
	SharesDelta  int64  // minted (+) or burned (-) shares
	BalanceAfter uint64
	SupplyAfter  uint64
	CreatedAt    time.Time
}

// BalanceDelta returns the signed effect of the entry on fund balance.
func (e *LedgerEntry) BalanceDelta() int64 {
	if e.Kind == EntryKindDeposit {
		return int64(e.Amount)
	}
	return -int64(e.Amount)
}
