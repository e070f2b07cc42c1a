package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount accepted by the ledger.
// Postgres stores balances as BIGINT, so amounts are capped at MaxInt64.
const MaxAmount = uint64(math.MaxInt64)

// GovernanceMintDecimals matches the decimals the governance mint is initialized with.
const GovernanceMintDecimals = 6

// FundStatus represents the lifecycle status of a fund.
type FundStatus string

const (
	FundStatusActive   FundStatus = "ACTIVE"
	FundStatusArchived FundStatus = "ARCHIVED"
)

// FundConfig holds the governance parameters fixed at fund creation.
type FundConfig struct {
	QuorumThreshold decimal.Decimal // fraction of snapshot supply that must vote FOR, in (0,1]
	VotingWindow    time.Duration   // proposal deadline = creation + window
	MinimumDeposit  uint64          // minimum initial deposit
	Roster          []string        // identities allowed to hold shares; empty means open
}

// Validate checks quorum and voting window bounds and roster entries.
func (c FundConfig) Validate() error {
	if !c.QuorumThreshold.IsPositive() || c.QuorumThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("quorum threshold %s outside (0,1]", c.QuorumThreshold)
	}
	if c.VotingWindow <= 0 {
		return fmt.Errorf("voting window %s must be positive", c.VotingWindow)
	}
	seen := make(map[string]struct{}, len(c.Roster))
	for _, id := range c.Roster {
		if id == "" {
			return fmt.Errorf("roster contains an empty identity")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("roster lists %s twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Admits reports whether memberID may deposit into a fund with this config.
func (c FundConfig) Admits(memberID string) bool {
	if len(c.Roster) == 0 {
		return true
	}
	for _, id := range c.Roster {
		if id == memberID {
			return true
		}
	}
	return false
}

// Fund is the authoritative account state of a pooled fund.
type Fund struct {
	ID             string // base58 PDA
	Creator        string // creator identity
	GovernanceMint string // governance share mint PDA
	Vault          string // vault PDA holding pooled capital
	Config         FundConfig
	Status         FundStatus

	Balance     uint64 // pooled native units
	ShareSupply uint64 // total voting shares outstanding

	// Running totals: Balance == TotalDeposited - TotalWithdrawn - TotalExecuted
	TotalDeposited uint64
	TotalWithdrawn uint64
	TotalExecuted  uint64

	Version    int64 // optimistic concurrency token, bumped on every write
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ArchivedAt *time.Time
}

// IsArchived reports whether the fund no longer accepts mutations.
func (f *Fund) IsArchived() bool {
	return f.Status == FundStatusArchived
}

// CheckInvariant verifies the balance identity of the fund.
func (f *Fund) CheckInvariant() error {
	in := f.TotalDeposited
	out := f.TotalWithdrawn + f.TotalExecuted
	if out > in || in-out != f.Balance {
		return fmt.Errorf("fund %s balance %d does not match deposits %d - withdrawals %d - executed %d",
			f.ID, f.Balance, f.TotalDeposited, f.TotalWithdrawn, f.TotalExecuted)
	}
	return nil
}

// Clone returns a deep copy of the fund.
func (f *Fund) Clone() *Fund {
	c := *f
	if f.Config.Roster != nil {
		c.Config.Roster = append([]string(nil), f.Config.Roster...)
	}
	if f.ArchivedAt != nil {
		t := *f.ArchivedAt
		c.ArchivedAt = &t
	}
	return &c
}
