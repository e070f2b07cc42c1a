package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

func decimalFromUint64(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

// QuorumMet reports whether forWeight reaches quorum of the snapshot supply.
// The comparison is exact: forWeight >= quorum * supply.
func QuorumMet(forWeight, snapshotSupply uint64, quorum decimal.Decimal) bool {
	required := quorum.Mul(decimalFromUint64(snapshotSupply))
	return decimalFromUint64(forWeight).GreaterThanOrEqual(required)
}

// Tally decides the outcome of a vote at its deadline. Quorum with a strict
// FOR majority approves; quorum without one (ties included) rejects; no
// quorum expires.
func Tally(forWeight, againstWeight, snapshotSupply uint64, quorum decimal.Decimal) ProposalState {
	if !QuorumMet(forWeight, snapshotSupply, quorum) {
		return ProposalStateExpired
	}
	if forWeight > againstWeight {
		return ProposalStateApproved
	}
	return ProposalStateRejected
}

// IsDue reports whether a voting proposal has reached its deadline at now.
func (p *Proposal) IsDue(now time.Time) bool {
	return p.State == ProposalStateVoting && !now.Before(p.Deadline)
}

// FinalizeIfDue applies the tally when the deadline has passed and reports
// whether the state changed.
func (p *Proposal) FinalizeIfDue(now time.Time, quorum decimal.Decimal) bool {
	if !p.IsDue(now) {
		return false
	}
	p.State = Tally(p.ForWeight, p.AgainstWeight, p.SnapshotSupply, quorum)
	at := now
	p.FinalizedAt = &at
	return true
}
