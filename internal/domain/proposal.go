package domain

import "time"

// ProposalState is a node of the proposal lifecycle.
//
//	PENDING -> VOTING -> APPROVED -> EXECUTED | EXECUTION_FAILED
//	                  -> REJECTED
//	                  -> EXPIRED
type ProposalState string

const (
	ProposalStatePending         ProposalState = "PENDING"
	ProposalStateVoting          ProposalState = "VOTING"
	ProposalStateApproved        ProposalState = "APPROVED"
	ProposalStateRejected        ProposalState = "REJECTED"
	ProposalStateExpired         ProposalState = "EXPIRED"
	ProposalStateExecuted        ProposalState = "EXECUTED"
	ProposalStateExecutionFailed ProposalState = "EXECUTION_FAILED"
)

// String returns the string representation of ProposalState.
func (s ProposalState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s ProposalState) IsTerminal() bool {
	switch s {
	case ProposalStateRejected, ProposalStateExpired, ProposalStateExecuted, ProposalStateExecutionFailed:
		return true
	}
	return false
}

// IsOpen reports whether the proposal still has a claim on fund balance.
func (s ProposalState) IsOpen() bool {
	return s == ProposalStatePending || s == ProposalStateVoting || s == ProposalStateApproved
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s ProposalState) CanTransition(next ProposalState) bool {
	switch s {
	case ProposalStatePending:
		return next == ProposalStateVoting
	case ProposalStateVoting:
		return next == ProposalStateApproved || next == ProposalStateRejected || next == ProposalStateExpired
	case ProposalStateApproved:
		return next == ProposalStateExecuted || next == ProposalStateExecutionFailed
	}
	return false
}

// Proposal is an investment proposal against a fund's pooled balance.
type Proposal struct {
	ID          string // base58 PDA
	FundID      string
	ProposerID  string
	TargetAsset string // asset to acquire
	Amount      uint64 // native units requested
	Venue       string // execution venue
	CreatedAt   time.Time
	Deadline    time.Time

	// Frozen at creation; the denominator for quorum and the ceiling for each voter.
	SnapshotSupply   uint64
	SnapshotBalances map[string]uint64

	ForWeight     uint64
	AgainstWeight uint64
	State         ProposalState
	FinalizedAt   *time.Time

	// Execution outcome
	FilledAmount     uint64
	ReceivedAsset    string
	ReceivedQuantity uint64
	ExecutedAt       *time.Time
	FailureReason    string

	Version int64
}

// SnapshotWeight returns the voter's share balance at proposal creation.
func (p *Proposal) SnapshotWeight(voterID string) uint64 {
	return p.SnapshotBalances[voterID]
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	c := *p
	if p.SnapshotBalances != nil {
		c.SnapshotBalances = make(map[string]uint64, len(p.SnapshotBalances))
		for k, v := range p.SnapshotBalances {
			c.SnapshotBalances[k] = v
		}
	}
	if p.FinalizedAt != nil {
		t := *p.FinalizedAt
		c.FinalizedAt = &t
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}
