package domain

import "time"

// Member is a participant's record within a fund.
type Member struct {
	FundID        string
	MemberID      string // owner identity
	Address       string // member PDA derived from fund and owner
	Shares        uint64 // current voting share balance
	Deposited     uint64 // cumulative deposited amount
	Withdrawn     uint64 // cumulative withdrawn amount
	ProposalCount uint64 // proposals submitted, used as proposal PDA seed
	JoinedAt      time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the member currently holds voting shares.
func (m *Member) IsActive() bool {
	return m.Shares > 0
}

// Clone returns a copy of the member.
func (m *Member) Clone() *Member {
	c := *m
	return &c
}
