package domain

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side a vote is cast on.
type Direction string

const (
	DirectionFor     Direction = "FOR"
	DirectionAgainst Direction = "AGAINST"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionFor || d == DirectionAgainst
}

// ParseDirection parses "for"/"against" case-insensitively.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown vote direction %q", s)
	}
	return d, nil
}

// Vote is a member's weighted vote on a proposal.
// At most one vote exists per (ProposalID, VoterID).
type Vote struct {
	ProposalID string
	FundID     string
	VoterID    string
	Direction  Direction
	Weight     uint64 // voter's snapshot balance
	CastAt     time.Time
}
