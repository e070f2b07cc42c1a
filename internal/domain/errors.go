package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Governance error kinds. Operations return them wrapped in *Error.
var (
	ErrInvalidConfig                 = errors.New("invalid fund config")
	ErrInsufficientFundBalance       = errors.New("insufficient fund balance")
	ErrNotAMember                    = errors.New("not a fund member")
	ErrNotEligible                   = errors.New("voter not eligible at snapshot")
	ErrVotingClosed                  = errors.New("voting closed")
	ErrInsufficientShares            = errors.New("insufficient shares")
	ErrWithdrawalBlockedByActiveVote = errors.New("withdrawal blocked by active vote")
	ErrAlreadyExecuted               = errors.New("proposal already executed")
	ErrExecutionFailure              = errors.New("trade execution failed")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBelowMinimumDeposit = errors.New("deposit below fund minimum")
	ErrFundNotFound        = errors.New("fund not found")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrFundArchived        = errors.New("fund archived")
	ErrFundNotEmpty        = errors.New("fund has balance or open proposals")
	ErrNotApproved         = errors.New("proposal not approved")
	ErrInvalidProposal     = errors.New("invalid proposal")
	ErrInvalidDirection    = errors.New("invalid vote direction")
)

// Error carries the context of a failed governance operation.
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Op         string // operation, e.g. "withdraw"
	Kind       error  // one of the Err* kinds above
	FundID     string
	ProposalID string
	MemberID   string
	Amount     uint64
	Err        error // underlying cause, may be nil
}

// NewError builds an *Error for op and kind.
func NewError(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

// Fund sets the fund id.
func (e *Error) Fund(id string) *Error {
	e.FundID = id
	return e
}

// Proposal sets the proposal id.
func (e *Error) Proposal(id string) *Error {
	e.ProposalID = id
	return e
}

// Member sets the member id.
func (e *Error) Member(id string) *Error {
	e.MemberID = id
	return e
}

// WithAmount sets the offending amount.
func (e *Error) WithAmount(amount uint64) *Error {
	e.Amount = amount
	return e
}

// Wrap sets the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.FundID != "" {
		fmt.Fprintf(&b, " fund=%s", e.FundID)
	}
	if e.ProposalID != "" {
		fmt.Fprintf(&b, " proposal=%s", e.ProposalID)
	}
	if e.MemberID != "" {
		fmt.Fprintf(&b, " member=%s", e.MemberID)
	}
	if e.Amount != 0 {
		fmt.Fprintf(&b, " amount=%d", e.Amount)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the governance error kind of err, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
