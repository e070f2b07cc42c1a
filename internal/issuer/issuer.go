// Package issuer defines the governance token issuer the fund manager mints
// and burns voting shares through.
package issuer

import (
	"context"
	"errors"
)

// ErrInsufficientBalance is returned by Burn when the holder has fewer shares.
var ErrInsufficientBalance = errors.New("insufficient share balance")

// TokenIssuer mints and burns governance shares of a fund's mint.
// Amounts are in share base units (1 native unit = 1 share).
type TokenIssuer interface {
	// Mint credits amount shares of the fund's mint to the member.
	Mint(ctx context.Context, fundID, memberID string, amount uint64) error

	// Burn debits amount shares from the member. Returns ErrInsufficientBalance
	// if the member holds fewer.
	Burn(ctx context.Context, fundID, memberID string, amount uint64) error

	// BalanceOf returns the member's share balance on the fund's mint.
	BalanceOf(ctx context.Context, fundID, memberID string) (uint64, error)
}
