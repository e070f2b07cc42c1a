// Package memory provides an in-process governance token issuer.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/issuer"
)

type holderKey struct {
	fundID   string
	memberID string
}

// Op names an issuer call for failure injection.
type Op string

const (
	OpMint Op = "mint"
	OpBurn Op = "burn"
)

// Issuer is a thread-safe in-memory mint ledger.
type Issuer struct {
	mu       sync.Mutex
	balances map[holderKey]uint64
	supply   map[string]uint64 // keyed by fund_id
	calls    map[Op]int

	// FailNext, when set, is consulted before each mint/burn. A non-nil
	// return fails the call without changing balances.
	FailNext func(op Op, fundID, memberID string, amount uint64) error
}

// New creates an empty issuer.
func New() *Issuer {
	return &Issuer{
		balances: make(map[holderKey]uint64),
		supply:   make(map[string]uint64),
		calls:    make(map[Op]int),
	}
}

// Compile-time interface check.
var _ issuer.TokenIssuer = (*Issuer)(nil)

// Decimals reports the decimals every governance mint is initialized with.
func (i *Issuer) Decimals() uint8 {
	return domain.GovernanceMintDecimals
}

// Mint implements issuer.TokenIssuer.
func (i *Issuer) Mint(_ context.Context, fundID, memberID string, amount uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls[OpMint]++
	if i.FailNext != nil {
		if err := i.FailNext(OpMint, fundID, memberID, amount); err != nil {
			return err
		}
	}

	if i.supply[fundID] > math.MaxUint64-amount {
		return fmt.Errorf("mint %d shares on fund %s: supply overflow", amount, fundID)
	}
	i.balances[holderKey{fundID, memberID}] += amount
	i.supply[fundID] += amount
	return nil
}

// Burn implements issuer.TokenIssuer.
func (i *Issuer) Burn(_ context.Context, fundID, memberID string, amount uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls[OpBurn]++
	if i.FailNext != nil {
		if err := i.FailNext(OpBurn, fundID, memberID, amount); err != nil {
			return err
		}
	}

	key := holderKey{fundID, memberID}
	if i.balances[key] < amount {
		return fmt.Errorf("burn %d shares from %s: %w", amount, memberID, issuer.ErrInsufficientBalance)
	}
	i.balances[key] -= amount
	i.supply[fundID] -= amount
	return nil
}

// BalanceOf implements issuer.TokenIssuer.
func (i *Issuer) BalanceOf(_ context.Context, fundID, memberID string) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.balances[holderKey{fundID, memberID}], nil
}

// Supply returns the total shares minted on a fund's mint.
func (i *Issuer) Supply(fundID string) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.supply[fundID]
}

// Calls returns how many times op was invoked, failed calls included.
func (i *Issuer) Calls(op Op) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[op]
}

// SetBalance overwrites a holder's balance without touching supply.
// Used to simulate drift between the issuer and the ledger.
func (i *Issuer) SetBalance(fundID, memberID string, amount uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.balances[holderKey{fundID, memberID}] = amount
}
