package fund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-fund-dao/internal/domain"
	"solana-fund-dao/internal/storage"
)

// Load fetches a fund, mapping a missing record to ErrFundNotFound.
func Load(ctx context.Context, store storage.FundStore, op, fundID string) (*domain.Fund, error) {
	f, err := store.GetFund(ctx, fundID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(op, domain.ErrFundNotFound).Fund(fundID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load fund %s: %w", op, fundID, err)
	}
	return f, nil
}

// LoadActive is Load that also rejects archived funds.
func LoadActive(ctx context.Context, store storage.FundStore, op, fundID string) (*domain.Fund, error) {
	f, err := Load(ctx, store, op, fundID)
	if err != nil {
		return nil, err
	}
	if f.IsArchived() {
		return nil, domain.NewError(op, domain.ErrFundArchived).Fund(fundID)
	}
	return f, nil
}

// FinalizeDue applies lazy expiry to the fund's proposals and returns the ones
// whose state changed. The slice is updated in place.
func FinalizeDue(proposals []*domain.Proposal, now time.Time, cfg domain.FundConfig) []*domain.Proposal {
	var changed []*domain.Proposal
	for _, p := range proposals {
		if p.FinalizeIfDue(now, cfg.QuorumThreshold) {
			changed = append(changed, p)
		}
	}
	return changed
}

// HasOpen reports whether any proposal still has a claim on fund balance.
func HasOpen(proposals []*domain.Proposal) bool {
	for _, p := range proposals {
		if p.State.IsOpen() {
			return true
		}
	}
	return false
}
