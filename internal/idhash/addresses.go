package idhash

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Deriver computes the deterministic addresses of fund accounts.
type Deriver struct {
	programID []byte
}

// NewDeriver creates a Deriver for a base58 program id.
// An empty id selects DefaultProgramID.
func NewDeriver(programID string) (*Deriver, error) {
	if programID == "" {
		programID = DefaultProgramID
	}
	b, err := base58.Decode(programID)
	if err != nil {
		return nil, fmt.Errorf("decode program id: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("program id must decode to 32 bytes, got %d", len(b))
	}
	return &Deriver{programID: b}, nil
}

// MustDeriver is NewDeriver that panics on an invalid program id.
func MustDeriver(programID string) *Deriver {
	d, err := NewDeriver(programID)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Deriver) derive(seeds ...[]byte) (string, error) {
	addr, _, err := FindProgramAddress(d.programID, seeds...)
	if err != nil {
		return "", err
	}
	return base58.Encode(addr), nil
}

// FundAddress derives the fund account from the creator and a caller seed.
// Seeds: ["fund", creator, seed]
func (d *Deriver) FundAddress(creator, fundSeed string) (string, error) {
	return d.derive([]byte("fund"), seed(creator), seed(fundSeed))
}

// VaultAddress derives the vault holding the fund's pooled capital.
// Seeds: ["vault", fund]
func (d *Deriver) VaultAddress(fundID string) (string, error) {
	return d.derive([]byte("vault"), seed(fundID))
}

// MintAddress derives the fund's governance share mint.
// Seeds: ["governance_mint", fund]
func (d *Deriver) MintAddress(fundID string) (string, error) {
	return d.derive([]byte("governance_mint"), seed(fundID))
}

// MemberAddress derives the per-member account of a fund.
// Seeds: ["user_pda", fund, member]
func (d *Deriver) MemberAddress(fundID, memberID string) (string, error) {
	return d.derive([]byte("user_pda"), seed(fundID), seed(memberID))
}

// ProposalAddress derives a proposal account. The proposer's running proposal
// count keeps ids unique across resubmissions.
// Seeds: ["proposal_pda", fund, proposer, count_le]
func (d *Deriver) ProposalAddress(fundID, proposerID string, count uint64) (string, error) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], count)
	return d.derive([]byte("proposal_pda"), seed(fundID), seed(proposerID), n[:])
}
