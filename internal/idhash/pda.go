package idhash

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PDA derivation limits, matching the Solana runtime.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// DefaultProgramID is the program id fund addresses are derived under.
const DefaultProgramID = "2Ds7hVhjG5iFyHFs9XioZUJ2i9MsnthnLy16G4HhiJjB"

// ErrNoViableBump is returned when every bump seed yields an on-curve point.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// FindProgramAddress derives an off-curve address from seeds under programID.
// Formula: SHA256(seed_0|...|seed_n|bump|program_id|"ProgramDerivedAddress"),
// searching bump from 255 down to 0 and returning the first off-curve hash.
func FindProgramAddress(programID []byte, seeds ...[]byte) ([]byte, uint8, error) {
	if len(programID) != 32 {
		return nil, 0, fmt.Errorf("program id must be 32 bytes, got %d", len(programID))
	}
	if len(seeds) >= MaxSeeds {
		return nil, 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return nil, 0, fmt.Errorf("seed %d exceeds %d bytes", i, MaxSeedLength)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return sum, uint8(bump), nil
		}
	}
	return nil, 0, ErrNoViableBump
}

// isOnCurve reports whether b decodes to a valid ed25519 point.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// IsOnCurve reports whether the base58 address is a valid ed25519 public key.
func IsOnCurve(address string) bool {
	b, err := base58.Decode(address)
	if err != nil || len(b) != 32 {
		return false
	}
	return isOnCurve(b)
}

// seed turns an identity into PDA seed bytes: base58 public keys are used raw,
// anything else is hashed down to 32 bytes.
func seed(s string) []byte {
	if b, err := base58.Decode(s); err == nil && len(b) == 32 {
		return b
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}
