package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ExecutionKey computes the deterministic client order id sent to the venue
// with a proposal's trade. Formula: SHA256(fund_id|proposal_id|target_asset|amount),
// hex-encoded (64 characters). A venue that dedupes on it fills a proposal at
// most once even if the request is delivered twice.
func ExecutionKey(fundID, proposalID, targetAsset string, amount uint64) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		fundID,
		proposalID,
		targetAsset,
		amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
