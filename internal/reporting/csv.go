package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderJournalCSV renders journal entries as CSV string.
func RenderJournalCSV(entries []EntryRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("entry_id,created_at,kind,member_id,proposal_id,amount,shares_delta,balance_after,supply_after\n")

	// Rows
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d,%d,%d\n",
			e.EntryID,
			e.CreatedAt.Format(time.RFC3339),
			e.Kind,
			e.MemberID,
			e.ProposalID,
			e.Amount,
			e.SharesDelta,
			e.BalanceAfter,
			e.SupplyAfter,
		))
	}

	return sb.String()
}

// RenderMembersCSV renders member positions as CSV string.
func RenderMembersCSV(members []MemberRow) string {
	var sb strings.Builder

	sb.WriteString("member_id,address,shares,share_pct,deposited,withdrawn,proposal_count\n")
	for _, m := range members {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%.6f,%d,%d,%d\n",
			m.MemberID,
			m.Address,
			m.Shares,
			m.SharePct,
			m.Deposited,
			m.Withdrawn,
			m.ProposalCount,
		))
	}

	return sb.String()
}
