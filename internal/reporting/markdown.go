package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a fund statement as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	f := r.Fund

	// Header
	sb.WriteString(fmt.Sprintf("# Fund Statement %s\n\n", f.ID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Status: %s | Members: %d | Proposals: %d\n\n", f.Status, len(r.Members), len(r.Proposals)))

	// Fund summary
	sb.WriteString("## Fund\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Creator | %s |\n", f.Creator))
	sb.WriteString(fmt.Sprintf("| Vault | %s |\n", f.Vault))
	sb.WriteString(fmt.Sprintf("| Governance Mint | %s |\n", f.GovernanceMint))
	sb.WriteString(fmt.Sprintf("| Quorum Threshold | %s |\n", f.QuorumThreshold))
	sb.WriteString(fmt.Sprintf("| Voting Window | %s |\n", f.VotingWindow))
	sb.WriteString(fmt.Sprintf("| Minimum Deposit | %d |\n", f.MinimumDeposit))
	if len(f.Roster) > 0 {
		sb.WriteString(fmt.Sprintf("| Roster | %s |\n", strings.Join(f.Roster, ", ")))
	} else {
		sb.WriteString("| Roster | open |\n")
	}
	sb.WriteString(fmt.Sprintf("| Balance | %d |\n", f.Balance))
	sb.WriteString(fmt.Sprintf("| Share Supply | %d |\n", f.ShareSupply))
	sb.WriteString(fmt.Sprintf("| Total Deposited | %d |\n", f.TotalDeposited))
	sb.WriteString(fmt.Sprintf("| Total Withdrawn | %d |\n", f.TotalWithdrawn))
	sb.WriteString(fmt.Sprintf("| Total Executed | %d |\n", f.TotalExecuted))
	sb.WriteString("\n")
	if f.InvariantError != "" {
		sb.WriteString(fmt.Sprintf("**Balance check failed:** %s\n\n", f.InvariantError))
	} else {
		sb.WriteString("**Balance check passed.**\n\n")
	}

	// Members
	sb.WriteString("## Members\n\n")
	if len(r.Members) > 0 {
		sb.WriteString("| Member | Address | Shares | Share% | Deposited | Withdrawn | Proposals |\n")
		sb.WriteString("|--------|---------|--------|--------|-----------|-----------|-----------|\n")
		for _, m := range r.Members {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %d | %d | %d |\n",
				m.MemberID, m.Address, m.Shares, m.SharePct, m.Deposited, m.Withdrawn, m.ProposalCount))
		}
	} else {
		sb.WriteString("No members.\n")
	}
	sb.WriteString("\n")

	// Proposals
	sb.WriteString("## Proposals\n\n")
	if len(r.Proposals) > 0 {
		sb.WriteString("| Proposal | Proposer | Asset | Amount | State | For | Against | Snapshot | Turnout% | Filled | Deadline |\n")
		sb.WriteString("|----------|----------|-------|--------|-------|-----|---------|----------|----------|--------|----------|\n")
		for _, p := range r.Proposals {
			state := p.State
			if p.FailureReason != "" {
				state = fmt.Sprintf("%s (%s)", p.State, p.FailureReason)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s | %d | %d | %d | %.2f | %d | %s |\n",
				p.ProposalID, p.ProposerID, p.TargetAsset, p.Amount, state,
				p.ForWeight, p.AgainstWeight, p.Snapshot, p.Turnout, p.FilledAmount,
				p.Deadline.Format(time.RFC3339)))
		}
	} else {
		sb.WriteString("No proposals.\n")
	}
	sb.WriteString("\n")

	// Journal
	sb.WriteString("## Journal\n\n")
	if len(r.Entries) > 0 {
		sb.WriteString("| Time | Kind | Member | Proposal | Amount | Shares | Balance | Supply |\n")
		sb.WriteString("|------|------|--------|----------|--------|--------|---------|--------|\n")
		for _, e := range r.Entries {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %+d | %d | %d |\n",
				e.CreatedAt.Format(time.RFC3339), e.Kind, e.MemberID, e.ProposalID,
				e.Amount, e.SharesDelta, e.BalanceAfter, e.SupplyAfter))
		}
	} else {
		sb.WriteString("No journal entries.\n")
	}
	sb.WriteString("\n")

	// Reconciliation
	if r.Reconciled {
		sb.WriteString("## Issuer Reconciliation\n\n")
		if len(r.Mismatches) > 0 {
			sb.WriteString("| Member | Ledger Shares | Issuer Shares |\n")
			sb.WriteString("|--------|---------------|---------------|\n")
			for _, m := range r.Mismatches {
				sb.WriteString(fmt.Sprintf("| %s | %d | %d |\n", m.MemberID, m.LedgerShares, m.IssuerShares))
			}
		} else {
			sb.WriteString("All member shares match the issuer.\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
