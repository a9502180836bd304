package watch

import (
	"fmt"
	"strings"

	"github.com/brojonat/solvent/service/rent"
	"github.com/brojonat/solvent/service/solana"
)

// maxListed caps how many accounts a chat message lists.
const maxListed = 10

// ShortAddress abbreviates a base58 address as "AbCdEf...WxYz".
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func sol4(lamports uint64) string {
	return rent.LamportsToSOL(lamports).StringFixed(4) + " SOL"
}

// FormatAlert renders an alert as a chat message.
func FormatAlert(a *Alert) string {
	var b strings.Builder
	b.WriteString("🔔 **SOLVENT ALERT**\n\n")
	fmt.Fprintf(&b, "**%d new closeable account(s)** detected!\n\n", a.NewCloseable)
	fmt.Fprintf(&b, "📍 Address: `%s`\n", ShortAddress(a.Address))
	if a.Network != "" {
		fmt.Fprintf(&b, "🌐 Network: %s\n", solana.Network(a.Network).Short())
	}
	fmt.Fprintf(&b, "📊 Total Closeable: %d\n", a.CurrentCloseable)
	fmt.Fprintf(&b, "💰 Total Rent: %s\n", sol4(a.TotalLockedLamports))
	if a.ReclaimableGained > 0 {
		fmt.Fprintf(&b, "♻️ +%s now reclaimable\n", sol4(a.ReclaimableGained))
	}
	fmt.Fprintf(&b, "\nRun /scan %s for details", a.Address)
	return b.String()
}

// FormatStatusLine renders the one-line summary printed after each watch scan.
func FormatStatusLine(s Snapshot) string {
	return fmt.Sprintf("[%s] %d closeable, %s reclaimable",
		s.ScannedAt.Local().Format("15:04:05"), s.CloseableCount, sol4(s.ReclaimableLamports))
}

// FormatScan renders a scan report as a chat message.
func FormatScan(report *rent.Report) string {
	var b strings.Builder
	stats := report.Stats
	address := report.FeePayer.String()

	b.WriteString("🧪 **SOLVENT SCAN RESULTS**\n\n")
	fmt.Fprintf(&b, "**Address:** `%s`\n", address)
	fmt.Fprintf(&b, "**Network:** %s\n\n", report.Network.Short())

	b.WriteString("**Statistics:**\n")
	fmt.Fprintf(&b, "├ Total Accounts: **%d**\n", stats.TotalAccounts)
	fmt.Fprintf(&b, "├ Total Rent Locked: **%s**\n", sol4(stats.TotalLocked))
	fmt.Fprintf(&b, "├ Reclaimable Rent: **%s**\n", sol4(stats.Reclaimable))
	fmt.Fprintf(&b, "└ Closeable Accounts: **%d**\n\n", stats.CloseableAccounts)

	closeable := rent.FilterAccounts(report.Accounts, rent.FilterCloseable)
	if len(closeable) > 0 {
		b.WriteString("**Closeable Accounts:**\n")
		for _, acct := range closeable[:min(len(closeable), maxListed)] {
			marker := "👁️"
			if acct.Classification == rent.Reclaimable {
				marker = "♻️"
			}
			fmt.Fprintf(&b, "%s `%s` └ %s\n", marker, acct.Address, sol4(acct.RentLamports))
		}
		if len(closeable) > maxListed {
			fmt.Fprintf(&b, "_...and %d more_\n", len(closeable)-maxListed)
		}
		b.WriteString("\n")
	}

	if stats.ReclaimableAccounts > 0 {
		fmt.Fprintf(&b, "♻️ **Reclaimable:** %d accounts\n", stats.ReclaimableAccounts)
		fmt.Fprintf(&b, "💰 **Potential Savings:** %s\n\n", sol4(stats.Reclaimable))
		fmt.Fprintf(&b, "_Run_ `solvent reclaim %s` _to claim!_", address)
	} else {
		b.WriteString("ℹ️ _No reclaimable accounts at this time._\n")
		b.WriteString("_Accounts whose close authority is not the fee payer are monitor-only._")
	}
	return b.String()
}

// FormatStatus renders the latest snapshots of tracked addresses.
func FormatStatus(snapshots []Snapshot) string {
	if len(snapshots) == 0 {
		return "📭 **No tracked addresses**\n\nUse /track to start monitoring!"
	}

	var b strings.Builder
	b.WriteString("📊 **SOLVENT STATUS**\n\n")

	var totalRent, totalReclaimable uint64
	totalCloseable := 0
	for _, s := range snapshots {
		fmt.Fprintf(&b, "`%s` (%s)\n", ShortAddress(s.Address), solana.Network(s.Network).Short())
		fmt.Fprintf(&b, "  └ %d closeable, %s\n", s.CloseableCount, sol4(s.TotalRentLamports))
		totalRent += s.TotalRentLamports
		totalCloseable += s.CloseableCount
		totalReclaimable += s.ReclaimableLamports
	}

	b.WriteString("\n**Totals:**\n")
	fmt.Fprintf(&b, "├ Tracked Addresses: **%d**\n", len(snapshots))
	fmt.Fprintf(&b, "├ Total Closeable: **%d**\n", totalCloseable)
	fmt.Fprintf(&b, "├ Total Rent Locked: **%s**\n", sol4(totalRent))
	fmt.Fprintf(&b, "└ Reclaimable: **%s**\n", sol4(totalReclaimable))
	return b.String()
}
