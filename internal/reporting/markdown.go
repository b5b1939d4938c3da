package reporting

import (
	"fmt"
	"strings"
	"time"

	"wooswap-indexer/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# WooSwap Leaderboard Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Protocol
	sb.WriteString("## Protocol\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Users | %d |\n", r.Protocol.TotalUsers))
	sb.WriteString(fmt.Sprintf("| Total Breakups | %d |\n", r.Protocol.TotalBreakups))
	sb.WriteString(fmt.Sprintf("| Total Rebates | %s |\n", r.Protocol.TotalRebates.String()))
	sb.WriteString("\n")

	// Top users
	sb.WriteString("## Top Users by Volume\n\n")
	if len(r.TopUsers) > 0 {
		sb.WriteString("| Rank | Address | Volume | Swaps | Affection | Rebates | Breakups |\n")
		sb.WriteString("|------|---------|--------|-------|-----------|---------|----------|\n")
		for _, u := range r.TopUsers {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %d | %s | %d |\n",
				u.Rank, u.Address, u.TotalVolume.String(), u.SwapCount,
				u.CurrentAffection, u.TotalRebates.String(), u.BreakupCount))
		}
	} else {
		sb.WriteString("No swaps indexed.\n")
	}
	sb.WriteString("\n")

	writeBoard(&sb, "Affection", "Affection", r.Affection)
	writeBoard(&sb, "Hall of Shame", "Breakups", r.HallOfShame)

	// Daily volume
	sb.WriteString(fmt.Sprintf("## Daily Volume %s\n\n", r.Date))
	if len(r.DailyVolume) > 0 {
		sb.WriteString("| Address | Volume |\n")
		sb.WriteString("|---------|--------|\n")
		for _, d := range r.DailyVolume {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", d.User, d.Volume.String()))
		}
	} else {
		sb.WriteString("No volume on this date.\n")
	}
	sb.WriteString("\n")

	// Data Quality
	if q := r.DataQuality; q != nil {
		sb.WriteString("## Data Quality\n\n")
		sb.WriteString(fmt.Sprintf("Verified %d users against the event archive: %d matched, %d divergent.\n\n",
			q.TotalUsers, q.MatchedUsers, q.DivergentUsers))
		if len(q.Results) > 0 {
			sb.WriteString("| Address | Field | Stored | Rebuilt |\n")
			sb.WriteString("|---------|-------|--------|---------|\n")
			for _, res := range q.Results {
				for _, d := range res.Divergences {
					sb.WriteString(fmt.Sprintf("| %s | %s | %v | %v |\n", res.Address, d.Field, d.Expected, d.Actual))
				}
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func writeBoard(sb *strings.Builder, title, column string, entries []domain.LeaderboardEntry) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	if len(entries) == 0 {
		sb.WriteString("No entries.\n\n")
		return
	}
	sb.WriteString(fmt.Sprintf("| # | Address | %s |\n", column))
	sb.WriteString("|---|---------|" + strings.Repeat("-", len(column)+2) + "|\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, e.Address, e.Score.String()))
	}
	sb.WriteString("\n")
}
