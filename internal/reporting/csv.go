package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"

	"wooswap-indexer/internal/domain"
)

// RenderCSV renders the top users table as CSV string.
func RenderCSV(rows []*domain.UserRow) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	if err := w.Write([]string{
		"rank", "address", "total_volume", "swap_count", "current_affection",
		"total_rebates", "last_swap_time", "breakup_count",
	}); err != nil {
		return "", err
	}

	// Rows
	for _, r := range rows {
		if err := w.Write([]string{
			strconv.Itoa(r.Rank),
			r.Address,
			r.TotalVolume.String(),
			strconv.FormatInt(r.SwapCount, 10),
			strconv.FormatInt(r.CurrentAffection, 10),
			r.TotalRebates.String(),
			strconv.FormatInt(r.LastSwapTime, 10),
			strconv.FormatInt(r.BreakupCount, 10),
		}); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
