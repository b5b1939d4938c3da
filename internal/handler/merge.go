package handler

import "wooswap-indexer/internal/domain"

// applySwap folds a swap into stats.
// lastSwapTime only moves forward so replayed older swaps cannot regress it.
func applySwap(stats *domain.UserStats, p *domain.SwapPayload, timestamp int64) {
	stats.TotalVolume = stats.TotalVolume.Add(p.AmountIn)
	stats.SwapCount++
	stats.TotalRebates = stats.TotalRebates.Add(p.RebateAmount)
	if timestamp > stats.LastSwapTime {
		stats.LastSwapTime = timestamp
	}
}

// applyBreakUp zeroes affection and counts the breakup.
func applyBreakUp(stats *domain.UserStats) {
	stats.BreakupCount++
	stats.CurrentAffection = domain.MinAffection
}
