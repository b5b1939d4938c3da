package ingestion

import (
	"sort"

	"wooswap-indexer/internal/chain"
)

// SortLogs orders logs by (block_number ASC, log_index ASC).
// Log index is unique within a block, so the order is total.
func SortLogs(logs []chain.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		return compareLogs(&logs[i], &logs[j]) < 0
	})
}

// CompactLogs drops repeated (block_number, log_index) positions from
// logs sorted by SortLogs, keeping the first. It returns the number dropped.
func CompactLogs(logs []chain.Log) ([]chain.Log, int) {
	if len(logs) < 2 {
		return logs, 0
	}
	out := logs[:1]
	for i := 1; i < len(logs); i++ {
		if compareLogs(&out[len(out)-1], &logs[i]) == 0 {
			continue
		}
		out = append(out, logs[i])
	}
	return out, len(logs) - len(out)
}

func compareLogs(a, b *chain.Log) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}
