package aggregate

import (
	"time"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/idhash"
)

// Key layout shared with the query side.
const (
	KeyVolumeLeaderboard    = "leaderboard:volume"
	KeyAffectionLeaderboard = "leaderboard:affection"
	KeyBreakupLeaderboard   = "leaderboard:breakups"
	KeyTotalRebates         = "total_rebates"

	// ProtocolMember is the reserved member holding protocol-wide totals.
	ProtocolMember = "protocol"
)

// DateLayout is the layout of daily volume bucket dates.
const DateLayout = "2006-01-02"

// UserKey is the key of a user's stats record.
func UserKey(address string) string {
	return "user:" + address
}

// DailyVolumeKey is the key of the volume bucket for a UTC date.
func DailyVolumeKey(date string) string {
	return "daily_volume:" + date
}

// AffectionKey is the key of a token's affection record.
func AffectionKey(tokenID string) string {
	return "affection:" + tokenID
}

// RecordKey is the key of the immutable record for an event,
// e.g. swap:<tx>:<log>. Affection updates are token-keyed instead.
func RecordKey(kind domain.EventKind, txHash string, logIndex uint64) string {
	var prefix string
	switch kind {
	case domain.KindSwapExecuted:
		prefix = "swap:"
	case domain.KindBreakUp:
		prefix = "breakup:"
	case domain.KindRebatePaid:
		prefix = "rebate:"
	default:
		prefix = "event:"
	}
	return prefix + idhash.EventKey(txHash, logIndex)
}

// DateOf returns the UTC calendar date of a unix timestamp in seconds.
func DateOf(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format(DateLayout)
}
