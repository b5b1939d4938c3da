package domain

import "github.com/shopspring/decimal"

// Affection bounds.
const (
	DefaultAffection int64 = 5000
	MinAffection     int64 = 0
	MaxAffection     int64 = 10000
)

// UserStats is the aggregate record kept per user address.
// Amounts marshal as decimal strings.
type UserStats struct {
	Address          string          `json:"address"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	SwapCount        int64           `json:"swapCount"`
	CurrentAffection int64           `json:"currentAffection"`
	TotalRebates     decimal.Decimal `json:"totalRebates"`
	LastSwapTime     int64           `json:"lastSwapTime"` // unix seconds
	BreakupCount     int64           `json:"breakupCount"`
}

// NewUserStats returns the zero state for an address that has not been seen.
func NewUserStats(address string) *UserStats {
	return &UserStats{
		Address:          address,
		TotalVolume:      decimal.Zero,
		CurrentAffection: DefaultAffection,
		TotalRebates:     decimal.Zero,
	}
}

// UserRow is one row of the top users listing.
type UserRow struct {
	Rank int `json:"rank"`
	UserStats
}

// LeaderboardEntry is an address with its score in a sorted index.
type LeaderboardEntry struct {
	Address string          `json:"address"`
	Score   decimal.Decimal `json:"score"`
}

// DailyVolume is one user's swap volume within a UTC calendar day.
type DailyVolume struct {
	User   string          `json:"user"`
	Volume decimal.Decimal `json:"volume"`
}

// ProtocolStats holds protocol-wide totals.
type ProtocolStats struct {
	TotalRebates  decimal.Decimal `json:"totalRebates"`
	TotalUsers    int64           `json:"totalUsers"`    // cardinality of the volume leaderboard
	TotalBreakups int64           `json:"totalBreakups"` // cardinality of the breakup leaderboard
}

// VolumePoint is per-day swap volume for one user, read from the analytics archive.
type VolumePoint struct {
	Date      string          `json:"date"` // YYYY-MM-DD, UTC
	Volume    decimal.Decimal `json:"volume"`
	SwapCount int64           `json:"swapCount"`
}
