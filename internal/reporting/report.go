package reporting

import (
	"time"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/verification"
)

// Report is a point-in-time snapshot of the leaderboards.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Date        string // daily volume bucket, YYYY-MM-DD

	Protocol domain.ProtocolStats

	// Leaderboards, highest first with ties broken by address
	TopUsers    []*domain.UserRow
	Affection   []domain.LeaderboardEntry
	HallOfShame []domain.LeaderboardEntry
	DailyVolume []domain.DailyVolume

	// Data Quality, nil when verification was not requested
	DataQuality *verification.VerificationReport
}
