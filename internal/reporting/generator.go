// Package reporting renders leaderboard snapshots as Markdown and CSV.
package reporting

import (
	"context"
	"time"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/query"
	"wooswap-indexer/internal/verification"
)

// Generator produces reports from the query service.
type Generator struct {
	query    *query.Service
	verifier *verification.StatsVerifier
	limit    int
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator listing limit rows per board.
func NewGenerator(svc *query.Service, limit int) *Generator {
	return &Generator{
		query: svc,
		limit: query.ClampLimit(limit),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithVerifier adds a data quality section checked against the archive.
func (g *Generator) WithVerifier(v *verification.StatsVerifier) *Generator {
	g.verifier = v
	return g
}

// Generate produces a report. An empty date selects the clock's current UTC day.
func (g *Generator) Generate(ctx context.Context, date string) (*Report, error) {
	now := g.now()
	if date == "" {
		date = now.UTC().Format(aggregate.DateLayout)
	}

	protocol, err := g.query.ProtocolStats(ctx)
	if err != nil {
		return nil, err
	}
	top, err := g.query.TopUsers(ctx, g.limit)
	if err != nil {
		return nil, err
	}
	affection, err := g.query.TopByAffection(ctx, g.limit)
	if err != nil {
		return nil, err
	}
	shame, err := g.query.HallOfShame(ctx, g.limit)
	if err != nil {
		return nil, err
	}
	daily, err := g.query.DailyVolume(ctx, date)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: now,
		Date:        date,
		Protocol:    *protocol,
		TopUsers:    top,
		Affection:   affection,
		HallOfShame: shame,
		DailyVolume: daily,
	}

	if g.verifier != nil {
		quality, err := g.verifier.VerifyAll(ctx)
		if err != nil {
			return nil, err
		}
		report.DataQuality = quality
	}
	return report, nil
}
