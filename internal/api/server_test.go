package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/kv/memory"
	"wooswap-indexer/internal/query"
	"wooswap-indexer/internal/storage"
	memarchive "wooswap-indexer/internal/storage/memory"
)

var (
	alice = fmt.Sprintf("0x%040x", 0xa11ce)
	bob   = fmt.Sprintf("0x%040x", 0xb0b)
)

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func setupTestServer(t *testing.T, withArchive bool) (*httptest.Server, *handler.Dispatcher) {
	t.Helper()
	kvStore := memory.NewStore()
	store := aggregate.NewStore(kvStore)

	opts := query.Options{Store: store}
	hopts := handler.Options{Store: store}
	if withArchive {
		archive := memarchive.NewEventArchive()
		opts.Archive = archive
		opts.History = archive
		hopts.Archives = []storage.EventArchive{archive}
	}

	s := NewServer(Options{Query: query.New(opts), Health: store})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, handler.New(hopts)
}

func seed(t *testing.T, d *handler.Dispatcher) {
	t.Helper()
	events := []*domain.Event{
		{
			Kind: domain.KindSwapExecuted, TxHash: fmt.Sprintf("0x%064x", 1), BlockNumber: 1, Timestamp: 1704067200,
			Swap: &domain.SwapPayload{User: alice, TokenIn: bob, TokenOut: bob,
				AmountIn: decimal.NewFromInt(100), AmountOut: decimal.NewFromInt(1), RebateAmount: decimal.NewFromInt(2)},
		},
		{
			Kind: domain.KindSwapExecuted, TxHash: fmt.Sprintf("0x%064x", 2), BlockNumber: 2, Timestamp: 1704067200,
			Swap: &domain.SwapPayload{User: bob, TokenIn: alice, TokenOut: alice,
				AmountIn: decimal.NewFromInt(50), AmountOut: decimal.NewFromInt(1), RebateAmount: decimal.Zero},
		},
		{
			Kind: domain.KindBreakUp, TxHash: fmt.Sprintf("0x%064x", 3), BlockNumber: 3, Timestamp: 1704067300,
			BreakUp: &domain.BreakUpPayload{User: bob, Reason: "rushing"},
		},
		{
			Kind: domain.KindAffectionUpdated, TxHash: fmt.Sprintf("0x%064x", 4), BlockNumber: 4, Timestamp: 1704067400,
			Affection: &domain.AffectionPayload{TokenID: "7", NewAffection: 9000},
		},
		{
			Kind: domain.KindRebatePaid, TxHash: fmt.Sprintf("0x%064x", 5), BlockNumber: 5, Timestamp: 1704067500,
			Rebate: &domain.RebatePayload{User: alice, Amount: decimal.NewFromInt(12), Affection: 6000},
		},
	}
	for _, e := range events {
		_, err := d.Handle(context.Background(), e)
		require.NoError(t, err)
	}
}

func get(t *testing.T, ts *httptest.Server, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := setupTestServer(t, false)

	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, ts, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	s := NewServer(Options{Query: query.New(query.Options{}), Health: failingPinger{}})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, ts, "/health", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t, false)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTopUsers(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var rows []map[string]interface{}
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/users/top?limit=1", &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, alice, rows[0]["address"])
	assert.Equal(t, "100", rows[0]["totalVolume"])
	assert.Equal(t, float64(1), rows[0]["rank"])

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/api/v1/users/top?limit=ten", &errBody))
	assert.Contains(t, errBody.Error, "limit")
}

func TestUserStats(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var stats domain.UserStats
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/users/"+bob, &stats))
	assert.Equal(t, int64(1), stats.BreakupCount)
	assert.Equal(t, int64(0), stats.CurrentAffection)

	unseen := fmt.Sprintf("0x%040x", 0xfeed)
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/users/"+unseen, &stats))
	assert.Equal(t, domain.DefaultAffection, stats.CurrentAffection)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/api/v1/users/nobody", &errBody))
	assert.NotEmpty(t, errBody.Error)
}

func TestDailyVolume(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var volumes []domain.DailyVolume
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/volume/daily/2024-01-01", &volumes))
	require.Len(t, volumes, 2)
	assert.Equal(t, alice, volumes[0].User)
	assert.Equal(t, "100", volumes[0].Volume.String())

	assert.Equal(t, http.StatusBadRequest, get(t, ts, "/api/v1/volume/daily/yesterday", nil))
}

func TestLeaderboardEndpoints(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var shame []domain.LeaderboardEntry
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/leaderboard/breakups", &shame))
	require.Len(t, shame, 1)
	assert.Equal(t, bob, shame[0].Address)

	var affection []domain.LeaderboardEntry
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/leaderboard/affection?limit=5", &affection))
	require.Len(t, affection, 2)
	assert.Equal(t, alice, affection[0].Address)
}

func TestTokenAffection(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var rec domain.AffectionRecord
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/tokens/7/affection", &rec))
	assert.Equal(t, int64(9000), rec.Affection)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusNotFound, get(t, ts, "/api/v1/tokens/8/affection", &errBody))
	assert.Equal(t, "not found", errBody.Error)
}

func TestProtocolStats(t *testing.T) {
	ts, d := setupTestServer(t, false)
	seed(t, d)

	var stats domain.ProtocolStats
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/protocol/stats", &stats))
	assert.Equal(t, "12", stats.TotalRebates.String())
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.TotalBreakups)
}

func TestUserEvents(t *testing.T) {
	ts, d := setupTestServer(t, true)
	seed(t, d)

	var events []eventView
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/users/"+alice+"/events", &events))
	require.Len(t, events, 2)
	assert.Equal(t, domain.KindRebatePaid, events[0].Kind)
	assert.Equal(t, domain.KindSwapExecuted, events[1].Kind)
	assert.Contains(t, string(events[1].Params), `"amountIn":"100"`)

	var points []domain.VolumePoint
	require.Equal(t, http.StatusOK, get(t, ts, "/api/v1/users/"+alice+"/volume?from=2024-01-01&to=2024-01-02", &points))
	require.Len(t, points, 1)
	assert.Equal(t, "100", points[0].Volume.String())
}

func TestUserEvents_NoArchive(t *testing.T) {
	ts, _ := setupTestServer(t, false)
	assert.Equal(t, http.StatusNotImplemented, get(t, ts, "/api/v1/users/"+alice+"/events", nil))
}
