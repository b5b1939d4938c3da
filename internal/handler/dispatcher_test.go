package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wooswap-indexer/internal/aggregate"
	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/kv"
	"wooswap-indexer/internal/kv/memory"
	"wooswap-indexer/internal/storage"
	memarchive "wooswap-indexer/internal/storage/memory"
)

const (
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
)

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *aggregate.Store) {
	t.Helper()
	if opts.Store == nil {
		opts.Store = aggregate.NewStore(memory.NewStore())
	}
	return New(opts), opts.Store
}

func swapEvent(tx string, logIndex uint64, user string, amountIn int64, ts int64) *domain.Event {
	return &domain.Event{
		Kind:        domain.KindSwapExecuted,
		TxHash:      tx,
		LogIndex:    logIndex,
		BlockNumber: 100,
		Timestamp:   ts,
		Swap: &domain.SwapPayload{
			User:         user,
			TokenIn:      "0x1111111111111111111111111111111111111111",
			TokenOut:     "0x2222222222222222222222222222222222222222",
			AmountIn:     decimal.NewFromInt(amountIn),
			AmountOut:    decimal.NewFromInt(amountIn * 2),
			RebateAmount: decimal.NewFromInt(1),
		},
	}
}

func breakUpEvent(tx string, logIndex uint64, user string) *domain.Event {
	return &domain.Event{
		Kind:        domain.KindBreakUp,
		TxHash:      tx,
		LogIndex:    logIndex,
		BlockNumber: 101,
		Timestamp:   1704067300,
		BreakUp:     &domain.BreakUpPayload{User: user, Reason: "rushing swaps"},
	}
}

func TestHandle_SwapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})
	e := swapEvent("0xaaa", 1, alice, 10, 1704067200)

	outcome, err := d.Handle(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	once, err := store.GetStats(ctx, alice)
	require.NoError(t, err)

	outcome, err = d.Handle(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)
	twice, err := store.GetStats(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, once, twice)

	daily, err := store.Ranked(ctx, aggregate.DailyVolumeKey("2024-01-01"), 0, -1)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 10.0, daily[0].Score)
}

func TestHandle_VolumeAccumulation(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	for i, amount := range []int64{10, 20, 30} {
		_, err := d.Handle(ctx, swapEvent(fmt.Sprintf("0x%d", i), 0, alice, amount, 1704067200+int64(i)))
		require.NoError(t, err)
	}

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "60", stats.TotalVolume.String())
	assert.Equal(t, int64(3), stats.SwapCount)
	assert.Equal(t, "3", stats.TotalRebates.String())
	assert.Equal(t, int64(1704067202), stats.LastSwapTime)
	assert.Equal(t, domain.DefaultAffection, stats.CurrentAffection)
}

func TestHandle_LastSwapTimeDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	_, err := d.Handle(ctx, swapEvent("0xnew", 0, alice, 1, 2000))
	require.NoError(t, err)
	_, err = d.Handle(ctx, swapEvent("0xold", 0, alice, 1, 1000))
	require.NoError(t, err)

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), stats.LastSwapTime)
	assert.Equal(t, int64(2), stats.SwapCount)
}

func TestHandle_BreakUpResetsAffection(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	seeded := domain.NewUserStats(alice)
	seeded.CurrentAffection = 7000
	seeded.BreakupCount = 4
	require.NoError(t, store.PutStats(ctx, seeded))

	outcome, err := d.Handle(ctx, breakUpEvent("0xb1", 2, alice))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.CurrentAffection)
	assert.Equal(t, int64(5), stats.BreakupCount)

	shame, err := store.Ranked(ctx, aggregate.KeyBreakupLeaderboard, 0, -1)
	require.NoError(t, err)
	require.Len(t, shame, 1)
	assert.Equal(t, 1.0, shame[0].Score)

	aff, err := store.Ranked(ctx, aggregate.KeyAffectionLeaderboard, 0, -1)
	require.NoError(t, err)
	require.Len(t, aff, 1)
	assert.Equal(t, 0.0, aff[0].Score)

	var rec domain.BreakupRecord
	require.NoError(t, store.GetRecord(ctx, aggregate.RecordKey(domain.KindBreakUp, "0xb1", 2), &rec))
	assert.Equal(t, "rushing swaps", rec.Reason)
}

func TestHandle_DuplicateBreakUpCountsOnce(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	d, store := newTestDispatcher(t, Options{Notifier: notifier})

	for i := 0; i < 3; i++ {
		_, err := d.Handle(ctx, breakUpEvent("0xb1", 0, alice))
		require.NoError(t, err)
	}

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BreakupCount)
	assert.Equal(t, []string{alice}, notifier.users())
}

func TestHandle_RebateTotals(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	rebate := func(tx string, amount int64) *domain.Event {
		return &domain.Event{
			Kind:        domain.KindRebatePaid,
			TxHash:      tx,
			BlockNumber: 5,
			Timestamp:   1704067200,
			Rebate:      &domain.RebatePayload{User: bob, Amount: decimal.NewFromInt(amount), Affection: 9000},
		}
	}

	_, err := d.Handle(ctx, rebate("0xr1", 25))
	require.NoError(t, err)
	_, err = d.Handle(ctx, rebate("0xr2", 75))
	require.NoError(t, err)
	outcome, err := d.Handle(ctx, rebate("0xr2", 75))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)

	total, err := store.TotalRebates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", total.String())

	// RebatePaid never creates UserStats.
	n, err := store.Count(ctx, aggregate.KeyVolumeLeaderboard)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHandle_AffectionKeepsNewest(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	aff := func(block, logIndex uint64, value int64) *domain.Event {
		return &domain.Event{
			Kind:        domain.KindAffectionUpdated,
			TxHash:      fmt.Sprintf("0x%d%d", block, logIndex),
			LogIndex:    logIndex,
			BlockNumber: block,
			Timestamp:   int64(block),
			Affection:   &domain.AffectionPayload{TokenID: "42", NewAffection: value},
		}
	}

	outcome, err := d.Handle(ctx, aff(10, 1, 6000))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = d.Handle(ctx, aff(9, 5, 1000))
	require.NoError(t, err)
	assert.Equal(t, Stale, outcome)

	outcome, err = d.Handle(ctx, aff(10, 1, 6000))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)

	outcome, err = d.Handle(ctx, aff(11, 0, 6500))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	rec, err := store.GetAffection(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(6500), rec.Affection)
	assert.Equal(t, uint64(11), rec.BlockNumber)
}

func TestHandle_ConcurrentSameUserLosesNoUpdates(t *testing.T) {
	ctx := context.Background()
	d, store := newTestDispatcher(t, Options{})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Handle(ctx, swapEvent(fmt.Sprintf("0xc%d", i), 0, alice, 2, 1704067200))
			assert.NoError(t, err)
			// Every event is delivered twice.
			_, err = d.Handle(ctx, swapEvent(fmt.Sprintf("0xc%d", i), 0, alice, 2, 1704067200))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.SwapCount)
	assert.Equal(t, "100", stats.TotalVolume.String())
	assert.Equal(t, 0, d.locks.size())
}

func TestHandle_StoreFailureSurfacesAndRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyKV{Store: memory.NewStore(), failures: 1}
	store := aggregate.NewStore(flaky)
	d, _ := newTestDispatcher(t, Options{Store: store})
	e := swapEvent("0xf1", 0, alice, 10, 1704067200)

	_, err := d.Handle(ctx, e)
	require.Error(t, err)

	outcome, err := d.Handle(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SwapCount)
}

func TestHandle_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	conflicting := &conflictKV{Store: memory.NewStore(), conflicts: 2}
	d, store := newTestDispatcher(t, Options{Store: aggregate.NewStore(conflicting)})

	outcome, err := d.Handle(ctx, swapEvent("0xc1", 0, alice, 10, 1704067200))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	stats, err := store.GetStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SwapCount)
}

func TestHandle_ArchivesAppliedEventsOnly(t *testing.T) {
	ctx := context.Background()
	archive := memarchive.NewEventArchive()
	d, _ := newTestDispatcher(t, Options{Archives: []storage.EventArchive{archive}})

	e := swapEvent("0xa1", 0, alice, 10, 1704067200)
	_, err := d.Handle(ctx, e)
	require.NoError(t, err)
	_, err = d.Handle(ctx, e)
	require.NoError(t, err)

	events, err := archive.GetByUser(ctx, alice, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandle_CancelledContextStillCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, store := newTestDispatcher(t, Options{})

	outcome, err := d.Handle(ctx, swapEvent("0xcc", 0, alice, 10, 1704067200))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	stats, err := store.GetStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SwapCount)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyBreakup(user string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, user)
}

func (n *recordingNotifier) users() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// flakyKV fails the first N updates.
type flakyKV struct {
	*memory.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyKV) Update(ctx context.Context, watch []string, fn func(kv.Tx) error) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return f.Store.Update(ctx, watch, fn)
}

// conflictKV reports a watch conflict for the first N updates.
type conflictKV struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
}

func (c *conflictKV) Update(ctx context.Context, watch []string, fn func(kv.Tx) error) error {
	c.mu.Lock()
	conflict := c.conflicts > 0
	if conflict {
		c.conflicts--
	}
	c.mu.Unlock()
	if conflict {
		return kv.ErrTxConflict
	}
	return c.Store.Update(ctx, watch, fn)
}
