package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wooswap-indexer/internal/notify"
)

func TestHandle_BreakUpCommitsWhenNotificationHangs(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	defer close(release)

	notifier := notify.NewBreakupNotifier(notify.Options{
		BearerToken: "secret",
		APIBase:     server.URL,
		HTTPClient:  &http.Client{Timeout: 50 * time.Millisecond},
		MaxRetries:  1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = notifier.Run(ctx) }()

	d, store := newTestDispatcher(t, Options{Notifier: notifier})

	start := time.Now()
	outcome, err := d.Handle(context.Background(), breakUpEvent("0xbb", 0, alice))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	stats, err := store.GetStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BreakupCount)
	assert.Equal(t, int64(0), stats.CurrentAffection)
}

func TestHandle_BreakUpCommitsWhenNotificationDisabled(t *testing.T) {
	notifier := notify.NewBreakupNotifier(notify.Options{})
	d, store := newTestDispatcher(t, Options{Notifier: notifier})

	_, err := d.Handle(context.Background(), breakUpEvent("0xbd", 0, alice))
	require.NoError(t, err)

	stats, err := store.GetStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BreakupCount)
}
