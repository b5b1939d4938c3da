// Package notify posts breakup announcements to the social feed.
// Delivery is best effort: callers enqueue and never wait.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/observability"
)

// Default configuration values.
const (
	DefaultAPIBase         = "https://api.twitter.com/2"
	DefaultTimeout         = 10 * time.Second
	DefaultQueueSize       = 256
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// Options contains configuration for creating a BreakupNotifier.
type Options struct {
	// BearerToken authenticates against the API. Empty disables posting.
	BearerToken     string
	APIBase         string
	HTTPClient      *http.Client
	QueueSize       int
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *logrus.Entry
}

// BreakupNotifier queues breakup announcements and posts them from Run.
type BreakupNotifier struct {
	token           string
	apiBase         string
	client          *http.Client
	queue           chan string
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *logrus.Entry
}

// NewBreakupNotifier creates a notifier. Call Run to start delivery.
func NewBreakupNotifier(opts Options) *BreakupNotifier {
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	initial := opts.InitialInterval
	if initial == 0 {
		initial = DefaultInitialInterval
	}

	maxInterval := opts.MaxInterval
	if maxInterval == 0 {
		maxInterval = DefaultMaxInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "notify")
	}

	n := &BreakupNotifier{
		token:           opts.BearerToken,
		apiBase:         apiBase,
		client:          client,
		queue:           make(chan string, queueSize),
		maxRetries:      maxRetries,
		initialInterval: initial,
		maxInterval:     maxInterval,
		logger:          logger,
	}
	if !n.Enabled() {
		n.logger.Info("Bearer token not configured, breakup notifications disabled")
	}
	return n
}

// Enabled reports whether a bearer token is configured.
func (n *BreakupNotifier) Enabled() bool {
	return n.token != ""
}

// NotifyBreakup enqueues an announcement for user. It never blocks:
// when disabled or when the queue is full the announcement is dropped.
func (n *BreakupNotifier) NotifyBreakup(user string) {
	if !n.Enabled() {
		observability.RecordNotification("disabled")
		n.logger.WithField("user", user).Debug("Notifications disabled, skipping breakup post")
		return
	}

	select {
	case n.queue <- user:
	default:
		observability.RecordNotification("dropped")
		n.logger.WithField("user", user).Warn("Notification queue full, dropping breakup post")
	}
}

// Run delivers queued announcements until ctx is cancelled.
// Announcements still queued at that point are dropped.
func (n *BreakupNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(n.queue); pending > 0 {
				n.logger.WithField("pending", pending).Info("Notifier stopping, dropping queued posts")
			}
			return nil
		case user := <-n.queue:
			n.deliver(ctx, user)
		}
	}
}

func (n *BreakupNotifier) deliver(ctx context.Context, user string) {
	text := FormatBreakupMessage(user)
	log := n.logger.WithField("user", user)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.initialInterval
	b.MaxInterval = n.maxInterval

	err := backoff.RetryNotify(
		func() error { return n.post(ctx, text) },
		backoff.WithContext(backoff.WithMaxRetries(b, n.maxRetries), ctx),
		func(err error, wait time.Duration) {
			log.WithError(err).WithField("retry_in", wait).Debug("Breakup post failed, retrying")
		},
	)
	if err != nil {
		observability.RecordNotification("failed")
		log.WithError(err).Warn("Failed to post breakup notification")
		return
	}

	observability.RecordNotification("sent")
	log.Info("Posted breakup notification")
}

type postRequest struct {
	Text string `json:"text"`
}

// post sends one request. 429 and 5xx are retryable; other failures are permanent.
func (n *BreakupNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(postRequest{Text: text})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal post: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/tweets", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("post rejected: status %d: %s", resp.StatusCode, snippet)
	default:
		return backoff.Permanent(fmt.Errorf("post rejected: status %d: %s", resp.StatusCode, snippet))
	}
}
