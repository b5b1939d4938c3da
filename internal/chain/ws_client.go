package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/observability"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the per-subscription channel capacity.
	BufferSize int
	Logger     *logrus.Entry
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *logrus.Entry

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps node subscription ID to its delivery channel and filter.
	subs   map[string]*subscription
	subsMu sync.RWMutex

	// pendingSubs maps request ID to a subscription awaiting its ID.
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done         chan struct{}
	resubscribed chan struct{}
	wg           sync.WaitGroup

	reconnecting atomic.Bool
}

type subscription struct {
	ch     chan Log
	filter LogFilter
}

// pendingSub is registered under its new ID by the reader goroutine, so
// notifications that follow the confirmation are never missed.
type pendingSub struct {
	sub     *subscription
	replace string // previous subscription ID after a reconnect
	confirm chan string
}

var _ WSClient = (*WSClientImpl)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	def := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "chain-ws")
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[string]*subscription),
		pendingSubs:  make(map[uint64]*pendingSub),
		done:         make(chan struct{}),
		resubscribed: make(chan struct{}, 1),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to logs matching filter.
// The returned channel is closed by Close.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan Log, error) {
	sub := &subscription{ch: make(chan Log, c.config.BufferSize), filter: filter}
	if _, err := c.subscribe(ctx, sub, ""); err != nil {
		return nil, err
	}
	return sub.ch, nil
}

// subscribe sends eth_subscribe for sub and waits until it is registered.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *subscription, replace string) (string, error) {
	if c.closed.Load() {
		return "", fmt.Errorf("client closed")
	}

	// Subscriptions always follow the head; block bounds are not accepted.
	live := sub.filter
	live.FromBlock, live.ToBlock = nil, nil

	reqID := c.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", live.params()},
	}

	confirmCh := make(chan string, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{sub: sub, replace: replace, confirm: confirmCh}
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return "", fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		forget()
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return "", fmt.Errorf("client closed")
		}
		return subID, nil
	case <-timer.C:
		forget()
		return "", fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return "", fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	}
}

// Resubscribed implements WSClient.
func (c *WSClientImpl) Resubscribed() <-chan struct{} {
	return c.resubscribed
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages and dispatches them to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.logger.WithError(err).WithField("retry_in", reconnectDelay).Warn("WebSocket read failed, reconnecting")
				go c.reconnect(conn, reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect replaces the broken connection and resubscribes.
func (c *WSClientImpl) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn == broken && c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.WithError(err).Warn("Reconnect failed")
		return
	}
	observability.RecordWSReconnect()

	// resubscribe waits on confirmations delivered by readLoop, so it must
	// not run on the reader goroutine.
	c.resubscribeAll()
}

// resubscribeAll re-creates every subscription on the new connection and
// moves its channel to the new subscription ID.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[string]*subscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.RUnlock()

	resumed := false
	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, sub, oldID)
		cancel()

		if err != nil {
			c.logger.WithError(err).WithField("subscription", oldID).Warn("Resubscribe failed")
			continue
		}
		resumed = true
		c.logger.WithFields(logrus.Fields{"old": oldID, "new": newID}).Info("Resubscribed")
	}

	if resumed {
		select {
		case c.resubscribed <- struct{}{}:
		default:
		}
	}
}

// wsMessage covers subscribe responses, errors and notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *wsNotifyParams `json:"params"`
}

type wsNotifyParams struct {
	Subscription string `json:"subscription"`
	Result       Log    `json:"result"`
}

func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.WithError(err).Debug("Ignoring undecodable WebSocket message")
		return
	}

	switch {
	case msg.Method == "eth_subscription" && msg.Params != nil:
		c.handleLogNotification(msg.Params)
	case msg.Error != nil:
		// The pending subscribe, if any, times out.
		c.logger.WithFields(logrus.Fields{
			"id":      msg.ID,
			"code":    msg.Error.Code,
			"message": msg.Error.Message,
		}).Warn("Node returned error")
	case msg.ID != 0 && len(msg.Result) > 0:
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.handleSubscribeResponse(msg.ID, subID)
	}
}

func (c *WSClientImpl) handleSubscribeResponse(reqID uint64, subID string) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[reqID]
	if ok {
		delete(c.pendingSubs, reqID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	if p.replace != "" {
		delete(c.subs, p.replace)
	}
	c.subs[subID] = p.sub
	c.subsMu.Unlock()

	p.confirm <- subID
}

// handleLogNotification blocks until the subscriber takes the log so that
// no log is dropped.
func (c *WSClientImpl) handleLogNotification(params *wsNotifyParams) {
	c.subsMu.RLock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if !ok {
		return
	}
	select {
	case sub.ch <- params.Result:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
