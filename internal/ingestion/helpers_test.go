package ingestion

import (
	"context"
	"fmt"
	"sync"

	"wooswap-indexer/internal/domain"
	"wooswap-indexer/internal/handler"
	"wooswap-indexer/internal/normalize"
)

const (
	alice = "0x00000000000000000000000000000000000a11ce"
	bob   = "0x0000000000000000000000000000000000000b0b"
	token = "0x000000000000000000000000000000000000000a"
)

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func swapLine(tx, logIndex int, user string, amountIn int, ts int64) string {
	return fmt.Sprintf(`{"event":"WooSwapExecuted","params":{"user":"%s","tokenIn":"%s","tokenOut":"%s","amountIn":"%d","amountOut":"1","rebateAmount":"0"},"block":{"timestamp":%d,"number":%d},"transactionHash":"%s","logIndex":%d}`,
		user, token, token, amountIn, ts, tx, txHash(tx), logIndex)
}

func breakUpLine(tx, logIndex int, user string) string {
	return fmt.Sprintf(`{"event":"BreakUp","params":{"user":"%s","reason":"rushing"},"block":{"timestamp":1704067200,"number":%d},"transactionHash":"%s","logIndex":%d}`,
		user, tx, txHash(tx), logIndex)
}

func mustDecode(line string) *normalize.RawEvent {
	raw, err := normalize.Decode([]byte(line))
	if err != nil {
		panic(err)
	}
	return raw
}

// sliceSource emits fixed messages and closes.
type sliceSource struct {
	msgs   []*Message
	closed bool
	mu     sync.Mutex
}

func (s *sliceSource) Name() string { return "slice" }

func (s *sliceSource) Subscribe(ctx context.Context) (<-chan *Message, error) {
	ch := make(chan *Message, len(s.msgs))
	for _, m := range s.msgs {
		ch <- m
	}
	close(ch)
	return ch, nil
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordingHandler records handled events and can fail the first attempts.
type recordingHandler struct {
	mu       sync.Mutex
	events   []*domain.Event
	failures map[string]int // tx hash -> remaining failures
	attempts int
}

func (h *recordingHandler) Handle(ctx context.Context, e *domain.Event) (handler.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attempts++
	if h.failures[e.TxHash] > 0 {
		h.failures[e.TxHash]--
		return handler.Applied, fmt.Errorf("store unavailable")
	}
	h.events = append(h.events, e)
	return handler.Applied, nil
}

func (h *recordingHandler) handled() []*domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*domain.Event, len(h.events))
	copy(out, h.events)
	return out
}
