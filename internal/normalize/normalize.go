// Package normalize validates raw upstream events and converts them into
// domain events.
package normalize

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"wooswap-indexer/internal/domain"
)

// ErrMalformedEvent is returned for events that can never become valid.
// Callers drop them instead of retrying.
var ErrMalformedEvent = errors.New("malformed event")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// Decode parses one JSON raw event.
func Decode(data []byte) (*RawEvent, error) {
	var raw RawEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("decode json: %v", err)
	}
	return &raw, nil
}

// Normalize validates raw and returns the typed event.
// Addresses and the transaction hash are lower-cased; amounts keep full precision.
func Normalize(raw *RawEvent) (*domain.Event, error) {
	if raw == nil {
		return nil, malformed("nil event")
	}

	kind := domain.EventKind(raw.Event)
	if !kind.Valid() {
		return nil, malformed("unknown event kind %q", raw.Event)
	}

	txHash, err := parseHash(raw.TransactionHash)
	if err != nil {
		return nil, malformed("transactionHash: %v", err)
	}
	if raw.LogIndex == nil {
		return nil, malformed("missing logIndex")
	}
	if raw.Block.Timestamp == nil {
		return nil, malformed("missing block.timestamp")
	}
	if raw.Block.Number == nil {
		return nil, malformed("missing block.number")
	}
	ts := raw.Block.Timestamp.Uint64()
	if ts > 1<<62 {
		return nil, malformed("block.timestamp %d out of range", ts)
	}

	e := &domain.Event{
		Kind:        kind,
		TxHash:      txHash,
		LogIndex:    raw.LogIndex.Uint64(),
		BlockNumber: raw.Block.Number.Uint64(),
		Timestamp:   int64(ts),
	}

	p := params{raw: raw.Params}
	switch kind {
	case domain.KindSwapExecuted:
		e.Swap = &domain.SwapPayload{
			User:         p.address("user"),
			TokenIn:      p.address("tokenIn"),
			TokenOut:     p.address("tokenOut"),
			AmountIn:     p.amount("amountIn"),
			AmountOut:    p.amount("amountOut"),
			RebateAmount: p.amount("rebateAmount"),
		}
	case domain.KindBreakUp:
		e.BreakUp = &domain.BreakUpPayload{
			User:   p.address("user"),
			Reason: p.text("reason"),
		}
	case domain.KindAffectionUpdated:
		e.Affection = &domain.AffectionPayload{
			TokenID:      p.uint256("tokenId"),
			NewAffection: p.affection("newAffection"),
		}
	case domain.KindRebatePaid:
		e.Rebate = &domain.RebatePayload{
			User:      p.address("user"),
			Amount:    p.amount("amount"),
			Affection: p.affection("affection"),
		}
	}
	if p.err != nil {
		return nil, fmt.Errorf("%s %s:%d: %w", kind, txHash, e.LogIndex, p.err)
	}
	return e, nil
}

// params reads typed fields, keeping the first failure.
type params struct {
	raw map[string]json.RawMessage
	err error
}

func (p *params) get(name string) (json.RawMessage, bool) {
	if p.err != nil {
		return nil, false
	}
	v, ok := p.raw[name]
	if !ok || string(bytes.TrimSpace(v)) == "null" {
		p.err = malformed("missing param %q", name)
		return nil, false
	}
	return v, true
}

func (p *params) fail(name string, err error) {
	p.err = malformed("param %q: %v", name, err)
}

func (p *params) address(name string) string {
	v, ok := p.get(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		p.fail(name, err)
		return ""
	}
	addr, err := parseAddress(s)
	if err != nil {
		p.fail(name, err)
		return ""
	}
	return addr
}

func (p *params) text(name string) string {
	v, ok := p.get(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		p.fail(name, err)
	}
	return s
}

// integer accepts a JSON number, a decimal string or a 0x-hex string.
func (p *params) integer(name string) (string, bool) {
	v, ok := p.get(name)
	if !ok {
		return "", false
	}
	s := string(bytes.TrimSpace(v))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(v, &s); err != nil {
			p.fail(name, err)
			return "", false
		}
	}
	n, err := parseBig(s)
	if err != nil {
		p.fail(name, err)
		return "", false
	}
	return n.String(), true
}

func (p *params) amount(name string) decimal.Decimal {
	s, ok := p.integer(name)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail(name, err)
		return decimal.Zero
	}
	return d
}

func (p *params) uint256(name string) string {
	s, _ := p.integer(name)
	return s
}

func (p *params) affection(name string) int64 {
	s, ok := p.integer(name)
	if !ok {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.GreaterThan(decimal.NewFromInt(domain.MaxAffection)) {
		p.fail(name, fmt.Errorf("%s outside [%d, %d]", s, domain.MinAffection, domain.MaxAffection))
		return 0
	}
	return d.IntPart()
}

// Address validates a 0x-prefixed 20-byte address and returns it lower-cased.
func Address(s string) (string, error) {
	return parseAddress(s)
}

func parseAddress(s string) (string, error) {
	return parseHex(s, 20)
}

func parseHash(s string) (string, error) {
	return parseHex(s, 32)
}

// parseHex checks for 0x followed by exactly n bytes of hex and lower-cases it.
func parseHex(s string, n int) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("%q missing 0x prefix", s)
	}
	body := s[2:]
	if len(body) != 2*n {
		return "", fmt.Errorf("%q: want %d hex digits, got %d", s, 2*n, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("%q: %v", s, err)
	}
	return "0x" + strings.ToLower(body), nil
}
