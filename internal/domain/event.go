package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventKind identifies one of the indexed WooSwap contract events.
type EventKind string

const (
	KindSwapExecuted     EventKind = "WooSwapExecuted"
	KindBreakUp          EventKind = "BreakUp"
	KindAffectionUpdated EventKind = "AffectionUpdated"
	KindRebatePaid       EventKind = "RebatePaid"
)

// Valid reports whether k is one of the four known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindSwapExecuted, KindBreakUp, KindAffectionUpdated, KindRebatePaid:
		return true
	}
	return false
}

// Event is a normalized contract event.
// Exactly one payload pointer is non-nil and it matches Kind.
type Event struct {
	Kind        EventKind
	TxHash      string // lower-case 0x-hex
	LogIndex    uint64 // position of the log within the block
	BlockNumber uint64
	Timestamp   int64 // block timestamp, unix seconds

	Swap      *SwapPayload
	BreakUp   *BreakUpPayload
	Affection *AffectionPayload
	Rebate    *RebatePayload
}

// SwapPayload carries WooSwapExecuted parameters. Amounts are in on-chain units.
type SwapPayload struct {
	User         string          `json:"user"`
	TokenIn      string          `json:"tokenIn"`
	TokenOut     string          `json:"tokenOut"`
	AmountIn     decimal.Decimal `json:"amountIn"`
	AmountOut    decimal.Decimal `json:"amountOut"`
	RebateAmount decimal.Decimal `json:"rebateAmount"`
}

// BreakUpPayload carries BreakUp parameters.
type BreakUpPayload struct {
	User   string `json:"user"`
	Reason string `json:"reason"`
}

// AffectionPayload carries AffectionUpdated parameters.
// Affection is tracked per NFT token; there is no token to owner mapping.
type AffectionPayload struct {
	TokenID      string `json:"tokenId"` // uint256 as decimal string
	NewAffection int64  `json:"newAffection"`
}

// RebatePayload carries RebatePaid parameters.
type RebatePayload struct {
	User      string          `json:"user"`
	Amount    decimal.Decimal `json:"amount"`
	Affection int64           `json:"affection"`
}

// User returns the address the event is attributed to, or "" for
// token-keyed events.
func (e *Event) User() string {
	switch e.Kind {
	case KindSwapExecuted:
		return e.Swap.User
	case KindBreakUp:
		return e.BreakUp.User
	case KindRebatePaid:
		return e.Rebate.User
	}
	return ""
}

// Subject returns the key that serializes writes for this event:
// the user address, or "token:<id>" for affection updates.
func (e *Event) Subject() string {
	if e.Kind == KindAffectionUpdated {
		return "token:" + e.Affection.TokenID
	}
	return e.User()
}

// MarshalPayload encodes the kind-specific payload as JSON.
func (e *Event) MarshalPayload() ([]byte, error) {
	var v any
	switch e.Kind {
	case KindSwapExecuted:
		v = e.Swap
	case KindBreakUp:
		v = e.BreakUp
	case KindAffectionUpdated:
		v = e.Affection
	case KindRebatePaid:
		v = e.Rebate
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return json.Marshal(v)
}

// UnmarshalPayload decodes data into the payload field selected by e.Kind.
func (e *Event) UnmarshalPayload(data []byte) error {
	switch e.Kind {
	case KindSwapExecuted:
		e.Swap = &SwapPayload{}
		return json.Unmarshal(data, e.Swap)
	case KindBreakUp:
		e.BreakUp = &BreakUpPayload{}
		return json.Unmarshal(data, e.BreakUp)
	case KindAffectionUpdated:
		e.Affection = &AffectionPayload{}
		return json.Unmarshal(data, e.Affection)
	case KindRebatePaid:
		e.Rebate = &RebatePayload{}
		return json.Unmarshal(data, e.Rebate)
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}
