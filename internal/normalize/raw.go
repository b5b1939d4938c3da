package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RawEvent is an event as delivered by an upstream source, before validation.
//
//	{"event": "BreakUp", "params": {...}, "block": {"timestamp": 1704067200, "number": 42},
//	 "transactionHash": "0x...", "logIndex": 3}
type RawEvent struct {
	Event           string                     `json:"event"`
	Params          map[string]json.RawMessage `json:"params"`
	Block           RawBlock                   `json:"block"`
	TransactionHash string                     `json:"transactionHash"`
	LogIndex        *FlexUint                  `json:"logIndex"`
}

// RawBlock carries the block fields of a RawEvent.
type RawBlock struct {
	Timestamp *FlexUint `json:"timestamp"`
	Number    *FlexUint `json:"number"`
}

// FlexUint is a uint64 that accepts a JSON number, a decimal string or a
// 0x-prefixed hex string.
type FlexUint uint64

// Uint64 returns the value.
func (f FlexUint) Uint64() uint64 { return uint64(f) }

// MarshalJSON implements json.Marshaler.
func (f FlexUint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(f), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexUint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("empty value")
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := parseBig(s)
	if err != nil {
		return err
	}
	if !v.IsUint64() {
		return fmt.Errorf("value %s out of range", s)
	}
	*f = FlexUint(v.Uint64())
	return nil
}

// parseBig parses a non-negative integer in decimal or 0x-hex.
func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", s)
	}
	return v, nil
}
