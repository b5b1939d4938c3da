package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Quantity is an unsigned integer that travels as a 0x-prefixed hex string
// in JSON-RPC payloads.
type Quantity uint64

// String renders q as 0x-hex.
func (q Quantity) String() string {
	return "0x" + strconv.FormatUint(uint64(q), 16)
}

// MarshalJSON implements json.Marshaler.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("quantity must be a hex string: %w", err)
	}
	v, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = Quantity(v)
	return nil
}

// ParseQuantity parses a 0x-prefixed hex quantity.
func ParseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("quantity %q missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return v, nil
}

// Log is an EVM log entry as returned by eth_getLogs and eth_subscribe("logs").
type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     Quantity `json:"blockNumber"`
	BlockHash       string   `json:"blockHash"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        Quantity `json:"logIndex"`
	// Removed is set when the log was dropped by a chain reorganization.
	Removed bool `json:"removed"`
}

// LogFilter selects logs by emitting contract and topics.
// Nil block bounds are omitted, which nodes treat as "latest".
type LogFilter struct {
	Addresses []string
	Topics    [][]string // topic position -> accepted values
	FromBlock *uint64
	ToBlock   *uint64
}

// params renders the filter object shared by eth_getLogs and eth_subscribe.
func (f LogFilter) params() map[string]interface{} {
	p := make(map[string]interface{})
	if len(f.Addresses) > 0 {
		p["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		p["topics"] = f.Topics
	}
	if f.FromBlock != nil {
		p["fromBlock"] = Quantity(*f.FromBlock).String()
	}
	if f.ToBlock != nil {
		p["toBlock"] = Quantity(*f.ToBlock).String()
	}
	return p
}

// Header is the subset of a block header the indexer needs.
type Header struct {
	Number    Quantity `json:"number"`
	Hash      string   `json:"hash"`
	Timestamp Quantity `json:"timestamp"`
}
