package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// EventKey returns the natural idempotency key of a log event.
// Format: <tx_hash>:<log_index>, tx hash lower-cased.
func EventKey(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(txHash), logIndex)
}

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(kind|tx_hash|log_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(kind string, txHash string, logIndex uint64) string {
	data := fmt.Sprintf("%s|%s|%d",
		kind,
		strings.ToLower(txHash),
		logIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
