// Package chain talks to an EVM node over JSON-RPC (HTTP) and log
// subscriptions (WebSocket).
package chain

import "context"

// RPCClient defines the EVM JSON-RPC calls used by the indexer.
type RPCClient interface {
	// BlockNumber returns the current head block.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetLogs returns logs matching filter, in node order.
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)

	// GetBlockTimestamp returns the unix timestamp of block number.
	GetBlockTimestamp(ctx context.Context, number uint64) (int64, error)
}

// WSClient defines the log subscription interface.
type WSClient interface {
	// SubscribeLogs streams logs matching filter until the client closes.
	SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan Log, error)

	// Resubscribed receives a value after a reconnect re-created the
	// subscriptions. Logs emitted while disconnected are not replayed.
	Resubscribed() <-chan struct{}

	// Close closes the connection and every subscription channel.
	Close() error
}
