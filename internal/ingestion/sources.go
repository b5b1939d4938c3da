package ingestion

import (
	"context"

	"wooswap-indexer/internal/normalize"
)

// Message is one raw event delivered by a Source.
type Message struct {
	Raw *normalize.RawEvent
	// Ack marks the message as fully processed so the source may stop
	// redelivering it. Nil for sources without redelivery.
	Ack func(ctx context.Context) error
}

func (m *Message) ack(ctx context.Context) error {
	if m.Ack == nil {
		return nil
	}
	return m.Ack(ctx)
}

// Source yields raw events. Delivery is at-least-once; the channel is
// closed when the source is exhausted or ctx is cancelled.
type Source interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan *Message, error)
}
