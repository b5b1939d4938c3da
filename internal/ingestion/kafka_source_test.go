package ingestion

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	close(r.msgs)
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m, ok := <-r.msgs:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func kmsg(partition int, offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "wooswap.events", Partition: partition, Offset: offset, Value: []byte(value)}
}

func TestKafkaSource_CommitsContiguousOffsets(t *testing.T) {
	reader := newFakeReader(
		kmsg(0, 10, swapLine(1, 0, alice, 1, 1704067200)),
		kmsg(0, 11, swapLine(2, 0, bob, 1, 1704067200)),
		kmsg(0, 12, swapLine(3, 0, alice, 1, 1704067200)),
	)
	src := newKafkaSource(reader, "wooswap.events", nil)

	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)
	msgs := collect(t, ch)
	require.Len(t, msgs, 3)

	ctx := context.Background()
	// Out of order: 12 then 10 then 11.
	require.NoError(t, msgs[2].Ack(ctx))
	assert.Empty(t, reader.commits())

	require.NoError(t, msgs[0].Ack(ctx))
	assert.Equal(t, []int64{10}, reader.commits())

	require.NoError(t, msgs[1].Ack(ctx))
	assert.Equal(t, []int64{10, 12}, reader.commits())
}

func TestKafkaSource_AcksUndecodableMessages(t *testing.T) {
	reader := newFakeReader(
		kmsg(1, 0, "not json"),
		kmsg(1, 1, breakUpLine(1, 0, alice)),
	)
	src := newKafkaSource(reader, "wooswap.events", nil)

	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)
	msgs := collect(t, ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, []int64{0}, reader.commits())

	require.NoError(t, msgs[0].Ack(context.Background()))
	assert.Equal(t, []int64{0, 1}, reader.commits())

	require.NoError(t, src.Close())
	assert.True(t, reader.closed)
}

func TestKafkaSource_StopsOnCancel(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message)}
	src := newKafkaSource(reader, "wooswap.events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestCommitTracker_PerPartition(t *testing.T) {
	tr := newCommitTracker()
	tr.fetched(0, 5)
	tr.fetched(1, 7)
	tr.fetched(0, 6)

	_, ok := tr.acked(0, 6)
	assert.False(t, ok)

	upTo, ok := tr.acked(1, 7)
	assert.True(t, ok)
	assert.Equal(t, int64(7), upTo)

	upTo, ok = tr.acked(0, 5)
	assert.True(t, ok)
	assert.Equal(t, int64(6), upTo)

	_, ok = tr.acked(3, 1)
	assert.False(t, ok)
}

func TestNewKafkaSource_Validates(t *testing.T) {
	_, err := NewKafkaSource(KafkaConfig{Topic: "t", GroupID: "g"}, nil)
	assert.Error(t, err)
}
