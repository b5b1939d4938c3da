package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"wooswap-indexer/internal/normalize"
	"wooswap-indexer/internal/observability"
)

// KafkaConfig holds Kafka consumer configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// kafkaReader is the subset of *kafka.Reader used by KafkaSource.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes JSON raw events from a topic.
// Offsets are committed only once every earlier message in the same
// partition has been acked, so a crash never skips unprocessed events.
type KafkaSource struct {
	reader  kafkaReader
	topic   string
	tracker *commitTracker
	logger  *logrus.Entry

	// commitMu keeps committed offsets monotonic per partition.
	commitMu sync.Mutex
}

// NewKafkaSource creates a consumer-group reader with manual commits.
func NewKafkaSource(cfg KafkaConfig, logger *logrus.Entry) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka source requires brokers, topic and group id")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaSource(reader, cfg.Topic, logger), nil
}

func newKafkaSource(reader kafkaReader, topic string, logger *logrus.Entry) *KafkaSource {
	if logger == nil {
		logger = logrus.WithField("component", "kafka-source")
	}
	return &KafkaSource{
		reader:  reader,
		topic:   topic,
		tracker: newCommitTracker(),
		logger:  logger.WithField("topic", topic),
	}
}

// Name implements Source.
func (s *KafkaSource) Name() string { return "kafka" }

// Subscribe implements Source.
func (s *KafkaSource) Subscribe(ctx context.Context) (<-chan *Message, error) {
	out := make(chan *Message, 256)

	go func() {
		defer close(out)

		for {
			msg, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				s.logger.WithError(err).Warn("Fetch failed, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			observability.RecordEventReceived(s.Name())
			s.tracker.fetched(msg.Partition, msg.Offset)
			ack := s.acker(msg)

			raw, err := normalize.Decode(msg.Value)
			if err != nil {
				observability.RecordEventDropped("decode")
				s.logger.WithError(err).WithFields(logrus.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("Dropping undecodable message")
				if err := ack(ctx); err != nil {
					s.logger.WithError(err).Warn("Commit failed")
				}
				continue
			}

			select {
			case out <- &Message{Raw: raw, Ack: ack}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// acker returns the Ack func for msg.
func (s *KafkaSource) acker(msg kafka.Message) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		s.commitMu.Lock()
		defer s.commitMu.Unlock()

		upTo, ok := s.tracker.acked(msg.Partition, msg.Offset)
		if !ok {
			return nil
		}
		// The reader commits upTo+1, the next offset to consume.
		return s.reader.CommitMessages(ctx, kafka.Message{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    upTo,
		})
	}
}

// Close closes the underlying reader. Call it after all acks are done.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// commitTracker finds the highest offset per partition below which every
// fetched message has been acked.
type commitTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionState
}

type partitionState struct {
	pending []int64 // fetched, not yet committable, in fetch order
	done    map[int64]bool
}

func newCommitTracker() *commitTracker {
	return &commitTracker{parts: make(map[int]*partitionState)}
}

func (t *commitTracker) fetched(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[partition]
	if !ok {
		p = &partitionState{done: make(map[int64]bool)}
		t.parts[partition] = p
	}
	p.pending = append(p.pending, offset)
}

// acked marks offset done and reports the new commit point, if it moved.
func (t *commitTracker) acked(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[partition]
	if !ok {
		return 0, false
	}
	p.done[offset] = true

	var upTo int64
	moved := false
	for len(p.pending) > 0 && p.done[p.pending[0]] {
		upTo = p.pending[0]
		delete(p.done, upTo)
		p.pending = p.pending[1:]
		moved = true
	}
	return upTo, moved
}
