// Package kafkastore implements eventlog.Store on top of IBM/sarama, for
// deployments where the durable log is a Kafka topic rather than a
// database table. Entries are keyed by path so a single-partition
// consumer sees them in append order.
package kafkastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/flux-framework/flux-core/pkg/eventlog"
)

// TopicFunc maps an entry's path to the topic it should be published on.
// The zero value (nil) publishes everything to a single fixed topic,
// supplied via New's defaultTopic parameter.
type TopicFunc func(path string) string

// Store publishes event-log entries to Kafka via a sarama.SyncProducer, so
// AppendBatch only returns once every message in the batch is acknowledged
// (matching the Appender's expectation that a nil error means durably
// committed).
type Store struct {
	producer sarama.SyncProducer
	topicFor TopicFunc
}

// New dials brokers and returns a Store. If topicFor is nil, every entry
// is published to defaultTopic.
func New(brokers []string, defaultTopic string, topicFor TopicFunc) (*Store, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 0 // the Appender's caller owns retry policy, not this Store

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkastore: new sync producer: %w", err)
	}

	if topicFor == nil {
		topicFor = func(string) string { return defaultTopic }
	}
	return &Store{producer: producer, topicFor: topicFor}, nil
}

// AppendBatch publishes entries as a single sarama.SendMessages call, so
// the batch either fully succeeds or returns a sarama.ProducerErrors
// describing which messages failed.
func (s *Store) AppendBatch(ctx context.Context, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, len(entries))
	for i, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("kafkastore: marshal entry %s/%s: %w", e.Path, e.Name, err)
		}
		msgs[i] = &sarama.ProducerMessage{
			Topic: s.topicFor(e.Path),
			Key:   sarama.StringEncoder(e.Path),
			Value: sarama.ByteEncoder(payload),
		}
	}
	if err := s.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafkastore: send %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close releases the underlying producer.
func (s *Store) Close() error {
	return s.producer.Close()
}

var _ eventlog.Store = (*Store)(nil)
