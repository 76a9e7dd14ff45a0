package membership

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaSource is a GroupSource backed by a Sarama consumer group: each
// membership group name (e.g. "broker.online", "broker.torpid") maps to a Kafka topic
// of the same name, and every message on it is treated as the latest
// full-membership Snapshot for that group (the overlay protocol this
// stands in for is itself snapshot-based, not a diff stream).
type KafkaSource struct {
	client sarama.ConsumerGroup
	group  string
}

// NewKafkaSource dials brokers and joins consumerGroup.
func NewKafkaSource(brokers []string, consumerGroup string) (*KafkaSource, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(brokers, consumerGroup, cfg)
	if err != nil {
		return nil, fmt.Errorf("membership: new consumer group: %w", err)
	}
	return &KafkaSource{client: client, group: consumerGroup}, nil
}

// Subscribe consumes the Kafka topic named by group and republishes every
// message's value (the IdSet string) as a Snapshot.Members.
func (s *KafkaSource) Subscribe(ctx context.Context, group string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 16)
	handler := &snapshotHandler{out: ch}

	go func() {
		defer close(ch)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := s.client.Consume(ctx, []string{group}, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close releases the underlying consumer group client.
func (s *KafkaSource) Close() error {
	return s.client.Close()
}

type snapshotHandler struct {
	out chan<- Snapshot
}

func (h *snapshotHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *snapshotHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *snapshotHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.out <- Snapshot{Members: string(msg.Value)}:
			default:
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

var _ GroupSource = (*KafkaSource)(nil)
