package membership

import (
	"context"
	"encoding/json"
	"fmt"

	brokermemory "github.com/flux-framework/flux-core/core/pkg/adapters/broker/memory"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
)

// MemorySource is an in-process GroupSource built directly on the
// teacher's core/pkg/adapters/broker/memory.Broker: a group maps onto a
// broker topic, Subscribe registers a push handler that forwards decoded
// Snapshots onto a channel, and Publish marshals a Snapshot as a
// BrokerMessage body. It exists for tests and for single-process
// deployments with no real overlay transport.
type MemorySource struct {
	broker *brokermemory.Broker
}

// NewMemorySource creates an empty MemorySource, connecting the
// underlying broker immediately so Publish/Subscribe work without a
// separate lifecycle step.
func NewMemorySource() *MemorySource {
	b := brokermemory.New()
	_ = b.Connect(context.Background())
	return &MemorySource{broker: b}
}

// Subscribe returns a channel that receives every Snapshot later passed
// to Publish(group, ...). The channel is closed when ctx is cancelled.
func (s *MemorySource) Subscribe(ctx context.Context, group string) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 16)

	handler := func(_ context.Context, msg *contracts.BrokerMessage) error {
		var snap Snapshot
		if err := json.Unmarshal(msg.Body, &snap); err != nil {
			return fmt.Errorf("memorysource: decode snapshot: %w", err)
		}
		select {
		case ch <- snap:
		default:
		}
		return nil
	}

	if err := s.broker.Subscribe(ctx, group, handler); err != nil {
		return nil, fmt.Errorf("memorysource: subscribe %q: %w", group, err)
	}

	go func() {
		<-ctx.Done()
		_ = s.broker.Unsubscribe(group)
		close(ch)
	}()

	return ch, nil
}

// Publish delivers snap to every current subscriber of group. Delivery is
// best-effort, matching the underlying Broker's fire-and-forget Publish.
func (s *MemorySource) Publish(group string, snap Snapshot) {
	body, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = s.broker.Publish(context.Background(), group, &contracts.BrokerMessage{Body: body})
}

var _ GroupSource = (*MemorySource)(nil)
