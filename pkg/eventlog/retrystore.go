package eventlog

import (
	"context"

	"github.com/flux-framework/flux-core/core/pkg/resilience"
)

// RetryingStore wraps a Store so transport-level failures (a dropped Kafka
// connection, a lock-contended SQLite write) are retried with backoff
// before they ever reach the Appender's OnErr hook. The Appender itself
// never retries a failed commit; that responsibility belongs here, one
// layer below it, per core/pkg/resilience.Retryer.
type RetryingStore struct {
	store   Store
	retryer *resilience.Retryer
}

// NewRetryingStore wraps store with retryer. A nil retryer gets
// resilience.DefaultRetryConfig().
func NewRetryingStore(store Store, retryer *resilience.Retryer) *RetryingStore {
	if retryer == nil {
		retryer = resilience.NewRetryer(resilience.DefaultRetryConfig())
	}
	return &RetryingStore{store: store, retryer: retryer}
}

// AppendBatch retries store.AppendBatch on failure per the wrapped
// Retryer's backoff policy.
func (r *RetryingStore) AppendBatch(ctx context.Context, entries []Entry) error {
	return r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return r.store.AppendBatch(ctx, entries)
	})
}

var _ Store = (*RetryingStore)(nil)
