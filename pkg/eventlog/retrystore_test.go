package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/flux-framework/flux-core/core/pkg/resilience"
)

func TestRetryingStoreRetriesUntilSuccess(t *testing.T) {
	inner := &memStore{failN: 2}
	rs := NewRetryingStore(inner, resilience.NewRetryer(&resilience.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
	}))

	err := rs.AppendBatch(context.Background(), []Entry{{Path: "p", Name: "n"}})
	if err != nil {
		t.Fatalf("AppendBatch() error = %v, want nil after retries", err)
	}
	if len(inner.all()) != 1 {
		t.Fatalf("entries committed = %d, want 1", len(inner.all()))
	}
}

func TestRetryingStoreGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &memStore{failN: 5}
	rs := NewRetryingStore(inner, resilience.NewRetryer(&resilience.RetryConfig{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
	}))

	if err := rs.AppendBatch(context.Background(), []Entry{{Path: "p", Name: "n"}}); err == nil {
		t.Fatalf("AppendBatch() error = nil, want failure after exhausting attempts")
	}
}

func TestRetryingStoreDefaultRetryerOnNil(t *testing.T) {
	inner := &memStore{}
	rs := NewRetryingStore(inner, nil)
	if err := rs.AppendBatch(context.Background(), []Entry{{Path: "p", Name: "n"}}); err != nil {
		t.Fatalf("AppendBatch() error = %v, want nil", err)
	}
}
