package kafkastore

import (
	"context"
	"testing"

	"github.com/IBM/sarama/mocks"

	"github.com/flux-framework/flux-core/pkg/eventlog"
)

func TestAppendBatchPublishesKeyedByPath(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()
	mockProducer.ExpectSendMessageAndSucceed()

	store := &Store{
		producer: mockProducer,
		topicFor: func(path string) string { return "resource.events" },
	}

	entries := []eventlog.Entry{
		{Path: "resource.eventlog", Name: "restart"},
		{Path: "resource.eventlog", Name: "online"},
	}
	if err := store.AppendBatch(context.Background(), entries); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
}

func TestAppendBatchEmptyIsNoop(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	store := &Store{producer: mockProducer, topicFor: func(string) string { return "x" }}
	if err := store.AppendBatch(context.Background(), nil); err != nil {
		t.Fatalf("AppendBatch(nil): %v", err)
	}
}

func TestAppendBatchPropagatesProducerError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(errFakeBroker{})

	store := &Store{producer: mockProducer, topicFor: func(string) string { return "x" }}
	entries := []eventlog.Entry{{Path: "p", Name: "e1"}}
	if err := store.AppendBatch(context.Background(), entries); err == nil {
		t.Fatal("expected error from producer failure")
	}
}

type errFakeBroker struct{}

func (errFakeBroker) Error() string { return "fake broker error" }
