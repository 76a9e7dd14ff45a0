// Package eventlog implements a batched, durable append-only event log.
// Entries queued on the same path preserve their append order in the
// underlying Store; the Appender itself never retries a failed commit —
// OnErr reports each failed entry, and a caller that wants retries either
// re-Appends from it or wraps the Store in RetryingStore, which applies
// core/pkg/resilience.Retryer below the Appender.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Flags control how Append/AppendEntry behave.
type Flags int

const (
	// FlagNone batches the entry with whatever else is pending and returns
	// immediately once it is queued.
	FlagNone Flags = 0
	// FlagAsync is an explicit alias for FlagNone's non-blocking behavior,
	// named to match spec callers that want to be explicit about intent.
	FlagAsync Flags = 0
	// FlagWait blocks the caller until the entry's batch has committed (or
	// failed) to the Store.
	FlagWait Flags = 1 << iota
)

// Entry is one event-log record.
type Entry struct {
	Timestamp time.Time
	Path      string
	Name      string
	Context   map[string]string
}

// Store is the durable sink an Appender batches writes into. Commit
// failures are surfaced to the Ops.OnErr hook; Store implementations never
// need their own retry logic.
type Store interface {
	AppendBatch(ctx context.Context, entries []Entry) error
}

// Ops are optional lifecycle hooks.
type Ops struct {
	// OnBusy is called when the first entry of a new batch is queued.
	OnBusy func()
	// OnIdle is called once a batch commits (successfully or not) and no
	// further entries are pending.
	OnIdle func()
	// OnErr is called once per entry in a batch that failed to commit. The
	// Appender does not retry; if the caller wants to, it should re-Append.
	OnErr func(entry Entry, err error)
}

var (
	// ErrClosed is returned by Append/Flush after Close.
	ErrClosed = errors.New("eventlog: appender closed")
)

type pending struct {
	entry Entry
	done  chan error // non-nil only for FlagWait appends
}

// Appender batches Entry writes and flushes them to a Store either when a
// commit-timeout timer fires or when Flush is called explicitly.
type Appender struct {
	mu           sync.Mutex
	store        Store
	batchTimeout time.Duration
	ops          Ops

	queue   []pending
	timer   *time.Timer
	closed  bool
}

// New creates an Appender that batches writes to store for up to
// batchTimeout before committing (0 disables timer-driven batching: every
// Append triggers an immediate commit of whatever else is queued).
func New(store Store, batchTimeout time.Duration, ops Ops) *Appender {
	return &Appender{store: store, batchTimeout: batchTimeout, ops: ops}
}

// SetCommitTimeout adjusts the batch window for subsequent appends.
func (a *Appender) SetCommitTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batchTimeout = d
}

// Append queues name/context as an Entry on path. With FlagWait it blocks
// until the containing batch commits (or fails) and returns that error.
func (a *Appender) Append(ctx context.Context, flags Flags, path, name string, entryCtx map[string]string) error {
	return a.AppendEntry(ctx, flags, path, Entry{
		Timestamp: time.Now(),
		Path:      path,
		Name:      name,
		Context:   entryCtx,
	})
}

// AppendEntry queues a pre-built Entry. Entries queued for the same path
// are delivered to the Store in the order AppendEntry was called,
// regardless of flags.
func (a *Appender) AppendEntry(ctx context.Context, flags Flags, path string, entry Entry) error {
	if entry.Path == "" {
		entry.Path = path
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}

	p := pending{entry: entry}
	wasEmpty := len(a.queue) == 0
	if flags&FlagWait != 0 {
		p.done = make(chan error, 1)
	}
	a.queue = append(a.queue, p)

	if wasEmpty {
		if a.ops.OnBusy != nil {
			a.ops.OnBusy()
		}
		if a.batchTimeout > 0 {
			a.timer = time.AfterFunc(a.batchTimeout, a.flushTimer)
		}
	}
	immediate := a.batchTimeout <= 0
	a.mu.Unlock()

	if immediate {
		a.commit(ctx)
	}

	if p.done == nil {
		return nil
	}
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Appender) flushTimer() {
	a.commit(context.Background())
}

// Flush commits whatever is currently queued, blocking until the commit
// (or failure) completes.
func (a *Appender) Flush(ctx context.Context) error {
	return a.commit(ctx)
}

// commit atomically swaps out the pending queue (mirroring
// waitqueue.Waitqueue.RunQueue's swap-before-fire pattern, so a commit
// triggered from one goroutine never races an Append on another), then
// writes the batch to the Store outside the lock.
func (a *Appender) commit(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	queue := a.queue
	a.queue = nil
	a.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}

	entries := make([]Entry, len(queue))
	for i, p := range queue {
		entries[i] = p.entry
	}

	err := a.store.AppendBatch(ctx, entries)

	if err != nil && a.ops.OnErr != nil {
		for _, e := range entries {
			a.ops.OnErr(e, err)
		}
	}
	for _, p := range queue {
		if p.done != nil {
			p.done <- err
		}
	}

	a.mu.Lock()
	idle := len(a.queue) == 0
	a.mu.Unlock()
	if idle && a.ops.OnIdle != nil {
		a.ops.OnIdle()
	}

	if err != nil {
		return fmt.Errorf("eventlog: commit batch of %d entries: %w", len(entries), err)
	}
	return nil
}

// Close flushes any pending entries and marks the Appender unusable for
// further Append calls.
func (a *Appender) Close(ctx context.Context) error {
	err := a.commit(ctx)
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return err
}
