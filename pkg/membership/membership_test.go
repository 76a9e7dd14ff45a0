package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flux-framework/flux-core/pkg/eventlog"
)

type memStore struct {
	mu      sync.Mutex
	entries []eventlog.Entry
}

func (m *memStore) AppendBatch(ctx context.Context, entries []eventlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memStore) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Name)
	}
	return out
}

func newTestMonitor(t *testing.T, size uint) (*Monitor, *memStore) {
	t.Helper()
	store := &memStore{}
	appender := eventlog.New(store, 0, eventlog.Ops{})
	mon, err := New(0, Config{Size: size}, appender, NewMemorySource(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mon, store
}

func TestStartPostsRestartEventAndIsLeaderAtRank0(t *testing.T) {
	mon, store := newTestMonitor(t, 4)
	if mon.Role() != RoleLeader {
		t.Fatalf("rank 0 should be leader, got %v", mon.Role())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mon.Stop()

	names := store.names()
	if len(names) == 0 || names[0] != "restart" {
		t.Fatalf("expected restart event first, got %v", names)
	}
}

func TestFollowerRejectsMutation(t *testing.T) {
	store := &memStore{}
	appender := eventlog.New(store, 0, eventlog.Ops{})
	mon, err := New(1, Config{Size: 4}, appender, NewMemorySource(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if mon.Role() != RoleFollower {
		t.Fatalf("rank 1 should be follower")
	}
	if err := mon.ForceDown(context.Background(), "0"); err != ErrNotLeader {
		t.Fatalf("ForceDown on follower: got %v, want ErrNotLeader", err)
	}
}

func TestApplyOnlineSnapshotJoinBeforeLeave(t *testing.T) {
	mon, store := newTestMonitor(t, 4)

	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-1"}); err != nil {
		t.Fatalf("apply snapshot 1: %v", err)
	}
	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "1-2"}); err != nil {
		t.Fatalf("apply snapshot 2: %v", err)
	}

	names := store.names()
	var joinIdx, leaveIdx = -1, -1
	for i, n := range names {
		if n == "online" && joinIdx == -1 {
			joinIdx = i
		}
		if n == "offline" && leaveIdx == -1 {
			leaveIdx = i
		}
	}
	if joinIdx == -1 || leaveIdx == -1 {
		t.Fatalf("expected both online and offline events, got %v", names)
	}
	if joinIdx > leaveIdx {
		t.Fatalf("join (%d) must come before leave (%d) within the same diff", joinIdx, leaveIdx)
	}

	up := mon.Up()
	if up.Encode() != "1-2" {
		t.Fatalf("Up() = %q, want 1-2", up.Encode())
	}
	down := mon.Down()
	if down.Encode() != "0,3" {
		t.Fatalf("Down() = %q, want 0,3", down.Encode())
	}
}

func TestApplyTorpidSnapshotLivelyBeforeTorpid(t *testing.T) {
	mon, store := newTestMonitor(t, 4)

	if err := mon.ApplyTorpidSnapshot(context.Background(), Snapshot{Members: "0"}); err != nil {
		t.Fatalf("apply torpid 1: %v", err)
	}
	before := len(store.names())
	if err := mon.ApplyTorpidSnapshot(context.Background(), Snapshot{Members: "1"}); err != nil {
		t.Fatalf("apply torpid 2: %v", err)
	}

	// Only the second diff posts both events; the first posted "torpid" alone.
	names := store.names()[before:]
	var livelyIdx, torpidIdx = -1, -1
	for i, n := range names {
		if n == "lively" && livelyIdx == -1 {
			livelyIdx = i
		}
		if n == "torpid" && torpidIdx == -1 {
			torpidIdx = i
		}
	}
	if livelyIdx == -1 || torpidIdx == -1 || livelyIdx > torpidIdx {
		t.Fatalf("expected lively before torpid, got %v", names)
	}
	if mon.Torpid().Encode() != "1" {
		t.Fatalf("Torpid() = %q, want 1", mon.Torpid().Encode())
	}
}

func TestForceDownMarksLostAndRemovesFromUpTorpid(t *testing.T) {
	mon, store := newTestMonitor(t, 4)
	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-3"}); err != nil {
		t.Fatalf("apply online: %v", err)
	}
	if err := mon.ApplyTorpidSnapshot(context.Background(), Snapshot{Members: "2"}); err != nil {
		t.Fatalf("apply torpid: %v", err)
	}

	if err := mon.ForceDown(context.Background(), "2"); err != nil {
		t.Fatalf("ForceDown: %v", err)
	}

	if mon.Up().Test(2) {
		t.Fatal("rank 2 should no longer be up")
	}
	if mon.Torpid().Test(2) {
		t.Fatal("rank 2 should no longer be torpid")
	}
	if !mon.Lost().Test(2) {
		t.Fatal("rank 2 should be lost")
	}

	names := store.names()
	if names[len(names)-1] != "offline" {
		t.Fatalf("expected trailing offline event, got %v", names)
	}
}

// TestForceDownIgnoresRanksNeverOnline ensures a force-down of a rank that
// was never observed online does not mark it lost or appear in the posted
// event's idset — lost only grows by ranks that previously appeared in an
// "online" event.
func TestForceDownIgnoresRanksNeverOnline(t *testing.T) {
	mon, store := newTestMonitor(t, 4)
	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-1"}); err != nil {
		t.Fatalf("apply online: %v", err)
	}

	before := len(store.names())
	if err := mon.ForceDown(context.Background(), "0-2"); err != nil {
		t.Fatalf("ForceDown: %v", err)
	}

	if mon.Lost().Encode() != "0-1" {
		t.Fatalf("Lost() = %q, want 0-1 (rank 2 was never online)", mon.Lost().Encode())
	}

	names := store.names()
	if len(names) != before+1 || names[len(names)-1] != "offline" {
		t.Fatalf("expected exactly one trailing offline event, got %v", names)
	}
}

// TestApplyOnlineSnapshotTracksLostAcrossLossAndRejoin exercises
// spec.md's "lost ← (lost ∪ leave) \ join" rule purely via streaming
// snapshot diffs, with no ForceDown involved.
func TestApplyOnlineSnapshotTracksLostAcrossLossAndRejoin(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)

	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-3"}); err != nil {
		t.Fatalf("apply online (all up): %v", err)
	}
	if mon.Lost().IsEmpty() == false {
		t.Fatalf("Lost() = %q, want empty after initial join", mon.Lost().Encode())
	}

	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-2"}); err != nil {
		t.Fatalf("apply online (rank 3 drops): %v", err)
	}
	if mon.Lost().Encode() != "3" {
		t.Fatalf("Lost() = %q, want 3 after node loss", mon.Lost().Encode())
	}

	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-3"}); err != nil {
		t.Fatalf("apply online (rank 3 rejoins): %v", err)
	}
	if !mon.Lost().IsEmpty() {
		t.Fatalf("Lost() = %q, want empty after rejoin", mon.Lost().Encode())
	}
}

func TestWaitupImmediateWhenAlreadySatisfied(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mon.Waitup(ctx, 0); err != nil {
		t.Fatalf("Waitup(0) on empty monitor: %v", err)
	}
}

func TestWaitupWakesOnMatchingCardinality(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- mon.Waitup(ctx, 2)
	}()

	// give the goroutine a chance to register before we satisfy it
	deadline := time.Now().Add(time.Second)
	for mon.PendingWaitups() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if mon.PendingWaitups() != 1 {
		t.Fatalf("PendingWaitups() = %d, want 1 before satisfying", mon.PendingWaitups())
	}

	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-1"}); err != nil {
		t.Fatalf("apply online: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Waitup returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Waitup did not wake after matching cardinality")
	}
	if mon.PendingWaitups() != 0 {
		t.Fatalf("PendingWaitups() = %d after waking, want 0", mon.PendingWaitups())
	}
}

func TestWaitupCancelledOnContextExpiry(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mon.Waitup(ctx, 3)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if mon.PendingWaitups() != 0 {
		t.Fatalf("cancelled waitup should be removed, PendingWaitups() = %d", mon.PendingWaitups())
	}
}

func TestWaitupRejectsCardinalityAboveSize(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)
	if err := mon.Waitup(context.Background(), 5); err == nil {
		t.Fatal("expected ErrInvalidCardinality")
	}
}

func TestStatsReflectsCounts(t *testing.T) {
	mon, _ := newTestMonitor(t, 4)
	if err := mon.ApplyOnlineSnapshot(context.Background(), Snapshot{Members: "0-1"}); err != nil {
		t.Fatalf("apply online: %v", err)
	}
	stats := mon.Stats(time.Unix(0, 0))
	if stats.Up != 2 {
		t.Fatalf("stats.Up = %d, want 2", stats.Up)
	}
}
