// Package membership implements the resource-membership monitor: it tracks
// which ranks are online, torpid (slow to heartbeat but not yet declared
// lost) or lost, diffs incoming group snapshots against that state, posts
// the resulting join/leave events to an eventlog.Appender, and services
// the waitup/force-down RPCs on top of pkg/waitqueue.
//
// A Monitor is not safe for concurrent use by more than one goroutine at a
// time for its state-mutating methods (ApplyOnlineSnapshot,
// ApplyTorpidSnapshot, ForceDown); Waitup
// is the exception, since it's expected to be called concurrently by many
// HTTP handlers and only touches the waitqueue, which this package
// protects internally for that one call path.
package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flux-framework/flux-core/core/pkg/contracts"
	"github.com/flux-framework/flux-core/pkg/eventlog"
	"github.com/flux-framework/flux-core/pkg/idset"
	"github.com/flux-framework/flux-core/pkg/waitqueue"
)

// Role reflects whether this Monitor instance is the rank-0 leader (which
// owns the canonical up/torpid/lost state and the event log) or a follower
// (which only observes events, e.g. for a read replica).
type Role int

const (
	RoleFollower Role = iota
	RoleLeader
)

func (r Role) String() string {
	if r == RoleLeader {
		return "leader"
	}
	return "follower"
}

const eventlogPath = "resource.eventlog"

var (
	// ErrNotLeader is returned by mutating operations on a follower Monitor.
	ErrNotLeader = errors.New("membership: not leader")
	// ErrInvalidCardinality is returned by Waitup/ForceDown for an IdSet or
	// count outside [0, size].
	ErrInvalidCardinality = errors.New("membership: invalid cardinality")
	// ErrParse wraps an idset.ParseError surfaced across the RPC boundary.
	ErrParse = errors.New("membership: parse error")
)

// Snapshot is one update delivered by a GroupSource: the full membership
// list for a group, rendered as an IdSet string, as of some point in time.
type Snapshot struct {
	Members string
}

// GroupSource streams Snapshots for a named group (e.g. "broker.online",
// "broker.torpid"). Subscribe's channel is closed when the source can no
// longer deliver updates (transport closed, ctx cancelled); the Monitor
// treats a closed channel as "stop watching this group", not as an error.
type GroupSource interface {
	Subscribe(ctx context.Context, group string) (<-chan Snapshot, error)
}

// Config mirrors spec.md's enumerated configuration inputs.
type Config struct {
	// Size is the number of ranks in the instance (ranks [0, Size)).
	Size uint
	// ForceUp marks every rank online at Start instead of waiting for the
	// first snapshot — used for single-node or test instances with no
	// liveness transport.
	ForceUp bool
	// RecoveryMode makes Start post the restart event without subscribing
	// to the liveness groups. up/torpid/lost are not reconstructed from the
	// event log; they start empty.
	RecoveryMode bool
	// Hostlist is an informational hostname-per-rank string recorded on
	// the restart event; it never affects membership logic.
	Hostlist string
	// SystemdEnable selects which liveness groups Start subscribes to:
	// false watches "broker.online"/"broker.torpid" (the in-broker
	// liveness service), true watches "sdmon.online"/"sdmon.torpid" (the
	// systemd-based sdmon liveness service).
	SystemdEnable bool
}

// onlineGroup and torpidGroup return the liveness group names Start
// subscribes to, per cfg.SystemdEnable.
func (c Config) onlineGroup() string {
	if c.SystemdEnable {
		return "sdmon.online"
	}
	return "broker.online"
}

func (c Config) torpidGroup() string {
	if c.SystemdEnable {
		return "sdmon.torpid"
	}
	return "broker.torpid"
}

// Monitor is the resource-membership state machine for one instance.
type Monitor struct {
	mu sync.Mutex

	role   Role
	cfg    Config
	up     *idset.IdSet
	torpid *idset.IdSet
	lost   *idset.IdSet

	appender *eventlog.Appender
	source   GroupSource
	logger   contracts.Logger

	waitupQ *waitqueue.Waitqueue

	watchCancel context.CancelFunc
}

// New constructs a Monitor. rank determines the Role: rank 0 is leader,
// every other rank is a follower.
func New(rank uint, cfg Config, appender *eventlog.Appender, source GroupSource, logger contracts.Logger) (*Monitor, error) {
	if cfg.Size == 0 {
		return nil, fmt.Errorf("membership: Size must be > 0")
	}
	role := RoleFollower
	if rank == 0 {
		role = RoleLeader
	}
	return &Monitor{
		role:     role,
		cfg:      cfg,
		up:       idset.New(cfg.Size),
		torpid:   idset.New(cfg.Size),
		lost:     idset.New(cfg.Size),
		appender: appender,
		source:   source,
		logger:   logger,
		waitupQ:  waitqueue.New(),
	}, nil
}

// Role reports whether this Monitor is the leader or a follower.
func (m *Monitor) Role() Role { return m.role }

// Start posts the restart event and, unless ForceUp or RecoveryMode is
// set, subscribes to the online/torpid liveness groups (selected by
// cfg.SystemdEnable) and applies every snapshot as it arrives until ctx
// is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	if m.role != RoleLeader {
		return ErrNotLeader
	}

	if err := m.postRestart(ctx); err != nil {
		return err
	}

	if m.cfg.ForceUp {
		m.mu.Lock()
		m.up.RangeSet(0, m.cfg.Size-1)
		m.mu.Unlock()
		return m.postOnline(ctx, m.up)
	}

	if m.cfg.RecoveryMode {
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.watchCancel = cancel
	m.mu.Unlock()

	online, err := m.source.Subscribe(watchCtx, m.cfg.onlineGroup())
	if err != nil {
		cancel()
		return fmt.Errorf("membership: subscribe online: %w", err)
	}
	torpid, err := m.source.Subscribe(watchCtx, m.cfg.torpidGroup())
	if err != nil {
		cancel()
		return fmt.Errorf("membership: subscribe torpid: %w", err)
	}

	go m.watch(watchCtx, online, torpid)
	return nil
}

// Stop cancels any active group subscriptions. It does not flush the
// event log; call appender.Close separately during shutdown.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.watchCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) watch(ctx context.Context, online, torpid <-chan Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-online:
			if !ok {
				online = nil
				continue
			}
			if err := m.ApplyOnlineSnapshot(ctx, snap); err != nil && m.logger != nil {
				m.logger.Error("apply online snapshot", "error", err)
			}
		case snap, ok := <-torpid:
			if !ok {
				torpid = nil
				continue
			}
			if err := m.ApplyTorpidSnapshot(ctx, snap); err != nil && m.logger != nil {
				m.logger.Error("apply torpid snapshot", "error", err)
			}
		}
	}
}

func (m *Monitor) postRestart(ctx context.Context) error {
	all := idset.New(m.cfg.Size)
	all.RangeSet(0, m.cfg.Size-1)

	m.mu.Lock()
	online := m.up.Encode()
	m.mu.Unlock()

	return m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "restart", map[string]string{
		"ranks":    all.Encode(),
		"online":   online,
		"nodelist": m.cfg.Hostlist,
	})
}

// ApplyOnlineSnapshot diffs snap against the current up set: newly online
// ranks are posted as "online" (join), ranks that dropped out are posted
// as "offline" (leave, posted after the join per spec.md's join-before-
// leave ordering), and any satisfied waitup requests are woken.
func (m *Monitor) ApplyOnlineSnapshot(ctx context.Context, snap Snapshot) error {
	if m.role != RoleLeader {
		return ErrNotLeader
	}
	decoded, err := idset.Decode(snap.Members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	next := idset.New(m.cfg.Size)
	next.AddSet(decoded)

	m.mu.Lock()
	joined := idset.Difference(next, m.up)
	left := idset.Difference(m.up, next)
	m.up = next
	m.lost.AddSet(left)
	m.lost.SubtractSet(joined)
	m.mu.Unlock()

	if !joined.IsEmpty() {
		if err := m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "online", map[string]string{
			"idset": joined.Encode(),
		}); err != nil {
			return err
		}
	}
	if !left.IsEmpty() {
		if err := m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "offline", map[string]string{
			"idset": left.Encode(),
		}); err != nil {
			return err
		}
	}
	if !joined.IsEmpty() || !left.IsEmpty() {
		m.notifyWaitup()
	}
	return nil
}

// ApplyTorpidSnapshot diffs snap against the current torpid set, posting
// "lively" (ranks that recovered) then "torpid" (newly slow ranks).
func (m *Monitor) ApplyTorpidSnapshot(ctx context.Context, snap Snapshot) error {
	if m.role != RoleLeader {
		return ErrNotLeader
	}
	next, err := idset.Decode(snap.Members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}

	m.mu.Lock()
	newlyTorpid := idset.Difference(next, m.torpid)
	recovered := idset.Difference(m.torpid, next)
	m.torpid = next
	m.mu.Unlock()

	if !recovered.IsEmpty() {
		if err := m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "lively", map[string]string{
			"idset": recovered.Encode(),
		}); err != nil {
			return err
		}
	}
	if !newlyTorpid.IsEmpty() {
		if err := m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "torpid", map[string]string{
			"idset": newlyTorpid.Encode(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) postOnline(ctx context.Context, ids *idset.IdSet) error {
	if ids.IsEmpty() {
		return nil
	}
	return m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "online", map[string]string{
		"idset": ids.Encode(),
	})
}

// Up returns a snapshot copy of the online set.
func (m *Monitor) Up() *idset.IdSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up.Clone()
}

// Down returns the complement of Up within [0, Size) — ranks considered
// unavailable, computed on demand rather than cached (the monitor has no
// separate "down" state to keep consistent).
func (m *Monitor) Down() *idset.IdSet {
	m.mu.Lock()
	up := m.up.Clone()
	m.mu.Unlock()

	all := idset.New(m.cfg.Size)
	all.RangeSet(0, m.cfg.Size-1)
	return idset.Difference(all, up)
}

// Torpid returns a snapshot copy of the torpid set.
func (m *Monitor) Torpid() *idset.IdSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.torpid.Clone()
}

// Lost returns a snapshot copy of the lost set.
func (m *Monitor) Lost() *idset.IdSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost.Clone()
}

// Size returns the instance size this Monitor was configured with.
func (m *Monitor) Size() uint { return m.cfg.Size }

// ForceDown services resource.monitor-force-down: it removes ranks
// (parsed from an IdSet string) from up/torpid and runs the same
// join/leave posting path ApplyOnlineSnapshot does against (up, up'),
// posting "offline" for whichever of the requested ranks were actually
// online, then wakes any waitup requests the removal satisfies. Ranks
// requested that were never online are not posted and do not enter
// lost — lost only grows by ranks that previously appeared in an
// "online" event.
func (m *Monitor) ForceDown(ctx context.Context, ranks string) error {
	if m.role != RoleLeader {
		return ErrNotLeader
	}
	ids, err := idset.Decode(ranks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if ids.Capacity() > m.cfg.Size {
		return fmt.Errorf("%w: rank beyond instance size %d", ErrInvalidCardinality, m.cfg.Size)
	}

	m.mu.Lock()
	left := idset.Intersect(m.up, ids)
	m.up.SubtractSet(ids)
	m.torpid.SubtractSet(ids)
	m.lost.AddSet(left)
	m.mu.Unlock()

	if !left.IsEmpty() {
		if err := m.appender.Append(ctx, eventlog.FlagWait, eventlogPath, "offline", map[string]string{
			"idset": left.Encode(),
		}); err != nil {
			return err
		}
	}
	m.notifyWaitup()
	return nil
}

// waitupRequest is the Message a pending Waitup call parks on the
// waitqueue; it carries just enough to match itself in notifyWaitup and
// cancellation predicates. It owns no external resource, so Release is a
// no-op — unlike a real wire message, there's nothing to free here.
type waitupRequest struct {
	id   uint64
	want uint
}

func (r *waitupRequest) Release() {}

var waitupIDs atomic.Uint64

func nextWaitupID() uint64 {
	return waitupIDs.Add(1)
}

// Waitup services resource.monitor-waitup: it blocks until exactly want
// ranks are online, or ctx is cancelled. A want equal to the current
// count returns immediately. want must be in [0, Size].
func (m *Monitor) Waitup(ctx context.Context, want uint) error {
	if want > m.cfg.Size {
		return fmt.Errorf("%w: want %d exceeds size %d", ErrInvalidCardinality, want, m.cfg.Size)
	}

	m.mu.Lock()
	if m.up.Count() == want {
		m.mu.Unlock()
		return nil
	}
	id := nextWaitupID()
	req := &waitupRequest{id: id, want: want}
	done := make(chan struct{})
	w := waitqueue.NewWaitMsgHandler(nil, nil, req, nil, func(handle, handler any, msg waitqueue.Message, arg any) {
		close(done)
	})
	m.waitupQ.AddQueue(w)
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		m.waitupQ.DestroyMsg(func(msg waitqueue.Message, arg any) bool {
			wr, ok := msg.(*waitupRequest)
			return ok && wr.id == id
		})
		m.mu.Unlock()
		return ctx.Err()
	}
}

// notifyWaitup fires every pending Waitup request whose target cardinality
// now matches the up count. Called after any change to m.up.
func (m *Monitor) notifyWaitup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.up.Count()
	m.waitupQ.RunMatching(func(msg waitqueue.Message, arg any) bool {
		wr, ok := msg.(*waitupRequest)
		return ok && wr.want == count
	})
}

// PendingWaitups reports how many waitup requests are currently deferred
// (the status endpoint's waitup_pending; pkg/metrics' gauge reads the
// same count through Stats).
func (m *Monitor) PendingWaitups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitupQ.Length()
}

// StatSnapshot is a point-in-time read of the Monitor's gauges, used by
// the cron-driven stats job.
type StatSnapshot struct {
	Up, Torpid, Lost uint
	WaitupPending    int
	At               time.Time
}

// Stats returns a StatSnapshot. The caller supplies 'at' since this
// package never calls time.Now() internally for anything observable
// outside of event timestamps.
func (m *Monitor) Stats(at time.Time) StatSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatSnapshot{
		Up:            m.up.Count(),
		Torpid:        m.torpid.Count(),
		Lost:          m.lost.Count(),
		WaitupPending: m.waitupQ.Length(),
		At:            at,
	}
}
