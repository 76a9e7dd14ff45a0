// Package waitqueue implements a reference-counted deferral primitive: a
// Wait is a pending continuation that can be parked on more than one
// Waitqueue at once (use-count tracks how many), and fires exactly once,
// when its use-count reaches zero.
//
// The package takes no locks of its own. Message ownership follows
// broker/memory.Broker's cancellation-triggers-cleanup pattern: a
// destroyed Wait releases its message.
// Like pkg/idset, a Wait/Waitqueue is not safe for concurrent use from more
// than one goroutine; callers serialize access themselves.
package waitqueue

import "fmt"

// Message is something a message-handler Wait owns until it fires or is
// destroyed. Real brokers would back this with a wire message that must be
// freed; here Release is the hook for that cleanup.
type Message interface {
	Release()
}

type callbackKind int

const (
	callbackNone callbackKind = iota
	callbackPlain
	callbackMsgHandler
)

// PlainFunc is a continuation with no associated message.
type PlainFunc func(w *Wait, arg any)

// MsgHandlerFunc is a continuation that owns a Message. handle and handler
// are opaque, caller-supplied context (in flux these would be the broker
// handle and the flux_msg_handler_t*); this package never inspects them.
type MsgHandlerFunc func(handle any, handler any, msg Message, arg any)

// ErrorHookFunc is invoked by AuxSetErrnum for waits that registered one via
// SetErrorHook.
type ErrorHookFunc func(w *Wait, errnum int, arg any)

// Wait is a single deferred continuation. Zero value is not usable; create
// one with NewWaitPlain or NewWaitMsgHandler.
type Wait struct {
	usecount int

	kind      callbackKind
	plainFn   PlainFunc
	plainArg  any
	msgFn     MsgHandlerFunc
	msgHandle any
	msgHandler any
	msg       Message
	msgArg    any

	errHook ErrorHookFunc
	errArg  any

	fired     bool
	destroyed bool
}

// NewWaitPlain creates a Wait whose callback takes no message.
func NewWaitPlain(fn PlainFunc, arg any) *Wait {
	return &Wait{kind: callbackPlain, plainFn: fn, plainArg: arg}
}

// NewWaitMsgHandler creates a Wait that owns msg and fires fn with the
// given handle/handler/arg when its use-count reaches zero.
func NewWaitMsgHandler(handle, handler any, msg Message, arg any, fn MsgHandlerFunc) *Wait {
	return &Wait{
		kind:       callbackMsgHandler,
		msgFn:      fn,
		msgHandle:  handle,
		msgHandler: handler,
		msg:        msg,
		msgArg:     arg,
	}
}

// SetErrorHook registers a callback invoked by AuxSetErrnum.
func (w *Wait) SetErrorHook(fn ErrorHookFunc, arg any) {
	w.errHook = fn
	w.errArg = arg
}

// UseCount returns the number of queues w is currently parked on.
func (w *Wait) UseCount() int { return w.usecount }

// IsMessageBearing reports whether w still owns a message (false once fired
// or destroyed, since both clear the callback).
func (w *Wait) IsMessageBearing() bool {
	return w.kind == callbackMsgHandler
}

func (w *Wait) fire() {
	if w.fired || w.destroyed {
		return
	}
	w.fired = true
	switch w.kind {
	case callbackPlain:
		if w.plainFn != nil {
			w.plainFn(w, w.plainArg)
		}
	case callbackMsgHandler:
		if w.msgFn != nil {
			w.msgFn(w.msgHandle, w.msgHandler, w.msg, w.msgArg)
		}
	}
	w.release()
}

// destroy clears the callback without invoking it, and releases any owned
// message. Used for selective cancellation (DestroyMsg).
func (w *Wait) destroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.release()
}

func (w *Wait) release() {
	if w.kind == callbackMsgHandler && w.msg != nil {
		w.msg.Release()
	}
	w.kind = callbackNone
	w.plainFn = nil
	w.msgFn = nil
	w.msg = nil
}

// AuxSetErrnum invokes w's error hook, if any, with errnum. It does not
// affect use-count or firing; it is an out-of-band signal for callers that
// need to report a failure on a still-pending Wait (e.g. the event log
// appender's err hook surfacing a transport failure to a deferred waitup).
func AuxSetErrnum(w *Wait, errnum int) {
	if w.errHook != nil {
		w.errHook(w, errnum, w.errArg)
	}
}

// entry is a Wait's membership record on one particular queue: it freezes
// whether the Wait looked message-bearing at add-time, since msgsOnQueue
// is this queue's own accounting and is not retroactively adjusted if the
// Wait's callback is cleared by a different queue's DestroyMsg in the
// meantime (the same way flux's msgs_on_queue counter behaves: membership,
// not live callback shape, is what's counted).
type entry struct {
	w            *Wait
	wasMsgBearing bool
}

// Waitqueue holds zero or more Waits, each of which may also be parked on
// other Waitqueues simultaneously.
type Waitqueue struct {
	items       []entry
	msgsOnQueue int
}

// New creates an empty Waitqueue.
func New() *Waitqueue {
	return &Waitqueue{}
}

// AddQueue parks w on q, incrementing w's use-count.
func (q *Waitqueue) AddQueue(w *Wait) {
	bearing := w.kind == callbackMsgHandler
	q.items = append(q.items, entry{w: w, wasMsgBearing: bearing})
	w.usecount++
	if bearing {
		q.msgsOnQueue++
	}
}

// Length returns the number of Waits currently parked on q.
func (q *Waitqueue) Length() int { return len(q.items) }

// MsgsCount returns how many of q's entries were message-bearing Waits at
// add-time.
func (q *Waitqueue) MsgsCount() int { return q.msgsOnQueue }

// Iter calls fn once for every Wait currently on q, in queue order. fn must
// not mutate q; use RunQueue/RunMatching/DestroyMsg for that.
func (q *Waitqueue) Iter(fn func(w *Wait)) {
	for _, e := range q.items {
		fn(e.w)
	}
}

// RunQueue atomically empties q, decrementing every member's use-count and
// firing any whose use-count reaches zero. "Atomically" means the queue's
// item list is swapped out before any callback runs, so a callback that
// re-adds its own Wait to q starts q fresh rather than racing the drain.
func (q *Waitqueue) RunQueue() {
	items := q.items
	q.items = nil
	q.msgsOnQueue = 0
	for _, e := range items {
		w := e.w
		w.usecount--
		if w.usecount <= 0 {
			w.fire()
		}
	}
}

// RunMatching fires (rather than merely discards) the subset of q's
// message-bearing Waits for which predicate returns true, and removes them
// from q. This is the "selective wake" counterpart to DestroyMsg's
// "selective cancel": both walk q's message-bearing entries with a
// predicate, but RunMatching invokes the callback (used when a request's
// condition becomes satisfied) where DestroyMsg suppresses it (used when a
// request is cancelled out from under it). Returns the number of Waits
// matched.
func (q *Waitqueue) RunMatching(predicate func(msg Message, arg any) bool) int {
	return q.selectiveRemove(predicate, true)
}

// DestroyMsg removes and destroys (without firing) every message-bearing
// Wait on q for which predicate returns true. Returns the number of Waits
// matched. This is the general cancellation primitive: a transport layer
// calls it with a predicate matching one disconnected client's pending
// request.
func (q *Waitqueue) DestroyMsg(predicate func(msg Message, arg any) bool) int {
	return q.selectiveRemove(predicate, false)
}

func (q *Waitqueue) selectiveRemove(predicate func(msg Message, arg any) bool, fire bool) int {
	kept := q.items[:0:0]
	matched := 0
	for _, e := range q.items {
		w := e.w
		if e.wasMsgBearing && w.kind == callbackMsgHandler && predicate(w.msg, w.msgArg) {
			matched++
			if e.wasMsgBearing {
				q.msgsOnQueue--
			}
			w.usecount--
			if fire {
				if w.usecount <= 0 {
					w.fire()
				}
			} else {
				w.destroy()
			}
			continue
		}
		kept = append(kept, e)
	}
	q.items = kept
	return matched
}

// String renders a summary useful in logs: length and message count.
func (q *Waitqueue) String() string {
	return fmt.Sprintf("waitqueue(len=%d, msgs=%d)", q.Length(), q.MsgsCount())
}
