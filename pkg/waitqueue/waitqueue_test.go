package waitqueue

import "testing"

type fakeMsg struct {
	id       string
	released bool
}

func (m *fakeMsg) Release() { m.released = true }

func TestPlainCallbackFiresOnceUseCountZero(t *testing.T) {
	q1 := New()
	q2 := New()

	fired := 0
	w := NewWaitPlain(func(w *Wait, arg any) { fired++ }, nil)

	q1.AddQueue(w)
	q2.AddQueue(w)
	if w.UseCount() != 2 {
		t.Fatalf("UseCount() = %d, want 2", w.UseCount())
	}

	q1.RunQueue()
	if fired != 0 {
		t.Fatalf("fired = %d after first runqueue, want 0", fired)
	}
	if w.UseCount() != 1 {
		t.Fatalf("UseCount() = %d, want 1", w.UseCount())
	}

	q2.RunQueue()
	if fired != 1 {
		t.Fatalf("fired = %d after second runqueue, want 1", fired)
	}
}

func TestMsgHandlerDestroyMsgSuppressesFire(t *testing.T) {
	q1 := New()
	q2 := New()

	fired := 0
	msg := &fakeMsg{id: "req-1"}
	w := NewWaitMsgHandler(nil, nil, msg, nil, func(handle, handler any, m Message, arg any) {
		fired++
	})

	q1.AddQueue(w)
	q2.AddQueue(w)
	if q1.MsgsCount() != 1 || q2.MsgsCount() != 1 {
		t.Fatalf("expected both queues to count 1 message-bearing wait")
	}

	n := q1.DestroyMsg(func(m Message, arg any) bool { return true })
	if n != 1 {
		t.Fatalf("DestroyMsg matched = %d, want 1", n)
	}
	if q1.Length() != 0 {
		t.Fatalf("q1 should be empty after destroy, got len %d", q1.Length())
	}
	if !msg.released {
		t.Fatal("expected message Release() to be called on destroy")
	}

	q2.RunQueue()
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 (destroyed wait must never fire)", fired)
	}
}

func TestRunMatchingFiresSelectively(t *testing.T) {
	q := New()

	var firedIDs []string
	mk := func(id string) *Wait {
		msg := &fakeMsg{id: id}
		return NewWaitMsgHandler(nil, nil, msg, nil, func(handle, handler any, m Message, arg any) {
			firedIDs = append(firedIDs, m.(*fakeMsg).id)
		})
	}

	w1, w2, w3 := mk("a"), mk("b"), mk("c")
	q.AddQueue(w1)
	q.AddQueue(w2)
	q.AddQueue(w3)

	n := q.RunMatching(func(m Message, arg any) bool {
		return m.(*fakeMsg).id != "b"
	})
	if n != 2 {
		t.Fatalf("RunMatching matched = %d, want 2", n)
	}
	if len(firedIDs) != 2 {
		t.Fatalf("fired %v, want 2 entries", firedIDs)
	}
	if q.Length() != 1 {
		t.Fatalf("q.Length() = %d, want 1 (only b remains)", q.Length())
	}
	if q.MsgsCount() != 1 {
		t.Fatalf("q.MsgsCount() = %d, want 1", q.MsgsCount())
	}
}

func TestIterDoesNotMutate(t *testing.T) {
	q := New()
	w := NewWaitPlain(func(w *Wait, arg any) {}, nil)
	q.AddQueue(w)

	seen := 0
	q.Iter(func(w *Wait) { seen++ })
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
	if q.Length() != 1 {
		t.Fatalf("Iter must not remove entries, Length() = %d", q.Length())
	}
}

func TestErrorHookInvokedByAuxSetErrnum(t *testing.T) {
	w := NewWaitPlain(func(w *Wait, arg any) {}, nil)

	var gotErrno int
	var gotArg any
	w.SetErrorHook(func(w *Wait, errnum int, arg any) {
		gotErrno = errnum
		gotArg = arg
	}, "ctx")

	AuxSetErrnum(w, 42)
	if gotErrno != 42 || gotArg != "ctx" {
		t.Fatalf("error hook got (%d, %v), want (42, ctx)", gotErrno, gotArg)
	}
}

func TestRunQueueEmptiesAndResetsMsgsCount(t *testing.T) {
	q := New()
	msg := &fakeMsg{id: "x"}
	w := NewWaitMsgHandler(nil, nil, msg, nil, func(handle, handler any, m Message, arg any) {})
	q.AddQueue(w)

	q.RunQueue()
	if q.Length() != 0 || q.MsgsCount() != 0 {
		t.Fatalf("queue not emptied: len=%d msgs=%d", q.Length(), q.MsgsCount())
	}
}
