package log

import (
	"testing"

	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// RunConformanceSuite asserts the invariants every Log implementation
// must satisfy (spec.md §3), against a freshly constructed, empty log
// returned by newLog. It mirrors the original Rust reference's
// raft_log_tests! macro, which exercised the same assertions against
// every Log impl in that codebase.
func RunConformanceSuite(t *testing.T, newLog func() Log) {
	t.Helper()

	t.Run("starts empty", func(t *testing.T) {
		l := newLog()
		if l.PrevIndex() != 0 || l.LastIndex() != 0 {
			t.Fatalf("expected prev=last=0 on a fresh log, got prev=%s last=%s", l.PrevIndex(), l.LastIndex())
		}
		if l.LastTakenIndex() != 0 {
			t.Fatalf("expected last_taken=0 on a fresh log, got %s", l.LastTakenIndex())
		}
	})

	t.Run("append extends tail contiguously", func(t *testing.T) {
		l := newLog()
		for i := 1; i <= 3; i++ {
			if err := l.Append(types.LogEntry{Term: 1, Data: []byte("x")}); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		if l.LastIndex() != 3 {
			t.Fatalf("expected last_index=3, got %s", l.LastIndex())
		}
		for i := types.LogIndex(1); i <= 3; i++ {
			if _, ok := l.Get(i); !ok {
				t.Fatalf("expected entry at %s", i)
			}
		}
	})

	t.Run("take_next never repeats an index", func(t *testing.T) {
		l := newLog()
		l.Append(types.LogEntry{Term: 1, Data: []byte("a")})
		l.Append(types.LogEntry{Term: 1, Data: []byte("b")})

		e1, ok := l.TakeNext()
		if !ok || string(e1.Data) != "a" {
			t.Fatalf("expected first take_next to yield 'a', got %v ok=%v", e1, ok)
		}
		e2, ok := l.TakeNext()
		if !ok || string(e2.Data) != "b" {
			t.Fatalf("expected second take_next to yield 'b', got %v ok=%v", e2, ok)
		}
		if _, ok := l.TakeNext(); ok {
			t.Fatalf("expected take_next to exhaust after 2 entries")
		}
		if l.LastTakenIndex() != 2 {
			t.Fatalf("expected last_taken=2, got %s", l.LastTakenIndex())
		}
	})

	t.Run("cancel_from truncates the tail", func(t *testing.T) {
		l := newLog()
		for i := 0; i < 5; i++ {
			l.Append(types.LogEntry{Term: 1, Data: []byte("x")})
		}
		n, err := l.CancelFrom(3)
		if err != nil {
			t.Fatalf("cancel_from(3): %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 entries cancelled, got %d", n)
		}
		if l.LastIndex() != 2 {
			t.Fatalf("expected last_index=2 after cancel, got %s", l.LastIndex())
		}
	})

	t.Run("cancel_from rejects at-or-below last_taken", func(t *testing.T) {
		l := newLog()
		for i := 0; i < 3; i++ {
			l.Append(types.LogEntry{Term: 1, Data: []byte("x")})
		}
		l.TakeNext()
		l.TakeNext()
		if _, err := l.CancelFrom(2); err == nil {
			t.Fatalf("expected cancel_from(2) to fail: index 2 already taken")
		}
		if _, err := l.CancelFrom(3); err != nil {
			t.Fatalf("cancel_from(3) (above last_taken) should succeed: %v", err)
		}
	})

	t.Run("cancel_from rejects beyond last_index+1", func(t *testing.T) {
		l := newLog()
		l.Append(types.LogEntry{Term: 1, Data: []byte("x")})
		if _, err := l.CancelFrom(10); err == nil {
			t.Fatalf("expected cancel_from(10) to fail on a 1-entry log")
		}
	})

	t.Run("last_term stays set after every entry is taken", func(t *testing.T) {
		l := newLog()
		l.Append(types.LogEntry{Term: 1, Data: []byte("x")})
		l.Append(types.LogEntry{Term: 2, Data: []byte("y")})
		l.TakeNext()
		l.TakeNext()
		_, _ = l.CancelFrom(3) // no-op, just exercising the boundary
		if l.LastTerm() == 0 && l.LastIndex() != 0 {
			t.Fatalf("unexpected zero term on non-empty log")
		}
	})
}

func TestInMemoryLogConformance(t *testing.T) {
	RunConformanceSuite(t, func() Log { return NewUnboundedLog() })
}

func TestInMemoryLogEvictsOnlyTakenEntries(t *testing.T) {
	l := NewLogWithCapacity(2 * entryOverhead)
	l.Append(types.LogEntry{Term: 1, Data: nil})
	l.Append(types.LogEntry{Term: 1, Data: nil})
	// Neither entry has been taken yet: appending a third must not evict
	// past last_taken_index, so capacity is exceeded rather than losing
	// un-taken data.
	if err := l.Append(types.LogEntry{Term: 1, Data: nil}); err != nil {
		t.Fatalf("append should not fail even though it exceeds capacity: %v", err)
	}
	if l.LastIndex() != 3 {
		t.Fatalf("expected all 3 entries retained, last_index=%s", l.LastIndex())
	}

	l.TakeNext()
	if err := l.Append(types.LogEntry{Term: 1, Data: nil}); err != nil {
		t.Fatalf("append after a take should succeed: %v", err)
	}
	if l.PrevIndex() == 0 {
		t.Fatalf("expected eviction to advance prev_index once an entry was taken")
	}
}

func TestLogStateGetZeroSentinel(t *testing.T) {
	ls := NewLogState(NewUnboundedLog())
	if _, ok := ls.Get(0); ok {
		t.Fatalf("expected Get(0) to report no entry")
	}
	term, ok := ls.GetTerm(0)
	if !ok || term != ls.PrevTerm() {
		t.Fatalf("expected GetTerm(0) = (prev_term, true), got (%s, %v)", term, ok)
	}
}

func TestCommittedIterExactLength(t *testing.T) {
	ls := NewLogState(NewUnboundedLog())
	for i := 0; i < 5; i++ {
		ls.Log.Append(types.LogEntry{Term: 1, Data: []byte("x")})
	}
	ls.CommitIdx = 3

	it := ls.Committed()
	if it.Len() != 3 {
		t.Fatalf("expected size hint 3, got %d", it.Len())
	}
	drained := it.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 committed entries, got %d", len(drained))
	}
	if it.Len() != 0 {
		t.Fatalf("expected size hint 0 after drain, got %d", it.Len())
	}
}
