package log

import (
	"fmt"

	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// entryOverhead is the fixed per-entry bookkeeping charged against
// dataCapacity, matching the Rust reference's `4 + data.len()` (spec
// §4.3: "any deterministic, positive measure works").
const entryOverhead = 4

// InMemoryLog is the reference Log implementation: an in-memory deque
// of entries bounded by total approximate byte size. It is suitable for
// tests and for hosts that persist term/vote/log elsewhere (e.g. a
// write-ahead file wrapping the whole state machine) and only need an
// in-process working set.
type InMemoryLog struct {
	entries       []types.LogEntry
	prevIndex     types.LogIndex
	prevTerm      types.TermId
	lastTaken     types.LogIndex
	dataLen       int
	dataCapacity  int
}

// NewUnboundedLog returns a log with no practical capacity limit.
func NewUnboundedLog() *InMemoryLog {
	return NewLogWithCapacity(1 << 40)
}

// NewLogWithCapacity returns a log that evicts already-taken entries
// from the front once the approximate total size of live entries would
// exceed dataCapacity bytes.
func NewLogWithCapacity(dataCapacity int) *InMemoryLog {
	return &InMemoryLog{dataCapacity: dataCapacity}
}

func (l *InMemoryLog) EntryLen(e types.LogEntry) int {
	return entryOverhead + len(e.Data)
}

func (l *InMemoryLog) entryIndex(idx types.LogIndex) (int, bool) {
	if idx <= l.prevIndex {
		return 0, false
	}
	off, ok := idx.CheckedSub(uint64(l.prevIndex) + 1)
	if !ok {
		return 0, false
	}
	i := int(off)
	if i >= len(l.entries) {
		return 0, false
	}
	return i, true
}

func (l *InMemoryLog) Append(e types.LogEntry) error {
	elen := l.EntryLen(e)
	if elen > l.dataCapacity {
		return fmt.Errorf("raft: entry of %d bytes exceeds log capacity %d", elen, l.dataCapacity)
	}
	for l.dataLen+elen > l.dataCapacity && len(l.entries) > 0 && l.prevIndex.Add(1) <= l.lastTaken {
		l.popFront()
	}
	l.entries = append(l.entries, e)
	l.dataLen += elen
	return nil
}

func (l *InMemoryLog) popFront() {
	if len(l.entries) == 0 {
		return
	}
	e := l.entries[0]
	l.entries = l.entries[1:]
	l.prevIndex = l.prevIndex.Add(1)
	l.prevTerm = e.Term
	l.dataLen -= l.EntryLen(e)
}

func (l *InMemoryLog) CancelFrom(from types.LogIndex) (int, error) {
	if from <= l.lastTaken {
		return 0, ErrCancelOutOfRange
	}
	if from > l.LastIndex().Add(1) {
		return 0, ErrCancelOutOfRange
	}
	off, ok := from.CheckedSub(uint64(l.prevIndex) + 1)
	if !ok {
		return 0, ErrCancelOutOfRange
	}
	cut := int(off)
	if cut > len(l.entries) {
		cut = len(l.entries)
	}
	removed := l.entries[cut:]
	n := len(removed)
	for _, e := range removed {
		l.dataLen -= l.EntryLen(e)
	}
	l.entries = l.entries[:cut]
	return n, nil
}

func (l *InMemoryLog) Get(idx types.LogIndex) (types.LogEntry, bool) {
	i, ok := l.entryIndex(idx)
	if !ok {
		return types.LogEntry{}, false
	}
	return l.entries[i], true
}

func (l *InMemoryLog) GetTerm(idx types.LogIndex) (types.TermId, bool) {
	e, ok := l.Get(idx)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

func (l *InMemoryLog) PrevIndex() types.LogIndex { return l.prevIndex }
func (l *InMemoryLog) PrevTerm() types.TermId     { return l.prevTerm }

func (l *InMemoryLog) LastIndex() types.LogIndex {
	return l.prevIndex.Add(uint64(len(l.entries)))
}

func (l *InMemoryLog) LastTerm() types.TermId {
	if len(l.entries) == 0 {
		return l.prevTerm
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *InMemoryLog) LastTakenIndex() types.LogIndex { return l.lastTaken }

func (l *InMemoryLog) TakeNext() (types.LogEntry, bool) {
	if l.lastTaken >= l.LastIndex() {
		return types.LogEntry{}, false
	}
	next := l.lastTaken.Add(1)
	e, ok := l.Get(next)
	if !ok {
		return types.LogEntry{}, false
	}
	l.lastTaken = next
	return e, true
}
