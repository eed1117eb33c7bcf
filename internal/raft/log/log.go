// Package log defines the pluggable log capability the Raft state
// machine is built on, a LogState wrapper that adds an in-memory commit
// index over any Log implementation, and a reference in-memory Log.
package log

import (
	"errors"

	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// ErrCancelOutOfRange is returned by Log.CancelFrom when the requested
// index has already been taken, or lies beyond the log's tail (spec §3:
// "fails if i ≤ last_taken_index or i > last_index+1").
var ErrCancelOutOfRange = errors.New("raft: cancel_from index out of range")

// Log is the capability the consensus state machine requires of its
// storage. Implementations must uphold the invariants of spec.md §3:
// a freshly constructed Log starts empty with PrevIndex()==LastIndex()==0;
// live entry indices are contiguous from PrevIndex()+1 through LastIndex();
// Append may evict from the front once bounded, but never past
// LastTakenIndex(), and never loses the term of the last evicted entry
// (exposed via PrevTerm); TakeNext yields each index exactly once, in
// order.
type Log interface {
	// Append extends the log tail with e, possibly evicting already-taken
	// entries from the front to respect an implementation-defined
	// capacity. Returns an error if e cannot be stored (e.g. exceeds a
	// hard capacity on its own).
	Append(e types.LogEntry) error

	// CancelFrom deletes entries at indices [from, LastIndex()]. Returns
	// the number of entries removed, or ErrCancelOutOfRange if from is at
	// or below LastTakenIndex() or above LastIndex()+1.
	CancelFrom(from types.LogIndex) (int, error)

	// EntryLen is an advisory, deterministic, positive measure of e's
	// serialized size, used to bound replication_chunk_size.
	EntryLen(e types.LogEntry) int

	// Get returns the entry at idx, or false if idx is not currently
	// live (evicted, beyond the tail, or the index-0 sentinel).
	Get(idx types.LogIndex) (types.LogEntry, bool)

	// GetTerm returns the term of the entry at idx, or false if
	// unavailable. Implementations should also answer PrevIndex() with
	// PrevTerm() even though that index itself holds no live entry.
	GetTerm(idx types.LogIndex) (types.TermId, bool)

	// PrevIndex is the index immediately before the first live entry.
	PrevIndex() types.LogIndex
	// PrevTerm is the term of the (possibly evicted) entry at PrevIndex.
	PrevTerm() types.TermId

	// LastIndex is the index of the last live entry (PrevIndex if empty).
	LastIndex() types.LogIndex
	// LastTerm is the term at LastIndex (PrevTerm if empty).
	LastTerm() types.TermId

	// LastTakenIndex is the highest index ever returned by TakeNext.
	LastTakenIndex() types.LogIndex

	// TakeNext returns the entry at LastTakenIndex()+1 and advances the
	// cursor, or false if there is no such entry yet.
	TakeNext() (types.LogEntry, bool)
}

// GetLen returns the advisory serialized length of the entry at idx,
// or false if idx is not live. It is the default-method equivalent of
// the Rust trait's get_len: implementations need not provide it
// themselves.
func GetLen(l Log, idx types.LogIndex) (int, bool) {
	e, ok := l.Get(idx)
	if !ok {
		return 0, false
	}
	return l.EntryLen(e), true
}

// LogState wraps a Log with the in-memory commit index the state
// machine advances. It is not itself committed to by the log; only the
// consensus state machine mutates CommitIdx.
type LogState struct {
	Log       Log
	CommitIdx types.LogIndex
}

// NewLogState wraps log with a fresh commit index of zero.
func NewLogState(l Log) *LogState {
	return &LogState{Log: l}
}

// Get special-cases index 0: the sentinel always answers "no entry",
// regardless of what the underlying Log might otherwise say.
func (s *LogState) Get(idx types.LogIndex) (types.LogEntry, bool) {
	if idx == 0 {
		return types.LogEntry{}, false
	}
	return s.Log.Get(idx)
}

// GetTerm special-cases index 0 (always PrevTerm) and PrevIndex()
// (also always PrevTerm, even once that entry has been evicted).
func (s *LogState) GetTerm(idx types.LogIndex) (types.TermId, bool) {
	if idx == 0 || idx == s.Log.PrevIndex() {
		return s.Log.PrevTerm(), true
	}
	return s.Log.GetTerm(idx)
}

func (s *LogState) LastIndex() types.LogIndex { return s.Log.LastIndex() }
func (s *LogState) LastTerm() types.TermId     { return s.Log.LastTerm() }
func (s *LogState) PrevIndex() types.LogIndex  { return s.Log.PrevIndex() }
func (s *LogState) PrevTerm() types.TermId      { return s.Log.PrevTerm() }

// Committed returns an iterator-like cursor over entries not yet taken
// but already committed: termination is LastTakenIndex() >= CommitIdx.
func (s *LogState) Committed() *CommittedIter {
	return &CommittedIter{state: s}
}

// CommittedIter yields each committed-but-untaken entry exactly once,
// in increasing index order, driven by the underlying Log's own
// LastTakenIndex cursor.
type CommittedIter struct {
	state *LogState
}

// Next returns the next committed entry, or false once the cursor has
// caught up with CommitIdx.
func (c *CommittedIter) Next() (types.LogEntry, bool) {
	if c.state.Log.LastTakenIndex() >= c.state.CommitIdx {
		return types.LogEntry{}, false
	}
	return c.state.Log.TakeNext()
}

// Len reports the exact number of entries remaining: CommitIdx minus
// the entries already taken.
func (c *CommittedIter) Len() int {
	taken := c.state.Log.LastTakenIndex()
	if taken >= c.state.CommitIdx {
		return 0
	}
	return int(uint64(c.state.CommitIdx) - uint64(taken))
}

// Drain consumes and returns every remaining committed entry.
func (c *CommittedIter) Drain() []types.LogEntry {
	out := make([]types.LogEntry, 0, c.Len())
	for {
		e, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}
