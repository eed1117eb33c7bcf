package raft

import "github.com/firefly-oss/flyraft/internal/raft/types"

// ReplicationState is a leader's per-follower bookkeeping, created when
// a node becomes Leader and reset whenever it steps down (spec §3).
type ReplicationState struct {
	// NextIdx is the index of the next entry to send this follower.
	NextIdx types.LogIndex
	// MatchIdx is the highest index confirmed identical to the leader's
	// log.
	MatchIdx types.LogIndex
	// Inflight, when non-nil, is the last index of the most recent
	// unacknowledged AppendRequest. While set, no new append is sent.
	Inflight *types.LogIndex
	// SendProbe restricts subsequent appends to empty probes until a
	// successful response rebuilds match.
	SendProbe bool
	// SendHeartbeat is set by the heartbeat timer; a single empty append
	// is emitted and the flag cleared.
	SendHeartbeat bool
}

// newReplicationState initializes a follower's state the way
// become_leader does for every peer: next_idx = last_index+1, match_idx
// = 0, everything else clear.
func newReplicationState(lastIdx types.LogIndex) *ReplicationState {
	return &ReplicationState{
		NextIdx: lastIdx.Add(1),
	}
}

func (r *ReplicationState) clearInflightAtOrBelow(matchIdx types.LogIndex) {
	if r.Inflight != nil && matchIdx >= *r.Inflight {
		r.Inflight = nil
	}
}
