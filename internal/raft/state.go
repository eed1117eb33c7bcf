// Package raft implements the deterministic, side-effect-free Raft
// consensus state machine: leader election, log replication, and
// commit-index advancement, driven entirely by the three event methods
// on Node (Append, Receive, TimerTick). The package performs no I/O of
// its own; every event returns the messages the host must send.
package raft

import (
	"sort"

	rlog "github.com/firefly-oss/flyraft/internal/raft/log"
	"github.com/firefly-oss/flyraft/internal/raft/types"
	"github.com/firefly-oss/flyraft/internal/logging"
)

// State is the root of a node's consensus state: identity, peer set,
// random source, configuration, term, vote, leadership variant, and
// log state. It is not safe for concurrent use: every event entry
// point requires exclusive access (spec §5), which Node (and ultimately
// the host's single worker goroutine) provides.
type State struct {
	nodeID   types.PeerID
	peers    map[types.PeerID]struct{}
	peerList []types.PeerID // sorted, for deterministic iteration (spec §9)

	random Random
	config Config

	currentTerm types.TermId
	votedFor    *types.PeerID
	leadership  LeadershipState

	logState *rlog.LogState

	log *logging.Logger
}

// NewState constructs a node's consensus state. peerSet need not
// exclude nodeID; if present it is stripped, since a peer set
// containing self behaves identically to one with self removed
// (spec §8).
func NewState(nodeID types.PeerID, peerSet []types.PeerID, log rlog.Log, random Random, config Config) *State {
	peers := make(map[types.PeerID]struct{}, len(peerSet))
	peerList := make([]types.PeerID, 0, len(peerSet))
	for _, p := range peerSet {
		if p == nodeID {
			continue
		}
		if _, dup := peers[p]; dup {
			continue
		}
		peers[p] = struct{}{}
		peerList = append(peerList, p)
	}
	sort.Slice(peerList, func(i, j int) bool { return peerList[i] < peerList[j] })

	ls := rlog.NewLogState(log)
	s := &State{
		nodeID:   nodeID,
		peers:    peers,
		peerList: peerList,
		random:   random,
		config:   config,
		logState: ls,
		log:      logging.NewLogger("raft"),
	}
	randomTicks := randomElectionTimeout(config.ElectionTimeoutTicks, random)
	s.leadership = newFollowerState(randomTicks, randomTicks)
	return s
}

// NodeID returns the node's own identity.
func (s *State) NodeID() types.PeerID { return s.nodeID }

// Peers returns the peer set (excluding self) in deterministic order.
func (s *State) Peers() []types.PeerID {
	out := make([]types.PeerID, len(s.peerList))
	copy(out, s.peerList)
	return out
}

// Config returns the node's configuration.
func (s *State) Config() Config { return s.config }

// CurrentTerm returns the node's current term.
func (s *State) CurrentTerm() types.TermId { return s.currentTerm }

// IsLeader reports whether this node currently believes itself Leader.
func (s *State) IsLeader() bool { return s.leadership.Kind == Leader }

// Leader returns the peer this node believes is leader (if known) and
// the current term. Only meaningful when this node is a Follower; a
// Candidate or Leader reports itself absent/present respectively.
func (s *State) Leader() (*types.PeerID, types.TermId) {
	switch s.leadership.Kind {
	case Leader:
		self := s.nodeID
		return &self, s.currentTerm
	case Follower:
		f, _ := s.leadership.AsFollower()
		return f.Leader, s.currentTerm
	default:
		return nil, s.currentTerm
	}
}

// LastCommittedLogIndex returns the highest committed index.
func (s *State) LastCommittedLogIndex() types.LogIndex { return s.logState.CommitIdx }

// ReplicationState returns the leader's bookkeeping for peer, if this
// node is Leader and peer is known.
func (s *State) ReplicationState(peer types.PeerID) (ReplicationState, bool) {
	l, ok := s.leadership.AsLeader()
	if !ok {
		return ReplicationState{}, false
	}
	rs, ok := l.Followers[peer]
	if !ok {
		return ReplicationState{}, false
	}
	return *rs, true
}

// LogState exposes the log-state wrapper for direct committed-entry
// draining (Node.TakeCommitted uses this).
func (s *State) LogState() *rlog.LogState { return s.logState }

// ClientRequest is the low-level entry point behind Node.Append: if
// this node is Leader, append {current_term, data} and run
// commit-advance (spec §4.1). It produces no direct reply message;
// Node is responsible for chaining per-peer AppendEntries afterward.
func (s *State) ClientRequest(data []byte) *AppendError {
	if s.leadership.Kind != Leader {
		return cancelled(data)
	}
	entry := types.LogEntry{Term: s.currentTerm, Data: data}
	if err := s.logState.Log.Append(entry); err != nil {
		return logFailure(err)
	}
	s.advanceCommitIdx()
	return nil
}

// Receive dispatches an inbound message. Unknown senders are dropped
// with a log line and never affect state (spec §3). Returns the direct
// reply, if any; Node chains per-peer AppendEntries after this.
func (s *State) Receive(msg types.Message, from types.PeerID) *types.SendableMessage {
	if _, known := s.peers[from]; !known {
		s.log.Debug("dropping message from unknown peer", "from", string(from))
		return nil
	}

	s.updateTerm(msg.Term)

	var reply *types.SendableMessage
	switch rpc := msg.Rpc.(type) {
	case types.VoteRequest:
		reply = s.handleVoteRequest(msg.Term, rpc, from)
	case types.VoteResponse:
		s.handleVoteResponse(msg.Term, rpc, from)
	case types.AppendRequest:
		reply = s.handleAppendRequest(msg.Term, rpc, from)
	case types.AppendResponse:
		s.handleAppendResponse(msg.Term, rpc, from)
	default:
		s.log.Warn("received message with no rpc payload", "from", string(from))
	}

	s.becomeLeader()
	s.advanceCommitIdx()
	return reply
}

// TimerTick advances the relevant countdown by one tick, performing a
// timeout or heartbeat broadcast on expiry (spec §4.1.3).
func (s *State) TimerTick() *types.SendableMessage {
	switch s.leadership.Kind {
	case Follower:
		f, _ := s.leadership.AsFollower()
		if f.ElectionTicks > 0 {
			f.ElectionTicks--
		}
		// A node with no peers needs no one's vote, so it campaigns (and
		// self-elects) on its very first tick instead of waiting out the
		// countdown.
		if f.ElectionTicks == 0 || len(s.peers) == 0 {
			return s.timeout()
		}
		return nil
	case Candidate:
		c, _ := s.leadership.AsCandidate()
		if c.ElectionTicks > 0 {
			c.ElectionTicks--
		}
		if c.ElectionTicks == 0 {
			return s.timeout()
		}
		return nil
	case Leader:
		l, _ := s.leadership.AsLeader()
		if l.HeartbeatTicks > 0 {
			l.HeartbeatTicks--
		}
		if l.HeartbeatTicks == 0 {
			for _, rs := range l.Followers {
				rs.SendHeartbeat = true
			}
			l.HeartbeatTicks = s.config.HeartbeatIntervalTicks
		}
		return nil
	default:
		return nil
	}
}

// ResetPeer handles an ambiguous connection-reset scenario (spec
// §4.1.9): as Leader, snaps the peer back to probe+heartbeat; as
// Candidate, resends the vote request to that one peer; as Follower,
// does nothing.
func (s *State) ResetPeer(peer types.PeerID) *types.SendableMessage {
	switch s.leadership.Kind {
	case Leader:
		l, _ := s.leadership.AsLeader()
		if rs, ok := l.Followers[peer]; ok {
			rs.NextIdx = s.logState.LastIndex().Add(1)
			rs.SendProbe = true
			rs.SendHeartbeat = true
			rs.Inflight = nil
		}
		return nil
	case Candidate:
		return &types.SendableMessage{
			Message: types.Message{Term: s.currentTerm, Rpc: types.VoteRequest{
				LastLogIdx:  s.logState.LastIndex(),
				LastLogTerm: s.logState.LastTerm(),
			}},
			Dest: types.To(peer),
		}
	default:
		return nil
	}
}

// AppendEntriesForPeer generates the next replication message for peer,
// if any is due (spec §4.1.8). Called by Node after every event, once
// per peer.
func (s *State) AppendEntriesForPeer(peer types.PeerID) *types.SendableMessage {
	l, ok := s.leadership.AsLeader()
	if !ok {
		return nil
	}
	rs, ok := l.Followers[peer]
	if !ok {
		return nil
	}

	sendEntries := s.logState.LastIndex() >= rs.NextIdx && !rs.SendProbe
	if !sendEntries && !rs.SendHeartbeat {
		return nil
	}
	if rs.Inflight != nil {
		return nil
	}

	prevLogIdx := rs.NextIdx.Sub(1)
	var prevLogTerm types.TermId
	if prevLogIdx == 0 {
		prevLogTerm = 0
	} else {
		t, ok := s.logState.GetTerm(prevLogIdx)
		if !ok {
			s.log.Error("replication stalled: prev_log_term unavailable",
				"peer", string(peer), "prev_log_idx", prevLogIdx.String())
			return nil
		}
		prevLogTerm = t
	}

	var entries []types.LogEntry
	if sendEntries {
		size := 0
		idx := rs.NextIdx
		for idx <= s.logState.LastIndex() {
			e, ok := s.logState.Get(idx)
			if !ok {
				break
			}
			elen := s.logState.Log.EntryLen(e)
			if len(entries) > 0 && size+elen > s.config.ReplicationChunkSize {
				break
			}
			entries = append(entries, e)
			size += elen
			idx = idx.Add(1)
		}
	}

	lastEntryIndex := prevLogIdx.Add(uint64(len(entries)))
	leaderCommit := s.logState.CommitIdx
	if lastEntryIndex < leaderCommit {
		leaderCommit = lastEntryIndex
	}

	rs.SendHeartbeat = false
	rs.Inflight = &lastEntryIndex

	return &types.SendableMessage{
		Message: types.Message{Term: s.currentTerm, Rpc: types.AppendRequest{
			PrevLogIdx:   prevLogIdx,
			PrevLogTerm:  prevLogTerm,
			LeaderCommit: leaderCommit,
			Entries:      entries,
		}},
		Dest: types.To(peer),
	}
}

// updateTerm implements spec §4.1.1's pre-dispatch step: stepping down
// to Follower on seeing a higher term, preserving the in-flight
// election countdown unless stepping down from Leader (which samples a
// fresh one).
func (s *State) updateTerm(term types.TermId) {
	if term <= s.currentTerm {
		return
	}
	var electionTicks, randomTicks uint32
	switch s.leadership.Kind {
	case Follower:
		f, _ := s.leadership.AsFollower()
		electionTicks, randomTicks = f.ElectionTicks, f.RandomElectionTicks
	case Candidate:
		c, _ := s.leadership.AsCandidate()
		electionTicks, randomTicks = c.ElectionTicks, c.ElectionTicks
	case Leader:
		randomTicks = randomElectionTimeout(s.config.ElectionTimeoutTicks, s.random)
		electionTicks = randomTicks
	}
	s.currentTerm = term
	s.votedFor = nil
	s.leadership = newFollowerState(electionTicks, randomTicks)
}

func (s *State) handleVoteRequest(term types.TermId, req types.VoteRequest, from types.PeerID) *types.SendableMessage {
	ourLastIdx := s.logState.LastIndex()
	ourLastTerm := s.logState.LastTerm()
	logOk := req.LastLogTerm.Greater(ourLastTerm) || (req.LastLogTerm == ourLastTerm && req.LastLogIdx >= ourLastIdx)

	grant := term == s.currentTerm && logOk && (s.votedFor == nil || *s.votedFor == from)
	if grant {
		f := from
		s.votedFor = &f
		if fs, ok := s.leadership.AsFollower(); ok {
			fs.ElectionTicks = fs.RandomElectionTicks
		}
	}

	return &types.SendableMessage{
		Message: types.Message{Term: s.currentTerm, Rpc: types.VoteResponse{VoteGranted: grant}},
		Dest:    types.To(from),
	}
}

func (s *State) handleVoteResponse(term types.TermId, resp types.VoteResponse, from types.PeerID) {
	if term < s.currentTerm {
		s.log.Debug("dropping stale vote response", "from", string(from))
		return
	}
	c, ok := s.leadership.AsCandidate()
	if !ok {
		return
	}
	if resp.VoteGranted {
		c.VotesGranted[from] = struct{}{}
	}
}

func (s *State) handleAppendRequest(term types.TermId, req types.AppendRequest, from types.PeerID) *types.SendableMessage {
	ourTerm, ourTermOk := s.logState.GetTerm(req.PrevLogIdx)
	logOk := req.PrevLogIdx == 0 || (ourTermOk && ourTerm == req.PrevLogTerm)

	if term == s.currentTerm {
		switch s.leadership.Kind {
		case Candidate:
			c, _ := s.leadership.AsCandidate()
			leader := from
			s.leadership = newFollowerState(c.ElectionTicks, c.ElectionTicks)
			fs, _ := s.leadership.AsFollower()
			fs.Leader = &leader
		case Follower:
			fs, _ := s.leadership.AsFollower()
			leader := from
			fs.Leader = &leader
			fs.ElectionTicks = fs.RandomElectionTicks
		case Leader:
			panic("raft: received AppendRequest while Leader in the same term")
		}
	}

	if term < s.currentTerm || (term == s.currentTerm && !logOk) {
		return &types.SendableMessage{
			Message: types.Message{Term: s.currentTerm, Rpc: types.AppendResponse{
				Success:    false,
				MatchIdx:   s.logState.PrevIndex(),
				LastLogIdx: s.logState.LastIndex(),
			}},
			Dest: types.To(from),
		}
	}

	idx := req.PrevLogIdx
	lastProcessed := req.PrevLogIdx
	for _, entry := range req.Entries {
		idx = idx.Add(1)
		if idx == s.logState.LastIndex().Add(1) {
			if err := s.logState.Log.Append(entry); err != nil {
				s.log.Error("append rejected by log during replication", "err", err.Error())
				break
			}
			lastProcessed = idx
			continue
		}
		if t, ok := s.logState.GetTerm(idx); ok && t == entry.Term {
			lastProcessed = idx
			continue
		}
		if idx <= s.logState.CommitIdx {
			panic("raft: append request would truncate at or below commit_idx")
		}
		if _, err := s.logState.Log.CancelFrom(idx); err != nil {
			s.log.Error("cancel_from failed during replication", "err", err.Error())
			break
		}
		if err := s.logState.Log.Append(entry); err != nil {
			s.log.Error("append rejected by log during replication", "err", err.Error())
			break
		}
		lastProcessed = idx
	}

	newCommit := req.LeaderCommit
	if lastProcessed < newCommit {
		newCommit = lastProcessed
	}
	if newCommit > s.logState.CommitIdx {
		s.logState.CommitIdx = newCommit
	}

	matchIdx := req.PrevLogIdx.Add(uint64(len(req.Entries)))
	if s.logState.LastIndex() < matchIdx {
		matchIdx = s.logState.LastIndex()
	}

	return &types.SendableMessage{
		Message: types.Message{Term: s.currentTerm, Rpc: types.AppendResponse{
			Success:    true,
			MatchIdx:   matchIdx,
			LastLogIdx: s.logState.LastIndex(),
		}},
		Dest: types.To(from),
	}
}

func (s *State) handleAppendResponse(term types.TermId, resp types.AppendResponse, from types.PeerID) {
	if term < s.currentTerm {
		s.log.Debug("dropping stale append response", "from", string(from))
		return
	}
	l, ok := s.leadership.AsLeader()
	if !ok {
		return
	}
	rs, ok := l.Followers[from]
	if !ok {
		s.log.Debug("dropping append response from unknown follower", "from", string(from))
		return
	}

	if resp.Success {
		rs.clearInflightAtOrBelow(resp.MatchIdx)
		if next := resp.MatchIdx.Add(1); next > rs.NextIdx {
			rs.NextIdx = next
		}
		if resp.MatchIdx > rs.MatchIdx {
			rs.MatchIdx = resp.MatchIdx
		}
		rs.SendProbe = false
		return
	}

	floor := rs.MatchIdx.Add(1)
	rewind := rs.NextIdx.Sub(1)
	peerTail := resp.LastLogIdx.Add(1)
	if peerTail < rewind {
		rewind = peerTail
	}
	next := floor
	if rewind > next {
		next = rewind
	}
	rs.NextIdx = next
	rs.SendProbe = true
	rs.Inflight = nil

	size := 0
	for rs.NextIdx > floor {
		candidate := rs.NextIdx.Sub(1)
		if candidate < floor {
			break
		}
		e, ok := s.logState.Get(candidate)
		if !ok {
			break
		}
		elen := s.logState.Log.EntryLen(e)
		if size+elen > s.config.ReplicationChunkSize {
			break
		}
		size += elen
		rs.NextIdx = candidate
	}
}

// becomeLeader transitions a Candidate with quorum votes into Leader,
// initializing per-follower replication state and appending the
// election no-op (spec §4.1.4, Raft §5.4.2).
func (s *State) becomeLeader() {
	c, ok := s.leadership.AsCandidate()
	if !ok {
		return
	}
	if len(c.VotesGranted) < quorumSize(len(s.peers)) {
		return
	}

	followers := make(map[types.PeerID]*ReplicationState, len(s.peers))
	for _, p := range s.peerList {
		followers[p] = newReplicationState(s.logState.LastIndex())
	}
	s.leadership = newLeaderState(followers, s.config.HeartbeatIntervalTicks)

	if err := s.ClientRequest(nil); err != nil {
		s.log.Error("failed to append election no-op", "err", err.Error())
	}
}

// advanceCommitIdx implements spec §4.1.7: the commit index may only
// advance to an index whose entry belongs to the current term, even
// though older entries may also have a quorum match.
func (s *State) advanceCommitIdx() {
	l, ok := s.leadership.AsLeader()
	if !ok {
		return
	}

	matches := make([]types.LogIndex, 0, len(l.Followers)+1)
	for _, rs := range l.Followers {
		matches = append(matches, rs.MatchIdx)
	}
	matches = append(matches, s.logState.LastIndex())
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	q := quorumSize(len(s.peers))
	if q-1 >= len(matches) {
		return
	}
	candidate := matches[q-1]
	if t, ok := s.logState.GetTerm(candidate); ok && t == s.currentTerm {
		if candidate > s.logState.CommitIdx {
			s.logState.CommitIdx = candidate
		}
	}
}

// timeout implements spec §4.1.3: become a candidate for a fresh term,
// vote for self, try to self-elect (single-node groups succeed
// immediately), and broadcast a vote request.
func (s *State) timeout() *types.SendableMessage {
	s.currentTerm = s.currentTerm.Add(1)
	self := s.nodeID
	s.votedFor = &self

	randomTicks := randomElectionTimeout(s.config.ElectionTimeoutTicks, s.random)
	s.leadership = newCandidateState(randomTicks, self)

	s.becomeLeader()
	s.advanceCommitIdx()

	return &types.SendableMessage{
		Message: types.Message{Term: s.currentTerm, Rpc: types.VoteRequest{
			LastLogIdx:  s.logState.LastIndex(),
			LastLogTerm: s.logState.LastTerm(),
		}},
		Dest: types.Broadcast(),
	}
}
