package raft

import "github.com/firefly-oss/flyraft/internal/raft/types"

// LeadershipKind tags which variant a LeadershipState currently holds.
// Go has no native sum type, so the tag plus "exactly one populated
// field" convention below stands in for one (spec §9: "an explicit tag
// plus a union... never OOP inheritance, which obscures the 'exactly
// one of' invariant").
type LeadershipKind int

const (
	Follower LeadershipKind = iota
	Candidate
	Leader
)

func (k LeadershipKind) String() string {
	switch k {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// FollowerState is populated when Kind == Follower.
type FollowerState struct {
	Leader              *types.PeerID // nil if no leader known this term
	ElectionTicks        uint32
	RandomElectionTicks  uint32 // the randomized timeout sampled for this term
}

// CandidateState is populated when Kind == Candidate.
type CandidateState struct {
	VotesGranted map[types.PeerID]struct{}
	ElectionTicks uint32
}

// LeaderState is populated when Kind == Leader.
type LeaderState struct {
	Followers      map[types.PeerID]*ReplicationState
	HeartbeatTicks uint32
}

// LeadershipState is exactly one of Follower, Candidate, or Leader.
// Exactly one of the *State fields is non-nil, matching Kind.
type LeadershipState struct {
	Kind      LeadershipKind
	follower  *FollowerState
	candidate *CandidateState
	leader    *LeaderState
}

func newFollowerState(electionTicks, randomElectionTicks uint32) LeadershipState {
	return LeadershipState{
		Kind:     Follower,
		follower: &FollowerState{ElectionTicks: electionTicks, RandomElectionTicks: randomElectionTicks},
	}
}

func newCandidateState(electionTicks uint32, selfVote types.PeerID) LeadershipState {
	votes := map[types.PeerID]struct{}{selfVote: {}}
	return LeadershipState{
		Kind:      Candidate,
		candidate: &CandidateState{VotesGranted: votes, ElectionTicks: electionTicks},
	}
}

func newLeaderState(followers map[types.PeerID]*ReplicationState, heartbeatTicks uint32) LeadershipState {
	return LeadershipState{
		Kind:   Leader,
		leader: &LeaderState{Followers: followers, HeartbeatTicks: heartbeatTicks},
	}
}

// AsFollower returns the Follower payload and true, or (nil, false) if
// Kind is not Follower.
func (s LeadershipState) AsFollower() (*FollowerState, bool) {
	return s.follower, s.Kind == Follower
}

// AsCandidate returns the Candidate payload and true, or (nil, false) if
// Kind is not Candidate.
func (s LeadershipState) AsCandidate() (*CandidateState, bool) {
	return s.candidate, s.Kind == Candidate
}

// AsLeader returns the Leader payload and true, or (nil, false) if Kind
// is not Leader.
func (s LeadershipState) AsLeader() (*LeaderState, bool) {
	return s.leader, s.Kind == Leader
}
