package raft

import (
	rlog "github.com/firefly-oss/flyraft/internal/raft/log"
	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// Node is the public façade over State (spec §4.4). It is the only
// surface hosts should depend on: every lower-level type in this
// package is reachable from Go's exported identifiers but considered
// unstable, exactly as the Rust reference marks its inner `State`.
//
// Every event method chains its primary result (if any) with freshly
// produced AppendEntries messages for every peer, since becoming
// Leader, receiving a message, or ticking a timer can all make new
// replication work eligible.
type Node struct {
	state *State
}

// NewNode constructs a Node. peerSet need not exclude nodeID.
func NewNode(nodeID types.PeerID, peerSet []types.PeerID, log rlog.Log, random Random, config Config) *Node {
	return &Node{state: NewState(nodeID, peerSet, log, random, config)}
}

func (n *Node) appendEntriesForAllPeers() []types.SendableMessage {
	var out []types.SendableMessage
	for _, p := range n.state.Peers() {
		if m := n.state.AppendEntriesForPeer(p); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// Append is the client entry point (spec §4.1, §6): if this node is
// Leader, the data is appended and replication messages are produced;
// otherwise AppendError.Cancelled is returned so the host can redirect
// to the current leader.
func (n *Node) Append(data []byte) ([]types.SendableMessage, *AppendError) {
	if err := n.state.ClientRequest(data); err != nil {
		return nil, err
	}
	return n.appendEntriesForAllPeers(), nil
}

// Receive delivers an inbound message from peer `from` and returns the
// messages the host must now send.
func (n *Node) Receive(msg types.Message, from types.PeerID) []types.SendableMessage {
	out := make([]types.SendableMessage, 0, 2)
	if reply := n.state.Receive(msg, from); reply != nil {
		out = append(out, *reply)
	}
	out = append(out, n.appendEntriesForAllPeers()...)
	return out
}

// TimerTick advances the node's logical clock by one tick.
func (n *Node) TimerTick() []types.SendableMessage {
	out := make([]types.SendableMessage, 0, 2)
	if msg := n.state.TimerTick(); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, n.appendEntriesForAllPeers()...)
	return out
}

// ResetPeer handles an ambiguous connection reset for peer (spec
// §4.1.9), returning any message that results.
func (n *Node) ResetPeer(peer types.PeerID) []types.SendableMessage {
	out := make([]types.SendableMessage, 0, 2)
	if msg := n.state.ResetPeer(peer); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, n.appendEntriesForAllPeers()...)
	return out
}

// TakeCommitted drains every committed entry not yet delivered to the
// host. Each entry is yielded at most once over the node's lifetime,
// strictly in increasing index order (spec §8).
func (n *Node) TakeCommitted() []types.LogEntry {
	return n.state.LogState().Committed().Drain()
}

// IsLeader, Leader, NodeID, Peers, Config, LastCommittedLogIndex, and
// ReplicationState forward directly to State; see there for semantics.
func (n *Node) IsLeader() bool                        { return n.state.IsLeader() }
func (n *Node) Leader() (*types.PeerID, types.TermId) { return n.state.Leader() }
func (n *Node) NodeID() types.PeerID                  { return n.state.NodeID() }
func (n *Node) Peers() []types.PeerID                 { return n.state.Peers() }
func (n *Node) Config() Config                        { return n.state.Config() }
func (n *Node) CurrentTerm() types.TermId             { return n.state.CurrentTerm() }
func (n *Node) LastCommittedLogIndex() types.LogIndex { return n.state.LastCommittedLogIndex() }

func (n *Node) ReplicationState(peer types.PeerID) (ReplicationState, bool) {
	return n.state.ReplicationState(peer)
}

// State exposes the underlying State for tests and advanced hosts that
// need direct access; per spec §4.4 this is explicitly "unstable".
func (n *Node) State() *State { return n.state }
