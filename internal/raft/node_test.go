/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package raft

import (
	"testing"

	rlog "github.com/firefly-oss/flyraft/internal/raft/log"
	"github.com/firefly-oss/flyraft/internal/raft/types"
)

func newTestNode(id types.PeerID, peers []types.PeerID, seed int64) *Node {
	return NewNode(id, peers, rlog.NewUnboundedLog(), NewMathRandom(seed), testConfig())
}

// electNodeLeader drives n, one member of a two-node group, to leadership by hand,
// simulating the VoteRequest/VoteResponse round trip a transport would
// otherwise carry, so higher-level Node tests don't need a live network.
func electNodeLeader(t *testing.T, n *Node, peer types.PeerID) {
	t.Helper()
	msgs := n.TimerTick()
	var foundTimeout bool
	for _, m := range msgs {
		if _, ok := m.Message.Rpc.(types.VoteRequest); ok {
			foundTimeout = true
		}
	}
	for !foundTimeout {
		msgs = n.TimerTick()
		for _, m := range msgs {
			if _, ok := m.Message.Rpc.(types.VoteRequest); ok {
				foundTimeout = true
			}
		}
	}
	n.Receive(types.Message{Term: n.CurrentTerm(), Rpc: types.VoteResponse{VoteGranted: true}}, peer)
	if !n.IsLeader() {
		t.Fatalf("expected node to become leader after a granted vote, kind unknown")
	}
}

func TestNodeAppendRejectedWhenNotLeader(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	msgs, err := n.Append([]byte("payload"))
	if err == nil {
		t.Fatal("expected an AppendError on a follower")
	}
	if err.Kind != ErrCancelled {
		t.Fatalf("err.Kind = %v, want ErrCancelled", err.Kind)
	}
	if msgs != nil {
		t.Fatal("a rejected append must not return any messages to send")
	}
}

func TestNodeAppendSucceedsAsLeaderAndRepicates(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	electNodeLeader(t, n, "n2")
	// The election no-op is in flight to n2; acknowledge it so the next
	// append is not held back behind it.
	n.Receive(types.Message{Term: n.CurrentTerm(), Rpc: types.AppendResponse{Success: true, MatchIdx: 1, LastLogIdx: 1}}, "n2")

	msgs, err := n.Append([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error appending as leader: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatal("expected at least one AppendRequest message toward the follower")
	}
	found := false
	for _, m := range msgs {
		if req, ok := m.Message.Rpc.(types.AppendRequest); ok {
			found = true
			if len(req.Entries) == 0 {
				t.Fatal("expected the replication message to carry the newly appended entry")
			}
		}
	}
	if !found {
		t.Fatal("no AppendRequest produced for the single follower")
	}
}

func TestNodeSingleMemberGroupCommitsImmediately(t *testing.T) {
	n := newTestNode("solo", nil, 1)
	n.TimerTick() // first tick with no peers self-elects
	if !n.IsLeader() {
		t.Fatal("a lone node must self-elect on its first timeout")
	}
	_, err := n.Append([]byte("x"))
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	committed := n.TakeCommitted()
	if len(committed) == 0 {
		t.Fatal("expected at least the appended entry to be committed immediately")
	}
	last := committed[len(committed)-1]
	if string(last.Data) != "x" {
		t.Fatalf("last committed entry = %q, want %q", last.Data, "x")
	}
}

func TestNodeTakeCommittedDrainsExactlyOnceInOrder(t *testing.T) {
	n := newTestNode("solo", nil, 1)
	n.TimerTick()
	n.Append([]byte("a"))
	n.Append([]byte("b"))
	n.Append([]byte("c"))

	first := n.TakeCommitted()
	second := n.TakeCommitted()
	if len(second) != 0 {
		t.Fatalf("second TakeCommitted call returned %d entries, want 0 (each entry yielded once)", len(second))
	}

	var nonNoop [][]byte
	for _, e := range first {
		if !e.IsNoop() {
			nonNoop = append(nonNoop, e.Data)
		}
	}
	want := []string{"a", "b", "c"}
	if len(nonNoop) != len(want) {
		t.Fatalf("got %d non-noop committed entries, want %d", len(nonNoop), len(want))
	}
	for i, w := range want {
		if string(nonNoop[i]) != w {
			t.Fatalf("committed entry %d = %q, want %q (must preserve append order)", i, nonNoop[i], w)
		}
	}
}

func TestNodeReceiveFromUnknownPeerYieldsNoMessages(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	msgs := n.Receive(types.Message{Term: 1, Rpc: types.VoteRequest{}}, "ghost")
	if len(msgs) != 0 {
		t.Fatalf("expected no messages from an unknown sender, got %d", len(msgs))
	}
}

func TestNodeReceiveVoteRequestRepliesToSender(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	msgs := n.Receive(types.Message{Term: 1, Rpc: types.VoteRequest{LastLogIdx: 0, LastLogTerm: 0}}, "n2")
	if len(msgs) == 0 {
		t.Fatal("expected a VoteResponse in reply")
	}
	reply := msgs[0]
	if reply.Dest.Kind != types.DestUnicast || reply.Dest.Peer != "n2" {
		t.Fatalf("reply dest = %v, want unicast to n2", reply.Dest)
	}
	if _, ok := reply.Message.Rpc.(types.VoteResponse); !ok {
		t.Fatalf("reply rpc = %T, want VoteResponse", reply.Message.Rpc)
	}
}

func TestNodeResetPeerAsLeaderProducesReplicationRetry(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	electNodeLeader(t, n, "n2")
	msgs := n.ResetPeer("n2")
	if len(msgs) == 0 {
		t.Fatal("expected ResetPeer to reschedule replication toward the reset peer")
	}
}

func TestNodeLeaderReportsSelf(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2"}, 1)
	electNodeLeader(t, n, "n2")
	leader, term := n.Leader()
	if leader == nil || *leader != "n1" {
		t.Fatal("a leader must report itself from Leader()")
	}
	if term != n.CurrentTerm() {
		t.Fatalf("Leader() term = %s, want CurrentTerm() = %s", term, n.CurrentTerm())
	}
}

func TestNodeAccessorsForwardToState(t *testing.T) {
	n := newTestNode("n1", []types.PeerID{"n2", "n3"}, 1)
	if n.NodeID() != "n1" {
		t.Fatalf("NodeID() = %s, want n1", n.NodeID())
	}
	if len(n.Peers()) != 2 {
		t.Fatalf("len(Peers()) = %d, want 2", len(n.Peers()))
	}
	if n.Config().ElectionTimeoutTicks != testConfig().ElectionTimeoutTicks {
		t.Fatal("Config() must return the configuration the node was constructed with")
	}
	if n.LastCommittedLogIndex() != 0 {
		t.Fatal("a fresh node has no committed entries")
	}
}
