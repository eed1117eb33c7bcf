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

package main

import (
	"context"
	"time"

	"github.com/firefly-oss/flyraft/internal/logging"
	"github.com/firefly-oss/flyraft/internal/raft"
	"github.com/firefly-oss/flyraft/internal/raft/types"
	"github.com/firefly-oss/flyraft/internal/transport"
)

// Applier is handed every committed entry, in order, exactly once.
type Applier func(types.LogEntry)

// worker is the single goroutine that owns a *raft.Node. Ticks, inbound
// transport messages, and client commands all funnel through run,
// which is the only place Node's event methods are ever called —
// matching spec.md's requirement that a node's three events execute
// under exclusive access.
type worker struct {
	node *raft.Node
	tr   *transport.Transport
	log  *logging.Logger
	cmds chan func(*raft.Node)
	apply Applier
}

func newWorker(node *raft.Node, tr *transport.Transport, log *logging.Logger, apply Applier) *worker {
	return &worker{
		node:  node,
		tr:    tr,
		log:   log,
		cmds:  make(chan func(*raft.Node), 64),
		apply: apply,
	}
}

// run drives the node until ctx is cancelled. tickInterval is wall-clock
// time per logical tick (spec.md leaves tick granularity to the host).
func (w *worker) run(ctx context.Context, tickInterval time.Duration) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.dispatch(w.node.TimerTick())
		case in, ok := <-w.tr.Inbound():
			if !ok {
				return nil
			}
			w.dispatch(w.node.Receive(in.Msg, in.From))
		case cmd := <-w.cmds:
			cmd(w.node)
		}
		w.drainCommitted()
	}
}

func (w *worker) dispatch(msgs []types.SendableMessage) {
	for _, m := range msgs {
		w.tr.Send(m)
	}
}

func (w *worker) drainCommitted() {
	for _, e := range w.node.TakeCommitted() {
		if w.apply != nil {
			w.apply(e)
		}
	}
}

// submit runs fn on the worker goroutine and blocks until it returns.
func (w *worker) submit(fn func(*raft.Node)) {
	done := make(chan struct{})
	w.cmds <- func(n *raft.Node) {
		fn(n)
		close(done)
	}
	<-done
}

// Append submits a client append through the worker goroutine.
func (w *worker) Append(data []byte) ([]types.SendableMessage, *raft.AppendError) {
	var msgs []types.SendableMessage
	var appendErr *raft.AppendError
	w.submit(func(n *raft.Node) {
		msgs, appendErr = n.Append(data)
		w.dispatch(msgs)
	})
	return msgs, appendErr
}

// Status is a point-in-time snapshot of node state for the admin CLI.
type Status struct {
	NodeID      types.PeerID
	Term        types.TermId
	IsLeader    bool
	Leader      *types.PeerID
	LastCommit  types.LogIndex
	Peers       []types.PeerID
}

func (w *worker) Status() Status {
	var s Status
	w.submit(func(n *raft.Node) {
		leader, _ := n.Leader()
		s = Status{
			NodeID:     n.NodeID(),
			Term:       n.CurrentTerm(),
			IsLeader:   n.IsLeader(),
			Leader:     leader,
			LastCommit: n.LastCommittedLogIndex(),
			Peers:      n.Peers(),
		}
	})
	return s
}
