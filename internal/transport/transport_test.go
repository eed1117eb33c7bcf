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

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/firefly-oss/flyraft/internal/compression"
	"github.com/firefly-oss/flyraft/internal/protocol"
	"github.com/firefly-oss/flyraft/internal/raft/types"
)

func newTestTransport(key []byte) *Transport {
	return New(Config{
		NodeID:      "test-node",
		Compression: compression.Config{Algorithm: compression.AlgorithmNone, MinSize: 256},
		ClusterKey:  key,
		DialTimeout: time.Second,
	})
}

func TestResolveDestinationUnicast(t *testing.T) {
	tr := newTestTransport(nil)
	tr.cfg.Peers = map[types.PeerID]string{"a": "x", "b": "y"}

	dests := tr.resolveDestination(types.To("a"))
	if len(dests) != 1 || dests[0] != "a" {
		t.Fatalf("unicast destination = %v, want [a]", dests)
	}
}

func TestResolveDestinationBroadcast(t *testing.T) {
	tr := newTestTransport(nil)
	tr.cfg.Peers = map[types.PeerID]string{"a": "x", "b": "y", "c": "z"}

	dests := tr.resolveDestination(types.Broadcast())
	if len(dests) != 3 {
		t.Fatalf("broadcast destination count = %d, want 3", len(dests))
	}
}

// The frame tests run writeFrame/readFrame over a net.Pipe pair:
// both only need Write/Read, which net.Pipe provides synchronously.
func TestWriteReadFrameRoundTrip(t *testing.T) {
	tr := newTestTransport(nil)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	env := &protocol.Envelope{
		From: "node-a",
		Msg:  types.Message{Term: 5, Rpc: types.VoteRequest{LastLogIdx: 10, LastLogTerm: 4}},
	}
	payload, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.writeFrame(client, protocol.MsgRPC, payload) }()

	msg, err := tr.readFrame(server)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	gotEnv, err := protocol.DecodeEnvelope(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if gotEnv.From != env.From || gotEnv.Msg.Term != env.Msg.Term {
		t.Errorf("round trip mismatch: got %+v, want %+v", gotEnv, env)
	}
}

func TestWriteReadFrameWithMAC(t *testing.T) {
	key := []byte("a-shared-cluster-key-32-bytes!!")
	tr := newTestTransport(key)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("heartbeat")
	go tr.writeFrame(client, protocol.MsgPing, payload)

	msg, err := tr.readFrame(server)
	if err != nil {
		t.Fatalf("readFrame with valid MAC: %v", err)
	}
	if string(msg.Payload) != "heartbeat" {
		t.Errorf("payload = %q, want %q", msg.Payload, "heartbeat")
	}
}

func TestReadFrameRejectsWrongKey(t *testing.T) {
	writer := newTestTransport([]byte("key-one-that-is-long-enough-ok!"))
	reader := newTestTransport([]byte("a-totally-different-cluster-key"))
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go writer.writeFrame(client, protocol.MsgPing, []byte("ping"))

	if _, err := reader.readFrame(server); err == nil {
		t.Fatal("expected MAC verification failure with mismatched keys, got nil error")
	}
}

func TestWriteReadFrameCompressed(t *testing.T) {
	tr := newTestTransport(nil)
	tr.cfg.Compression = compression.Config{Algorithm: compression.AlgorithmZstd, MinSize: 4}
	tr.compressor = compression.NewCompressor(tr.cfg.Compression)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("this payload is long enough to cross MinSize and get compressed")
	go tr.writeFrame(client, protocol.MsgRPC, payload)

	msg, err := tr.readFrame(server)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(msg.Payload) != string(payload) {
		t.Errorf("decompressed payload mismatch: got %q, want %q", msg.Payload, payload)
	}
}
