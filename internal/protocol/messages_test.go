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

package protocol

import (
	"testing"

	"github.com/firefly-oss/flyraft/internal/raft/types"
)

func TestEnvelopeEncodeDecodeVoteRequest(t *testing.T) {
	original := &Envelope{
		From: types.PeerID("node-2"),
		Msg: types.Message{
			Term: types.TermId(3),
			Rpc:  types.VoteRequest{LastLogIdx: types.LogIndex(10), LastLogTerm: types.TermId(2)},
		},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.From != original.From {
		t.Errorf("From mismatch: got %s, want %s", decoded.From, original.From)
	}
	if decoded.Msg.Term != original.Msg.Term {
		t.Errorf("Term mismatch: got %s, want %s", decoded.Msg.Term, original.Msg.Term)
	}
	vr, ok := decoded.Msg.Rpc.(types.VoteRequest)
	if !ok {
		t.Fatalf("expected VoteRequest, got %T", decoded.Msg.Rpc)
	}
	if vr.LastLogIdx != types.LogIndex(10) {
		t.Errorf("LastLogIdx mismatch: got %s", vr.LastLogIdx)
	}
}

func TestEnvelopeEncodeDecodeAppendRequest(t *testing.T) {
	original := &Envelope{
		From: types.PeerID("node-3"),
		Msg: types.Message{
			Term: types.TermId(5),
			Rpc: types.AppendRequest{
				PrevLogIdx:   types.LogIndex(7),
				PrevLogTerm:  types.TermId(4),
				LeaderCommit: types.LogIndex(6),
				Entries:      []types.LogEntry{{Term: types.TermId(5), Data: []byte("hello")}},
			},
		},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	ar, ok := decoded.Msg.Rpc.(types.AppendRequest)
	if !ok {
		t.Fatalf("expected AppendRequest, got %T", decoded.Msg.Rpc)
	}
	if len(ar.Entries) != 1 || string(ar.Entries[0].Data) != "hello" {
		t.Errorf("Entries mismatch: got %+v", ar.Entries)
	}
}

func TestHandshakeMessageEncodeDecode(t *testing.T) {
	original := &HandshakeMessage{NodeID: types.PeerID("node-1"), ProtocolVersion: "1.0.0"}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeHandshakeMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.NodeID != original.NodeID {
		t.Errorf("NodeID mismatch: got %s, want %s", decoded.NodeID, original.NodeID)
	}
	if decoded.ProtocolVersion != original.ProtocolVersion {
		t.Errorf("ProtocolVersion mismatch: got %s, want %s", decoded.ProtocolVersion, original.ProtocolVersion)
	}
}

func TestErrorMessageEncodeDecode(t *testing.T) {
	original := &ErrorMessage{Code: 409, Message: "incompatible protocol version"}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeErrorMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Code != original.Code {
		t.Errorf("Code mismatch: expected %d, got %d", original.Code, decoded.Code)
	}
	if decoded.Message != original.Message {
		t.Errorf("Message mismatch")
	}
}
