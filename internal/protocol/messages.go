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
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/firefly-oss/flyraft/internal/raft/types"
)

func init() {
	gob.Register(types.VoteRequest{})
	gob.Register(types.VoteResponse{})
	gob.Register(types.AppendRequest{})
	gob.Register(types.AppendResponse{})
}

// Envelope is the payload carried inside an MsgRPC frame: the sending
// peer's identity plus the raft message itself. types.Rpc is an
// interface, so its concrete variants must be gob.Register'd (done in
// init above) before Encode/Decode can round-trip it.
type Envelope struct {
	From types.PeerID
	Msg  types.Message
}

// Encode gob-encodes the envelope for transmission.
func (e *Envelope) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope reverses Encode.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	return &e, nil
}

// HandshakeMessage is exchanged once per connection before any RPC
// frame, so each side can reject an incompatible or misconfigured peer
// before it affects cluster state.
type HandshakeMessage struct {
	NodeID          types.PeerID
	ProtocolVersion string
}

func (h *HandshakeMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, fmt.Errorf("protocol: encode handshake: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeHandshakeMessage(data []byte) (*HandshakeMessage, error) {
	var h HandshakeMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return nil, fmt.Errorf("protocol: decode handshake: %w", err)
	}
	return &h, nil
}

// ErrorMessage reports a protocol-level failure back to the sender
// (e.g. a rejected handshake).
type ErrorMessage struct {
	Code    int
	Message string
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("protocol: encode error message: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	var m ErrorMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("protocol: decode error message: %w", err)
	}
	return &m, nil
}
