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

/*
Package transport carries raft RPCs between nodes over TCP.

Each peer pair gets one persistent, framed connection. Frames use
internal/protocol's header (magic/version/type/flags/length); the
payload is a gob-encoded internal/protocol.Envelope wrapping the
sender's PeerID and the raft Message. Payloads at or above the
compressor's MinSize are run through internal/compression and flagged
FlagCompressed; when a cluster key is configured every frame also
carries a BLAKE2b-keyed MAC over type+flags+body, flagged
FlagEncrypted, so a node with the wrong key is rejected before its
bytes ever reach gob.

Unlike the connection-per-RPC style of most toy Raft transports, a
Transport here keeps one long-lived connection per peer, because the
raft Node emits outbound messages asynchronously (from ticks, timeouts
and incoming RPCs alike) rather than in a synchronous request/reply
pairing.
*/
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/netutil"

	"github.com/firefly-oss/flyraft/internal/compression"
	raftErrors "github.com/firefly-oss/flyraft/internal/errors"
	"github.com/firefly-oss/flyraft/internal/logging"
	"github.com/firefly-oss/flyraft/internal/protocol"
	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// macSize is the length, in bytes, of the keyed MAC appended to a
// frame's body when a cluster key is configured.
const macSize = 16

// Inbound pairs a decoded raft Message with the peer that sent it, the
// shape internal/raft.Node.Receive expects out-of-band.
type Inbound struct {
	From types.PeerID
	Msg  types.Message
}

// Config configures a Transport.
type Config struct {
	NodeID      types.PeerID
	ListenAddr  string
	Peers       map[types.PeerID]string // peer id -> "host:port"
	ClusterKey  []byte                   // nil disables per-frame MACs
	Compression compression.Config
	DialTimeout time.Duration
	MaxInbound  int // bound on concurrent inbound connections; 0 means 256

	// TLSConfig, when non-nil, wraps both the listener and every dialed
	// connection in TLS (internal/tls.LoadTLSConfig builds it from the
	// host's configured cert/key pair). Peer certificates are
	// self-signed and identified by the cluster's shared key rather than
	// a CA chain, so the dial side skips hostname verification; the MAC
	// layer above already rejects peers without the right ClusterKey.
	TLSConfig *tls.Config
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 2 * time.Second
	}
	return c.DialTimeout
}

func (c Config) maxInbound() int {
	if c.MaxInbound <= 0 {
		return 256
	}
	return c.MaxInbound
}

// Transport bridges a raft Node's asynchronous inbound/outbound message
// flow to the network. It is not imported by internal/raft: the host
// owns a Transport and feeds Node.Receive from its Inbound channel.
type Transport struct {
	cfg        Config
	compressor *compression.Compressor
	log        *logging.Logger

	mu    sync.Mutex
	conns map[types.PeerID]net.Conn

	listener net.Listener
	inbound  chan Inbound
	closing  chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Transport. Call Listen to start accepting peer
// connections; Send works (dialing lazily) even before Listen is
// called.
func New(cfg Config) *Transport {
	return &Transport{
		cfg:        cfg,
		compressor: compression.NewCompressor(cfg.Compression),
		log:        logging.NewLogger("transport").With("node_id", string(cfg.NodeID)),
		conns:      make(map[types.PeerID]net.Conn),
		inbound:    make(chan Inbound, 64),
		closing:    make(chan struct{}),
	}
}

// Inbound returns the channel of messages received from peers. The
// host's worker goroutine is the sole reader.
func (t *Transport) Inbound() <-chan Inbound {
	return t.inbound
}

// Listen starts accepting peer connections on cfg.ListenAddr. SO_REUSEPORT
// is requested on the listen socket so a node can be restarted without
// waiting out TIME_WAIT on its raft port.
func (t *Transport) Listen() error {
	lc := net.ListenConfig{Control: reusePortControl}
	ln, err := lc.Listen(context.Background(), "tcp", t.cfg.ListenAddr)
	if err != nil {
		return raftErrors.ListenFailed(t.cfg.ListenAddr, err)
	}
	if t.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, t.cfg.TLSConfig)
	}
	t.listener = netutil.LimitListener(ln, t.cfg.maxInbound())

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

// Close stops accepting connections, closes every peer connection and
// drains the accept/handle goroutines.
func (t *Transport) Close() error {
	close(t.closing)
	if t.listener != nil {
		t.listener.Close()
	}
	t.mu.Lock()
	for peer, conn := range t.conns {
		conn.Close()
		delete(t.conns, peer)
	}
	t.mu.Unlock()
	t.wg.Wait()
	close(t.inbound)
	return nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closing:
				return
			default:
				t.log.Warn("accept failed", "error", err)
				continue
			}
		}
		t.wg.Add(1)
		go t.serveInbound(conn)
	}
}

func (t *Transport) serveInbound(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	peer, err := t.exchangeHandshake(conn)
	if err != nil {
		t.log.Warn("handshake rejected", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	t.adoptConn(peer, conn)

	for {
		msg, err := t.readFrame(conn)
		if err != nil {
			return
		}
		switch msg.Header.Type {
		case protocol.MsgRPC:
			env, err := protocol.DecodeEnvelope(msg.Payload)
			if err != nil {
				t.log.Warn("malformed envelope", "peer", string(peer), "error", err)
				continue
			}
			select {
			case t.inbound <- Inbound{From: env.From, Msg: env.Msg}:
			case <-t.closing:
				return
			}
		case protocol.MsgPing:
			t.writeFrame(conn, protocol.MsgPong, nil)
		case protocol.MsgError:
			errMsg, err := protocol.DecodeErrorMessage(msg.Payload)
			if err == nil {
				t.log.Warn("peer reported error", "peer", string(peer), "code", errMsg.Code, "message", errMsg.Message)
			}
		}
	}
}

// exchangeHandshake reads the remote's handshake and replies with ours,
// rejecting anything that isn't a well-formed MsgHandshake frame.
func (t *Transport) exchangeHandshake(conn net.Conn) (types.PeerID, error) {
	conn.SetDeadline(time.Now().Add(t.cfg.dialTimeout()))
	defer conn.SetDeadline(time.Time{})

	msg, err := t.readFrame(conn)
	if err != nil {
		return "", err
	}
	if msg.Header.Type != protocol.MsgHandshake {
		return "", raftErrors.NewProtocolError("expected handshake frame")
	}
	hs, err := protocol.DecodeHandshakeMessage(msg.Payload)
	if err != nil {
		return "", err
	}

	reply := &protocol.HandshakeMessage{NodeID: t.cfg.NodeID, ProtocolVersion: protocolVersionString}
	payload, err := reply.Encode()
	if err != nil {
		return "", err
	}
	if err := t.writeFrame(conn, protocol.MsgHandshake, payload); err != nil {
		return "", err
	}
	return hs.NodeID, nil
}

const protocolVersionString = "1.0"

// Send delivers sm to every destination it names, dialing or reusing a
// persistent connection per peer. Failures are logged, never returned:
// a lost peer is the host's problem to retry via the next tick, not
// this call's.
func (t *Transport) Send(sm types.SendableMessage) {
	env := &protocol.Envelope{From: t.cfg.NodeID, Msg: sm.Message}
	payload, err := env.Encode()
	if err != nil {
		t.log.Error("failed to encode envelope", "error", err)
		return
	}

	for _, peer := range t.resolveDestination(sm.Dest) {
		go t.sendTo(peer, payload)
	}
}

func (t *Transport) resolveDestination(dest types.Destination) []types.PeerID {
	if dest.Kind == types.DestUnicast {
		return []types.PeerID{dest.Peer}
	}
	peers := make([]types.PeerID, 0, len(t.cfg.Peers))
	for peer := range t.cfg.Peers {
		peers = append(peers, peer)
	}
	return peers
}

func (t *Transport) sendTo(peer types.PeerID, payload []byte) {
	conn, err := t.getConn(peer)
	if err != nil {
		t.log.Warn("peer unreachable", "peer", string(peer), "error", err)
		return
	}
	if err := t.writeFrame(conn, protocol.MsgRPC, payload); err != nil {
		t.log.Warn("send failed, dropping connection", "peer", string(peer), "error", err)
		t.dropConn(peer, conn)
	}
}

func (t *Transport) getConn(peer types.PeerID) (net.Conn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[peer]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	addr, ok := t.cfg.Peers[peer]
	if !ok {
		return nil, raftErrors.NewTransportError(fmt.Sprintf("no address configured for peer %s", peer))
	}

	var conn net.Conn
	var err error
	if t.cfg.TLSConfig != nil {
		dialer := &net.Dialer{Timeout: t.cfg.dialTimeout()}
		clientCfg := t.cfg.TLSConfig.Clone()
		clientCfg.InsecureSkipVerify = true
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, clientCfg)
	} else {
		conn, err = net.DialTimeout("tcp", addr, t.cfg.dialTimeout())
	}
	if err != nil {
		return nil, raftErrors.DialFailed(addr, err)
	}

	hs := &protocol.HandshakeMessage{NodeID: t.cfg.NodeID, ProtocolVersion: protocolVersionString}
	payload, err := hs.Encode()
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(t.cfg.dialTimeout()))
	if err := t.writeFrame(conn, protocol.MsgHandshake, payload); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := t.readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	if reply.Header.Type != protocol.MsgHandshake {
		conn.Close()
		return nil, raftErrors.NewProtocolError("peer did not complete handshake")
	}

	t.adoptConn(peer, conn)
	t.wg.Add(1)
	go t.drainReplies(peer, conn)
	return conn, nil
}

// drainReplies reads frames arriving on a connection this node dialed
// (the peer's own outbound traffic back to us, since each side dials
// the other independently only until one direction succeeds).
func (t *Transport) drainReplies(peer types.PeerID, conn net.Conn) {
	defer t.wg.Done()
	for {
		msg, err := t.readFrame(conn)
		if err != nil {
			t.dropConn(peer, conn)
			return
		}
		if msg.Header.Type != protocol.MsgRPC {
			continue
		}
		env, err := protocol.DecodeEnvelope(msg.Payload)
		if err != nil {
			continue
		}
		select {
		case t.inbound <- Inbound{From: env.From, Msg: env.Msg}:
		case <-t.closing:
			return
		}
	}
}

func (t *Transport) adoptConn(peer types.PeerID, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.conns[peer]; ok && existing != conn {
		existing.Close()
	}
	t.conns[peer] = conn
}

func (t *Transport) dropConn(peer types.PeerID, conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.conns[peer]; ok && existing == conn {
		delete(t.conns, peer)
	}
	conn.Close()
}

// writeFrame compresses (if warranted), MACs (if a cluster key is
// configured) and writes payload as a single protocol frame.
func (t *Transport) writeFrame(w net.Conn, msgType protocol.MessageType, payload []byte) error {
	flags := protocol.FlagNone

	body := payload
	if len(body) >= t.cfg.Compression.MinSize && t.cfg.Compression.Algorithm != compression.AlgorithmNone {
		compressed, err := t.compressor.Compress(body)
		if err != nil {
			return err
		}
		body = compressed
		flags |= protocol.FlagCompressed
	}

	if t.cfg.ClusterKey != nil {
		mac, err := t.computeMAC(msgType, flags, body)
		if err != nil {
			return err
		}
		body = append(body, mac...)
		flags |= protocol.FlagEncrypted
	}

	h := protocol.Header{
		Magic:   protocol.MagicByte,
		Version: protocol.ProtocolVersion,
		Type:    msgType,
		Flags:   flags,
		Length:  uint32(len(body)),
	}
	if err := protocol.WriteHeader(w, h); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads a frame and reverses writeFrame's MAC check and
// decompression, returning a Message whose Payload is the original
// (uncompressed, unauthenticated-wrapper-stripped) bytes.
func (t *Transport) readFrame(r net.Conn) (*protocol.Message, error) {
	msg, err := protocol.ReadMessage(r)
	if err != nil {
		return nil, err
	}

	body := msg.Payload
	if msg.Header.Flags&protocol.FlagEncrypted != 0 {
		if t.cfg.ClusterKey == nil {
			return nil, raftErrors.MACMismatch()
		}
		if len(body) < macSize {
			return nil, raftErrors.MalformedFrame("frame shorter than MAC size")
		}
		boundary := len(body) - macSize
		given := body[boundary:]
		body = body[:boundary]

		want, err := t.computeMAC(msg.Header.Type, msg.Header.Flags&^protocol.FlagEncrypted, body)
		if err != nil {
			return nil, err
		}
		if !macEqual(given, want) {
			return nil, raftErrors.MACMismatch()
		}
	}

	if msg.Header.Flags&protocol.FlagCompressed != 0 {
		algo := t.cfg.Compression.Algorithm
		decompressed, err := t.compressor.Decompress(body, algo)
		if err != nil {
			return nil, err
		}
		body = decompressed
	}

	msg.Payload = body
	return msg, nil
}

func (t *Transport) computeMAC(msgType protocol.MessageType, flags protocol.MessageFlag, body []byte) ([]byte, error) {
	h, err := blake2b.New(macSize, t.cfg.ClusterKey)
	if err != nil {
		return nil, fmt.Errorf("transport: init MAC: %w", err)
	}
	h.Write([]byte{byte(msgType), byte(flags)})
	h.Write(body)
	return h.Sum(nil), nil
}

func macEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
