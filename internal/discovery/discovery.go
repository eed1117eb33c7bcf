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
Package discovery finds other flyraft nodes on the local network using
mDNS (Bonjour/Avahi). raft-node advertises itself through it (its own
peer list still comes from configuration or --peers); raft-discover
browses for advertised nodes and prints them as id=addr pairs.

Each node advertises a "_flyraft._tcp" service carrying its node id and
advertised protocol version in the TXT record. Browsing nodes parse
that record and reject any peer whose version isn't semver-compatible
with their own before Discover returns it, so a
half-upgraded cluster can't accidentally wire together two incompatible
wire formats.
*/
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"
	"golang.org/x/mod/semver"

	raftErrors "github.com/firefly-oss/flyraft/internal/errors"
	"github.com/firefly-oss/flyraft/internal/logging"
	"github.com/firefly-oss/flyraft/internal/raft/types"
)

// ServiceName is the mDNS service type flyraft nodes advertise under.
const ServiceName = "_flyraft._tcp"

// ProtocolVersion is this build's advertised wire-protocol version. Two
// nodes are compatible when they share a semver major version.
const ProtocolVersion = "v1.0.0"

// Peer is a cluster member found by Discover.
type Peer struct {
	ID              types.PeerID
	Addr            string // host:port of the peer's transport listener
	ProtocolVersion string
}

// Config configures advertising and browsing.
type Config struct {
	NodeID        types.PeerID
	AdvertiseAddr string // this node's transport listen address, host:port
	Enabled       bool   // false disables Advertise entirely (browse-only)
}

// Discovery advertises this node (if configured) and browses for peers.
type Discovery struct {
	cfg    Config
	log    *logging.Logger
	server *mdns.Server
}

// New constructs a Discovery. Call Advertise to start announcing this
// node; Discover works regardless.
func New(cfg Config) *Discovery {
	return &Discovery{
		cfg: cfg,
		log: logging.NewLogger("discovery").With("node_id", string(cfg.NodeID)),
	}
}

// Advertise registers this node's mDNS service. It is a no-op when
// cfg.Enabled is false.
func (d *Discovery) Advertise() error {
	if !d.cfg.Enabled {
		return nil
	}

	_, portStr, err := net.SplitHostPort(d.cfg.AdvertiseAddr)
	if err != nil {
		return raftErrors.InvalidConfig("advertise_addr", err.Error())
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return raftErrors.InvalidConfig("advertise_addr", "port is not numeric: "+portStr)
	}

	txt := []string{
		fmt.Sprintf("node_id=%s", d.cfg.NodeID),
		fmt.Sprintf("proto=%s", ProtocolVersion),
	}

	svc, err := mdns.NewMDNSService(string(d.cfg.NodeID), ServiceName, "", "", port, nil, txt)
	if err != nil {
		return fmt.Errorf("discovery: build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("discovery: start mdns server: %w", err)
	}
	d.server = server
	d.log.Info("advertising on mDNS", "service", ServiceName, "port", port)
	return nil
}

// Close stops advertising. Safe to call even if Advertise was never
// called or was a no-op.
func (d *Discovery) Close() error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown()
}

// Discover browses the network for ServiceName peers for the given
// timeout. Peers that fail the semver compatibility check are logged
// and excluded, never returned. Returns NoPeersFound when nothing
// compatible answers.
func (d *Discovery) Discover(timeout time.Duration) ([]Peer, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 16)

	var mu sync.Mutex
	var peers []Peer
	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for entry := range entriesCh {
			peer, ok := d.parseEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			peers = append(peers, peer)
			mu.Unlock()
		}
	}()

	params := mdns.DefaultParams(ServiceName)
	params.Timeout = timeout
	params.Entries = entriesCh
	params.DisableIPv6 = true

	queryErr := mdns.Query(params)
	close(entriesCh)
	<-collectDone

	if queryErr != nil {
		return nil, raftErrors.NewDiscoveryError(queryErr.Error())
	}
	if len(peers) == 0 {
		return nil, raftErrors.NoPeersFound(timeout.String())
	}
	return peers, nil
}

// parseEntry extracts a Peer from a raw mDNS answer, rejecting entries
// with no usable address, no node id, or an incompatible protocol
// version.
func (d *Discovery) parseEntry(entry *mdns.ServiceEntry) (Peer, bool) {
	if entry.Host != "" && !dns.IsDomainName(entry.Host) {
		d.log.Warn("discovered entry has malformed hostname", "host", entry.Host)
		return Peer{}, false
	}

	fields := parseTXT(entry.InfoFields)
	nodeID, ok := fields["node_id"]
	if !ok || nodeID == "" {
		return Peer{}, false
	}

	proto := fields["proto"]
	if !compatibleVersion(proto) {
		d.log.Warn("peer advertises incompatible protocol version", "peer", nodeID, "version", proto)
		return Peer{}, false
	}

	addr := entry.AddrV4
	if addr == nil {
		addr = entry.AddrV6
	}
	if addr == nil {
		return Peer{}, false
	}

	return Peer{
		ID:              types.PeerID(nodeID),
		Addr:            net.JoinHostPort(addr.String(), strconv.Itoa(entry.Port)),
		ProtocolVersion: proto,
	}, true
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// compatibleVersion reports whether theirs shares a semver major
// version with ProtocolVersion.
func compatibleVersion(theirs string) bool {
	if !semver.IsValid(theirs) || !semver.IsValid(ProtocolVersion) {
		return false
	}
	return semver.Major(theirs) == semver.Major(ProtocolVersion)
}
