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
raft-node runs a single flyraft cluster member: the deterministic
consensus CORE (internal/raft), a TCP transport (internal/transport),
optional mDNS peer discovery (internal/discovery), and an admin REPL
for interacting with the running node.

Usage:

	raft-node --config /etc/flyraft/node.conf
	raft-node --node-id node-1 --listen 0.0.0.0:7001 --peers node-2=10.0.0.2:7000,node-3=10.0.0.3:7000
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/firefly-oss/flyraft/internal/config"
	"github.com/firefly-oss/flyraft/internal/discovery"
	"github.com/firefly-oss/flyraft/internal/logging"
	"github.com/firefly-oss/flyraft/internal/raft"
	rlog "github.com/firefly-oss/flyraft/internal/raft/log"
	"github.com/firefly-oss/flyraft/internal/raft/types"
	flytls "github.com/firefly-oss/flyraft/internal/tls"
	"github.com/firefly-oss/flyraft/internal/transport"
	"github.com/firefly-oss/flyraft/pkg/cli"
)

const tickInterval = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "Path to a flyraft config file")
	nodeIDFlag := flag.String("node-id", "", "Override node_id")
	listenFlag := flag.String("listen", "", "Override listen_addr")
	peersFlag := flag.String("peers", "", "Comma-separated id=host:port peer list, overrides config")
	noREPL := flag.Bool("no-repl", false, "Run without the interactive admin REPL")
	flag.Parse()

	mgr := config.NewManager()
	if *configPath != "" {
		if err := mgr.LoadFromFile(*configPath); err != nil {
			cli.PrintError("failed to load config: %v", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if *nodeIDFlag != "" {
		cfg.NodeID = *nodeIDFlag
	}
	if *listenFlag != "" {
		cfg.ListenAddr = *listenFlag
	}
	if *peersFlag != "" {
		cfg.Peers = strings.Split(*peersFlag, ",")
	}

	if err := cfg.Validate(); err != nil {
		cli.PrintError("invalid configuration: %v", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(strings.ToUpper(cfg.LogLevel)))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("raft-node").With("node_id", cfg.NodeID)

	peerAddrs, peerIDs := parsePeers(cfg.Peers, log)

	node := raft.NewNode(types.PeerID(cfg.NodeID), peerIDs, rlog.NewUnboundedLog(), raft.NewCryptoRandom(), raft.Config{
		ElectionTimeoutTicks:   cfg.ElectionTimeoutTicks,
		HeartbeatIntervalTicks: cfg.HeartbeatIntervalTicks,
		ReplicationChunkSize:   cfg.ReplicationChunkSize,
	})

	trCfg := transport.Config{
		NodeID:     types.PeerID(cfg.NodeID),
		ListenAddr: cfg.ListenAddr,
		Peers:      peerAddrs,
	}
	if cfg.TLSEnabled {
		if err := flytls.EnsureCertificates(cfg.TLSCertFile, cfg.TLSKeyFile, flytls.DefaultCertConfig()); err != nil {
			cli.PrintError("failed to prepare TLS certificates: %v", err)
			os.Exit(1)
		}
		tlsConfig, err := flytls.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			cli.PrintError("failed to load TLS config: %v", err)
			os.Exit(1)
		}
		trCfg.TLSConfig = tlsConfig
	}

	tr := transport.New(trCfg)
	if err := tr.Listen(); err != nil {
		cli.PrintError("failed to start transport: %v", err)
		os.Exit(1)
	}

	disc := discovery.New(discovery.Config{
		NodeID:        types.PeerID(cfg.NodeID),
		AdvertiseAddr: cfg.ListenAddr,
		Enabled:       cfg.DiscoveryEnabled,
	})
	if err := disc.Advertise(); err != nil {
		log.Warn("discovery advertise failed", "error", err)
	}

	applied := uint64(0)
	w := newWorker(node, tr, log, func(e types.LogEntry) {
		applied++
		log.Debug("entry applied", "term", fmt.Sprint(e.Term), "applied_count", applied)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.run(gctx, tickInterval) })

	log.Info("node started", "listen_addr", cfg.ListenAddr, "peers", len(peerAddrs))

	if !*noREPL {
		runREPL(w, cfg)
	} else {
		<-gctx.Done()
	}

	cancel()
	tr.Close()
	disc.Close()
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("worker stopped with error", "error", err)
	}
}

func parsePeers(entries []string, log *logging.Logger) (map[types.PeerID]string, []types.PeerID) {
	addrs := make(map[types.PeerID]string, len(entries))
	ids := make([]types.PeerID, 0, len(entries))
	for _, entry := range entries {
		id, addr, ok := strings.Cut(entry, "=")
		if !ok || id == "" || addr == "" {
			log.Warn("ignoring malformed peer entry", "entry", entry)
			continue
		}
		addrs[types.PeerID(id)] = addr
		ids = append(ids, types.PeerID(id))
	}
	return addrs, ids
}
