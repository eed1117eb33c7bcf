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
raft-discover scans the local network for flyraft nodes via mDNS.

Usage:

	raft-discover                  # discover nodes (5 second timeout)
	raft-discover --timeout 10     # custom timeout in seconds
	raft-discover --json           # output as JSON
	raft-discover --quiet          # only output id=addr pairs (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/firefly-oss/flyraft/internal/discovery"
	"github.com/firefly-oss/flyraft/pkg/cli"
)

const version = "1.0.0"

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output id=addr pairs (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output id=addr pairs (for scripting)")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("raft-discover version %s\n", version)
		os.Exit(0)
	}

	// The mdns library logs IPv6 resolution errors at a volume that
	// isn't useful to an operator running this interactively.
	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		cli.PrintInfo("Scanning for flyraft nodes (timeout: %ds)...", *timeout)
	}

	d := discovery.New(discovery.Config{NodeID: "discover-client", Enabled: false})
	peers, err := d.Discover(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			cli.PrintWarning("No flyraft nodes found: %v", err)
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(peers)
	case *quiet:
		outputQuiet(peers)
	default:
		outputHuman(peers)
	}
}

func outputJSON(peers []discovery.Peer) {
	type peerOutput struct {
		NodeID  string `json:"node_id"`
		Addr    string `json:"addr"`
		Version string `json:"protocol_version"`
	}
	out := make([]peerOutput, len(peers))
	for i, p := range peers {
		out[i] = peerOutput{NodeID: string(p.ID), Addr: p.Addr, Version: p.ProtocolVersion}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(peers []discovery.Peer) {
	addrs := make([]string, len(peers))
	for i, p := range peers {
		addrs[i] = fmt.Sprintf("%s=%s", p.ID, p.Addr)
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(peers []discovery.Peer) {
	cli.PrintSuccess("Found %d flyraft node(s)", len(peers))
	fmt.Println()

	table := cli.NewTable("Node ID", "Address", "Protocol")
	for _, p := range peers {
		table.AddRow(string(p.ID), p.Addr, p.ProtocolVersion)
	}
	table.Print()
}

func printUsage() {
	fmt.Println("raft-discover - flyraft node discovery tool")
	fmt.Println()
	fmt.Println("Discovers flyraft nodes on the local network using mDNS, for use in")
	fmt.Println("--peers flags or cluster join scripts.")
	fmt.Println()
	fmt.Println("Usage: raft-discover [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --timeout <seconds>  Discovery timeout (default: 5)")
	fmt.Println("  --json               Output results as JSON")
	fmt.Println("  --quiet, -q          Only output \"id=addr\" pairs (for scripting)")
	fmt.Println("  --version, -v        Show version information")
	fmt.Println("  --help, -h           Show this help message")
	fmt.Println()
	fmt.Println("Network requirements:")
	fmt.Println("  - mDNS uses UDP port 5353 (multicast)")
	fmt.Println("  - Nodes must be on the same network segment")
	fmt.Println("  - Firewalls must allow mDNS traffic")
}
