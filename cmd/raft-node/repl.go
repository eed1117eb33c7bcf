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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/firefly-oss/flyraft/internal/config"
	"github.com/firefly-oss/flyraft/pkg/cli"
)

// runREPL drives the interactive admin console until the user quits or
// stdin closes. It never calls Node methods directly; every command
// goes through w.submit so the worker goroutine stays the sole owner.
func runREPL(w *worker, cfg *config.Config) {
	rl, err := readline.New(fmt.Sprintf("%s> ", cfg.NodeID))
	if err != nil {
		cli.PrintError("failed to start admin console: %v", err)
		return
	}
	defer rl.Close()

	cli.PrintInfo("flyraft admin console — type \\h for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !dispatchCommand(w, line) {
			return
		}
	}
}

func dispatchCommand(w *worker, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "\\h", "\\help", "help":
		printHelp()
	case "append":
		cmdAppend(w, args)
	case "status":
		cmdStatus(w)
	case "peers":
		cmdPeers(w)
	case "leader":
		cmdLeader(w)
	case "\\q", "quit", "exit":
		return false
	default:
		cli.ErrInvalidCommand(cmd).Print()
	}
	return true
}

func printHelp() {
	cli.Box("flyraft admin console", strings.Join([]string{
		"append <data>   propose a value for replication",
		"status          show this node's term, role and commit index",
		"peers           list known peer ids",
		"leader          show the currently known leader, if any",
		"\\h, help        show this message",
		"\\q, quit, exit  leave the console",
	}, "\n"))
}

func cmdAppend(w *worker, args []string) {
	if len(args) == 0 {
		cli.ErrMissingArgument("data", "append <data>").Print()
		return
	}
	data := []byte(strings.Join(args, " "))
	if _, err := w.Append(data); err != nil {
		cli.PrintError("append rejected: %v", err)
		return
	}
	cli.PrintSuccess("appended %d bytes", len(data))
}

func cmdStatus(w *worker) {
	s := w.Status()
	role := "follower"
	if s.IsLeader {
		role = "leader"
	}
	table := cli.NewTable("Field", "Value")
	table.AddRow("node_id", string(s.NodeID))
	table.AddRow("role", role)
	table.AddRow("term", cli.FormatNumber(int64(s.Term)))
	table.AddRow("last_commit_index", cli.FormatNumber(int64(s.LastCommit)))
	if s.Leader != nil {
		table.AddRow("leader", string(*s.Leader))
	} else {
		table.AddRow("leader", "(unknown)")
	}
	table.AddRow("peer_count", strconv.Itoa(len(s.Peers)))
	table.Print()
}

func cmdPeers(w *worker) {
	s := w.Status()
	if len(s.Peers) == 0 {
		cli.PrintInfo("no known peers")
		return
	}
	table := cli.NewTable("Peer ID")
	for _, p := range s.Peers {
		table.AddRow(string(p))
	}
	table.Print()
}

func cmdLeader(w *worker) {
	s := w.Status()
	if s.Leader == nil {
		cli.PrintWarning("no known leader for term %s", cli.FormatNumber(int64(s.Term)))
		return
	}
	cli.PrintInfo("leader for term %s: %s", cli.FormatNumber(int64(s.Term)), *s.Leader)
}
