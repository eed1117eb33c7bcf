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
Package config loads and validates the configuration for a flyraft
host process: node identity, listen/peer addresses, data directory,
the consensus timing parameters (internal/raft.Config), TLS, and
discovery settings.

Precedence, lowest to highest: built-in defaults, config file,
environment variables. Call LoadFromFile then LoadFromEnv, in that
order, to get the documented precedence.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names recognized by LoadFromEnv.
const (
	EnvNodeID        = "FLYRAFT_NODE_ID"
	EnvListenAddr    = "FLYRAFT_LISTEN_ADDR"
	EnvPeers         = "FLYRAFT_PEERS"
	EnvDataDir       = "FLYRAFT_DATA_DIR"
	EnvLogLevel      = "FLYRAFT_LOG_LEVEL"
	EnvLogJSON       = "FLYRAFT_LOG_JSON"
	EnvAdminPassword = "FLYRAFT_ADMIN_PASSWORD"
)

// Config holds a flyraft host's full configuration.
type Config struct {
	NodeID     string
	ListenAddr string
	Peers      []string // "id=host:port" entries
	DataDir    string

	ElectionTimeoutTicks   uint32
	HeartbeatIntervalTicks uint32
	ReplicationChunkSize   int

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	DiscoveryEnabled bool
	DiscoveryService string

	LogLevel string
	LogJSON  bool

	AdminPassword string

	// ConfigFile is set by LoadFromFile to the path it was loaded from.
	ConfigFile string
}

// DefaultConfig returns the configuration a single-node cluster boots
// with before any file or environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		NodeID:                 "node-0",
		ListenAddr:             "0.0.0.0:7000",
		Peers:                  nil,
		DataDir:                "flyraft-data",
		ElectionTimeoutTicks:   10,
		HeartbeatIntervalTicks: 3,
		ReplicationChunkSize:   65536,
		TLSEnabled:             false,
		DiscoveryEnabled:       false,
		DiscoveryService:       "_flyraft._tcp",
		LogLevel:               "info",
		LogJSON:                false,
	}
}

// Validate checks the configuration's invariants. It does not touch
// the filesystem or network.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ReplicationChunkSize <= 0 {
		return fmt.Errorf("replication_chunk_size must be positive, got %d", c.ReplicationChunkSize)
	}
	if c.HeartbeatIntervalTicks == 0 {
		return fmt.Errorf("heartbeat_interval_ticks must be positive")
	}
	if c.ElectionTimeoutTicks <= c.HeartbeatIntervalTicks {
		return fmt.Errorf("election_timeout_ticks (%d) must exceed heartbeat_interval_ticks (%d)",
			c.ElectionTimeoutTicks, c.HeartbeatIntervalTicks)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("tls_enabled requires both tls_cert_file and tls_key_file")
	}
	return nil
}

// String renders a human-readable, one-field-per-line summary of the
// identity, peer, timing and log-level settings.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NodeID: %s\n", c.NodeID)
	fmt.Fprintf(&b, "ListenAddr: %s\n", c.ListenAddr)
	fmt.Fprintf(&b, "Peers: %s\n", strings.Join(c.Peers, ", "))
	fmt.Fprintf(&b, "DataDir: %s\n", c.DataDir)
	fmt.Fprintf(&b, "ElectionTimeoutTicks: %d\n", c.ElectionTimeoutTicks)
	fmt.Fprintf(&b, "HeartbeatIntervalTicks: %d\n", c.HeartbeatIntervalTicks)
	fmt.Fprintf(&b, "ReplicationChunkSize: %d\n", c.ReplicationChunkSize)
	fmt.Fprintf(&b, "LogLevel: %s\n", c.LogLevel)
	return b.String()
}

// ToTOML renders the configuration in the same key = value format
// LoadFromFile reads back.
func (c *Config) ToTOML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node_id = %q\n", c.NodeID)
	fmt.Fprintf(&b, "listen_addr = %q\n", c.ListenAddr)
	fmt.Fprintf(&b, "peers = %q\n", strings.Join(c.Peers, ","))
	fmt.Fprintf(&b, "data_dir = %q\n", c.DataDir)
	fmt.Fprintf(&b, "election_timeout_ticks = %d\n", c.ElectionTimeoutTicks)
	fmt.Fprintf(&b, "heartbeat_interval_ticks = %d\n", c.HeartbeatIntervalTicks)
	fmt.Fprintf(&b, "replication_chunk_size = %d\n", c.ReplicationChunkSize)
	fmt.Fprintf(&b, "tls_enabled = %t\n", c.TLSEnabled)
	if c.TLSCertFile != "" {
		fmt.Fprintf(&b, "tls_cert_file = %q\n", c.TLSCertFile)
	}
	if c.TLSKeyFile != "" {
		fmt.Fprintf(&b, "tls_key_file = %q\n", c.TLSKeyFile)
	}
	fmt.Fprintf(&b, "discovery_enabled = %t\n", c.DiscoveryEnabled)
	fmt.Fprintf(&b, "discovery_service = %q\n", c.DiscoveryService)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %t\n", c.LogJSON)
	return b.String()
}

// SaveToFile writes the config in ToTOML form, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := path[:strings.LastIndex(path, "/")+1]
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		val = strings.Trim(val, `"`)
		applyField(cfg, key, val)
	}
	cfg.ConfigFile = path
	return cfg, nil
}

func applyField(cfg *Config, key, val string) {
	switch key {
	case "node_id":
		cfg.NodeID = val
	case "listen_addr":
		cfg.ListenAddr = val
	case "peers":
		if val == "" {
			cfg.Peers = nil
		} else {
			cfg.Peers = strings.Split(val, ",")
		}
	case "data_dir":
		cfg.DataDir = val
	case "election_timeout_ticks":
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.ElectionTimeoutTicks = uint32(n)
		}
	case "heartbeat_interval_ticks":
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.HeartbeatIntervalTicks = uint32(n)
		}
	case "replication_chunk_size":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.ReplicationChunkSize = n
		}
	case "tls_enabled":
		cfg.TLSEnabled = val == "true"
	case "tls_cert_file":
		cfg.TLSCertFile = val
	case "tls_key_file":
		cfg.TLSKeyFile = val
	case "discovery_enabled":
		cfg.DiscoveryEnabled = val == "true"
	case "discovery_service":
		cfg.DiscoveryService = val
	case "log_level":
		cfg.LogLevel = val
	case "log_json":
		cfg.LogJSON = val == "true"
	case "admin_password":
		cfg.AdminPassword = val
	}
}

// Manager owns the active Config and notifies subscribers on Reload.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	onReload []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current configuration. The returned pointer must be
// treated as read-only by callers.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile replaces the managed config with one parsed from path.
func (m *Manager) LoadFromFile(path string) error {
	cfg, err := parseFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.path = path
	m.mu.Unlock()
	return nil
}

// LoadFromEnv overlays environment variables onto the current config.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := os.Getenv(EnvNodeID); v != "" {
		m.cfg.NodeID = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		m.cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPeers); v != "" {
		m.cfg.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		m.cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		m.cfg.LogJSON = v == "true"
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		m.cfg.AdminPassword = v
	}
}

// OnReload registers a callback invoked after every successful Reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Reload re-reads the file this Manager was last loaded from.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("config: no file to reload from")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}
	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.RUnlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager, creating it on first use.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
