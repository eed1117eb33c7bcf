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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NodeID != "node-0" {
		t.Errorf("Expected default node_id 'node-0', got '%s'", cfg.NodeID)
	}
	if cfg.ListenAddr != "0.0.0.0:7000" {
		t.Errorf("Expected default listen_addr '0.0.0.0:7000', got '%s'", cfg.ListenAddr)
	}
	if cfg.ElectionTimeoutTicks != 10 {
		t.Errorf("Expected default election_timeout_ticks 10, got %d", cfg.ElectionTimeoutTicks)
	}
	if cfg.HeartbeatIntervalTicks != 3 {
		t.Errorf("Expected default heartbeat_interval_ticks 3, got %d", cfg.HeartbeatIntervalTicks)
	}
	if cfg.ReplicationChunkSize != 65536 {
		t.Errorf("Expected default replication_chunk_size 65536, got %d", cfg.ReplicationChunkSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "valid multi-node config",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "10.0.0.1:7000",
				Peers:                  []string{"node-2=10.0.0.2:7000", "node-3=10.0.0.3:7000"},
				DataDir:                "/var/lib/flyraft",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
			},
			wantErr: false,
		},
		{
			name: "empty node_id",
			cfg: &Config{
				NodeID:                 "",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "data",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
			},
			wantErr: true,
		},
		{
			name: "empty listen_addr",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "",
				DataDir:                "data",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
			},
			wantErr: true,
		},
		{
			name: "election timeout not greater than heartbeat interval",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "data",
				ElectionTimeoutTicks:   3,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
			},
			wantErr: true,
		},
		{
			name: "zero replication_chunk_size",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "data",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   0,
				LogLevel:               "info",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "data",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "invalid",
			},
			wantErr: true,
		},
		{
			name: "empty data_dir",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
			},
			wantErr: true,
		},
		{
			name: "tls enabled without cert/key",
			cfg: &Config{
				NodeID:                 "node-1",
				ListenAddr:             "0.0.0.0:7000",
				DataDir:                "data",
				ElectionTimeoutTicks:   10,
				HeartbeatIntervalTicks: 3,
				ReplicationChunkSize:   65536,
				LogLevel:               "info",
				TLSEnabled:             true,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flyraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
node_id = "node-1"
listen_addr = "10.0.0.1:7000"
peers = "node-2=10.0.0.2:7000,node-3=10.0.0.3:7000"
data_dir = "/tmp/flyraft-data"
election_timeout_ticks = 12
heartbeat_interval_ticks = 4
log_level = "debug"
log_json = true
`

	configPath := filepath.Join(tmpDir, "flyraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.NodeID != "node-1" {
		t.Errorf("Expected node_id 'node-1', got '%s'", cfg.NodeID)
	}
	if cfg.ListenAddr != "10.0.0.1:7000" {
		t.Errorf("Expected listen_addr '10.0.0.1:7000', got '%s'", cfg.ListenAddr)
	}
	if len(cfg.Peers) != 2 {
		t.Errorf("Expected 2 peers, got %d", len(cfg.Peers))
	}
	if cfg.DataDir != "/tmp/flyraft-data" {
		t.Errorf("Expected data_dir '/tmp/flyraft-data', got '%s'", cfg.DataDir)
	}
	if cfg.ElectionTimeoutTicks != 12 {
		t.Errorf("Expected election_timeout_ticks 12, got %d", cfg.ElectionTimeoutTicks)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origNodeID := os.Getenv(EnvNodeID)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origAdminPass := os.Getenv(EnvAdminPassword)

	defer func() {
		os.Setenv(EnvNodeID, origNodeID)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvAdminPassword, origAdminPass)
	}()

	os.Setenv(EnvNodeID, "node-7")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvAdminPassword, "testpassword")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.NodeID != "node-7" {
		t.Errorf("Expected node_id 'node-7' from env, got '%s'", cfg.NodeID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.AdminPassword != "testpassword" {
		t.Errorf("Expected admin_password 'testpassword' from env, got '%s'", cfg.AdminPassword)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flyraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `node_id = "node-1"
listen_addr = "0.0.0.0:7000"
data_dir = "test-data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "flyraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origNodeID := os.Getenv(EnvNodeID)
	defer os.Setenv(EnvNodeID, origNodeID)
	os.Setenv(EnvNodeID, "node-override")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.NodeID != "node-override" {
		t.Errorf("Expected node_id 'node-override' (env override), got '%s'", cfg.NodeID)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		NodeID:                 "node-1",
		ListenAddr:             "0.0.0.0:7000",
		Peers:                  []string{"node-2=10.0.0.2:7000"},
		DataDir:                "/var/lib/flyraft",
		ElectionTimeoutTicks:   10,
		HeartbeatIntervalTicks: 3,
		ReplicationChunkSize:   65536,
		LogLevel:               "info",
		LogJSON:                false,
	}

	toml := cfg.ToTOML()

	if !contains(toml, `node_id = "node-1"`) {
		t.Error("TOML output missing node_id")
	}
	if !contains(toml, `listen_addr = "0.0.0.0:7000"`) {
		t.Error("TOML output missing listen_addr")
	}
	if !contains(toml, "election_timeout_ticks = 10") {
		t.Error("TOML output missing election_timeout_ticks")
	}
	if !contains(toml, `data_dir = "/var/lib/flyraft"`) {
		t.Error("TOML output missing data_dir")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flyraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.NodeID = "node-9"
	cfg.ListenAddr = "0.0.0.0:7777"

	configPath := filepath.Join(tmpDir, "subdir", "flyraft.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.NodeID != "node-9" {
		t.Errorf("Expected node_id 'node-9', got '%s'", loaded.NodeID)
	}
	if loaded.ListenAddr != "0.0.0.0:7777" {
		t.Errorf("Expected listen_addr '0.0.0.0:7777', got '%s'", loaded.ListenAddr)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "flyraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `node_id = "node-1"
listen_addr = "0.0.0.0:7000"
data_dir = "test-data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "flyraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.NodeID != "node-1" {
		t.Errorf("Expected initial node_id 'node-1', got '%s'", cfg.NodeID)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `node_id = "node-1"
listen_addr = "0.0.0.0:7000"
data_dir = "test-data"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !contains(str, "NodeID:") {
		t.Error("String() missing NodeID")
	}
	if !contains(str, "ListenAddr:") {
		t.Error("String() missing ListenAddr")
	}
	if !contains(str, "node-0") {
		t.Error("String() missing node_id value")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && containsHelper(s, substr)
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
