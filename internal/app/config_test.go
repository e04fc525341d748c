package app

import (
	"testing"

	"torrentd/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"TT_DATA_DIR", "TT_LOG_LEVEL", "TT_LOG_FORMAT",
		"TT_PEER_INTERFACE", "TT_PEER_PORT", "TT_RPC_BIND", "TT_RPC_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.PeerPortOverride != 0 {
		t.Errorf("PeerPortOverride = %d, want 0", cfg.PeerPortOverride)
	}
}

func TestLoadConfigReadsEnv(t *testing.T) {
	t.Setenv("TT_DATA_DIR", "/srv/torrentd")
	t.Setenv("TT_LOG_LEVEL", "DEBUG")
	t.Setenv("TT_PEER_PORT", "6900")

	cfg := LoadConfig()
	if cfg.DataDir != "/srv/torrentd" {
		t.Errorf("DataDir = %q, want /srv/torrentd", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (lowercased)", cfg.LogLevel)
	}
	if cfg.PeerPortOverride != 6900 {
		t.Errorf("PeerPortOverride = %d, want 6900", cfg.PeerPortOverride)
	}
}

func TestLoadConfigInvalidPortFallsBack(t *testing.T) {
	t.Setenv("TT_PEER_PORT", "not-a-number")
	cfg := LoadConfig()
	if cfg.PeerPortOverride != 0 {
		t.Errorf("PeerPortOverride = %d, want 0 on invalid input", cfg.PeerPortOverride)
	}
}

func TestApplyOverridesFullOverrideWins(t *testing.T) {
	cfg := Config{PeerInterfaceOverride: "10.0.0.1:9999"}
	state := domain.SessionState{ListenInterface: "0.0.0.0:51413"}
	got := cfg.ApplyOverrides(state)
	if got.ListenInterface != "10.0.0.1:9999" {
		t.Fatalf("ListenInterface = %q, want full override", got.ListenInterface)
	}
}

func TestApplyOverridesPortOnlyReplacesPortComponent(t *testing.T) {
	cfg := Config{PeerPortOverride: 7000}
	state := domain.SessionState{ListenInterface: "192.168.1.5:51413"}
	got := cfg.ApplyOverrides(state)
	if got.ListenInterface != "192.168.1.5:7000" {
		t.Fatalf("ListenInterface = %q, want host preserved with new port", got.ListenInterface)
	}
}

func TestApplyOverridesNeitherSetKeepsPersisted(t *testing.T) {
	cfg := Config{}
	state := domain.SessionState{ListenInterface: "192.168.1.5:51413", RPCBind: "127.0.0.1:9091"}
	got := cfg.ApplyOverrides(state)
	if got.ListenInterface != state.ListenInterface {
		t.Errorf("ListenInterface changed with no overrides: %q", got.ListenInterface)
	}
	if got.RPCBind != state.RPCBind {
		t.Errorf("RPCBind changed with no overrides: %q", got.RPCBind)
	}
}

func TestApplyOverridesPortOnlyWithNoHostDefaultsToAnyAddress(t *testing.T) {
	cfg := Config{RPCPortOverride: 9091}
	state := domain.SessionState{RPCBind: ""}
	got := cfg.ApplyOverrides(state)
	if got.RPCBind != "0.0.0.0:9091" {
		t.Fatalf("RPCBind = %q, want 0.0.0.0:9091", got.RPCBind)
	}
}
