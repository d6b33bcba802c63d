package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Session.SA != 0x0A || cfg.Session.TA != 0x0B {
		t.Fatalf("unexpected default addresses: %+v", cfg.Session)
	}
	if cfg.Session.BitrateKbps != 500 || cfg.Session.FD {
		t.Fatalf("unexpected default bus config: %+v", cfg.Session)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.ini")
	contents := "[session]\nsa = 20\nta = 21\nbitrate_kbps = 1000\nfd = true\n\n[ecu8tr]\nudp_peer = 10.0.0.5:30001\nudp_listen = 0.0.0.0:30000\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.SA != 20 || cfg.Session.TA != 21 {
		t.Fatalf("got addresses %+v", cfg.Session)
	}
	if cfg.Session.BitrateKbps != 1000 || !cfg.Session.FD {
		t.Fatalf("got bus config %+v", cfg.Session)
	}
	if cfg.ECU8TR.UDPPeer.Port != 30001 {
		t.Fatalf("got peer %+v", cfg.ECU8TR.UDPPeer)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
