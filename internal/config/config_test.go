package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{
		configPath: filepath.Join(t.TempDir(), "config.toml"),
		config:     DefaultConfig(),
	}
}

func TestValidateRejectsPeerWithNoHostnameOrIPs(t *testing.T) {
	cfg := &Config{Peers: []Peer{{Position: "right"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a peer with neither hostname nor ips")
	}
}

func TestValidateRejectsMalformedIP(t *testing.T) {
	cfg := &Config{Peers: []Peer{{Hostname: "x", IPs: []string{"not-an-ip"}, Position: "right"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a malformed IP")
	}
}

func TestValidateRejectsUnknownPosition(t *testing.T) {
	cfg := &Config{Peers: []Peer{{Hostname: "x", Position: "diagonal"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an unparseable position")
	}
}

func TestValidateAcceptsWellFormedPeer(t *testing.T) {
	cfg := &Config{Peers: []Peer{{Hostname: "desk2", Position: "right"}}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate rejected a well-formed peer: %v", err)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := newTestManager(t)
	if err := m.Load(); err != nil {
		t.Fatalf("Load on a missing file returned an error: %v", err)
	}
	if got := m.Get().Port; got != DefaultPort {
		t.Errorf("Get().Port = %d, want %d", got, DefaultPort)
	}
}

func TestSaveThenLoadRoundTripsPeers(t *testing.T) {
	m := newTestManager(t)
	m.config.Peers = []Peer{{Hostname: "desk2", Position: "right", ActivateOnStartup: true}}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2 := &Manager{configPath: m.configPath, config: DefaultConfig()}
	if err := m2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	peers := m2.Get().Peers
	if len(peers) != 1 || peers[0].Hostname != "desk2" || !peers[0].ActivateOnStartup {
		t.Errorf("Get().Peers = %+v, want one desk2 peer with ActivateOnStartup", peers)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	m := newTestManager(t)
	if err := os.WriteFile(m.configPath, []byte("peers = [{ position = \"right\" }]\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := m.Load(); err == nil {
		t.Error("Load accepted a config with a peer missing hostname/ips")
	}
}

func TestAddPeerPersistsAndRegisterChangeCallbackFires(t *testing.T) {
	m := newTestManager(t)
	fired := false
	m.RegisterChangeCallback(func() { fired = true })

	if err := m.AddPeer(Peer{Hostname: "desk2", Position: "left"}); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if len(m.Get().Peers) != 1 {
		t.Fatalf("Get().Peers after AddPeer = %v, want 1 entry", m.Get().Peers)
	}

	m2 := &Manager{configPath: m.configPath, config: DefaultConfig()}
	if err := m2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m2.Get().Peers) != 1 {
		t.Error("AddPeer did not persist to disk")
	}

	m.Set(m.Get())
	if !fired {
		t.Error("RegisterChangeCallback's fn never fired")
	}
}

func TestRemovePeerByHostname(t *testing.T) {
	m := newTestManager(t)
	m.config.Peers = []Peer{
		{Hostname: "desk1", Position: "left"},
		{Hostname: "desk2", Position: "right"},
	}

	removed, err := m.RemovePeerByHostname("desk1")
	if err != nil {
		t.Fatalf("RemovePeerByHostname: %v", err)
	}
	if !removed {
		t.Error("RemovePeerByHostname(desk1) returned false")
	}
	if len(m.Get().Peers) != 1 || m.Get().Peers[0].Hostname != "desk2" {
		t.Errorf("Get().Peers = %+v, want only desk2 left", m.Get().Peers)
	}

	removed, err = m.RemovePeerByHostname("not-there")
	if err != nil {
		t.Fatalf("RemovePeerByHostname: %v", err)
	}
	if removed {
		t.Error("RemovePeerByHostname on an unknown hostname returned true")
	}
}
