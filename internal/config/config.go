// Package config loads and validates the TOML configuration file
// describing this machine's local peers (spec.md §6).
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/feschber/lan-mouse/internal/event"
)

// DefaultPort is used when the config file omits "port".
const DefaultPort = 4242

// Config is the root of config.toml.
type Config struct {
	Port        int      `toml:"port,omitempty"`
	ReleaseBind []uint32 `toml:"release_bind,omitempty"`
	Peers       []Peer   `toml:"peers"`
}

// Peer is one configured peer entry. Either Hostname or at least one
// IP in IPs is required (spec.md §6, scenario 5).
type Peer struct {
	Hostname          string   `toml:"hostname,omitempty"`
	IPs               []string `toml:"ips,omitempty"`
	Port              int      `toml:"port,omitempty"`
	Position          string   `toml:"position"`
	ActivateOnStartup bool     `toml:"activate_on_startup,omitempty"`
	OnEnterCommand    string   `toml:"on_enter_command,omitempty"`
}

// DefaultConfig returns a config with no peers and the documented
// defaults (spec.md §6).
func DefaultConfig() *Config {
	return &Config{Port: DefaultPort}
}

// Validate checks the structural requirements of spec.md §6/scenario
// 5: every peer needs a hostname or at least one literal IP, and a
// parseable position.
func (c *Config) Validate() error {
	for i, p := range c.Peers {
		if p.Hostname == "" && len(p.IPs) == 0 {
			return fmt.Errorf("config: peer %d: neither hostname nor ips given", i)
		}
		for _, ipStr := range p.IPs {
			if net.ParseIP(ipStr) == nil {
				return fmt.Errorf("config: peer %d: invalid ip %q", i, ipStr)
			}
		}
		if _, err := event.ParsePosition(p.Position); err != nil {
			return fmt.Errorf("config: peer %d: %w", i, err)
		}
	}
	return nil
}

// Manager loads, validates, and persists the configuration file,
// mirroring the teacher's config.Manager shape (mutex-guarded,
// change-callback registration) with JSON swapped for TOML and vkvm's
// Profile swapped for a peer spec.
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a manager bound to the platform-appropriate
// config path, creating its parent directory if necessary.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return &Manager{configPath: configPath, config: DefaultConfig()}, nil
}

// getConfigPath resolves $XDG_CONFIG_HOME/lan-mouse/config.toml (or
// its per-OS equivalent), matching the teacher's getConfigPath's
// runtime.GOOS switch.
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "lan-mouse")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "lan-mouse")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "lan-mouse")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "lan-mouse")
		}
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// Load reads and validates the configuration file. A missing file is
// not an error — DefaultConfig() stays in effect. A structurally
// invalid config (scenario 5) is returned as an error; callers exit
// with code 1 per spec.md §6/§7.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", m.configPath, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", m.configPath, err)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	if m.onChanged != nil {
		m.onChanged()
	}
	return nil
}

// Save writes the current configuration back to disk.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := toml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set replaces the configuration wholesale (e.g. after an IPC `connect`
// mutates the peer list) and notifies the registered callback.
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	if m.onChanged != nil {
		m.onChanged()
	}
}

// RegisterChangeCallback registers fn to be invoked after Load/Set.
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// AddPeer appends a peer and persists the change.
func (m *Manager) AddPeer(p Peer) error {
	m.mu.Lock()
	m.config.Peers = append(m.config.Peers, p)
	m.mu.Unlock()
	return m.Save()
}

// RemovePeerByHostname removes the first peer matching hostname and
// persists the change. Returns false if no peer matched.
func (m *Manager) RemovePeerByHostname(hostname string) (bool, error) {
	m.mu.Lock()
	found := false
	for i, p := range m.config.Peers {
		if p.Hostname == hostname {
			m.config.Peers = append(m.config.Peers[:i], m.config.Peers[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, m.Save()
}
