package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager handles configuration operations.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

// Load reads and validates the configuration file.
func (m *Manager) Load() error {
	cfg, err := Load(m.configPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Load reads the configuration at path. The returned configuration is
// validated and must be treated as read-only.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Tunnels == nil {
		cfg.Tunnels = map[string]Tunnel{}
	}
	if cfg.Hosts == nil {
		cfg.Hosts = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to file.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

func (m *Manager) saveUnsafe() error {
	if m.config == nil {
		return fmt.Errorf("no configuration to save")
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Readers never observe a partially written file.
	tmp, err := os.CreateTemp(dir, ".compassh-*.conf")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the configuration file path.
func (m *Manager) Path() string {
	return m.configPath
}

// Update validates and persists cfg.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return m.Save()
}

// AddHost sets a host override and persists the configuration.
func (m *Manager) AddHost(host, addr string) error {
	cfg := m.Get()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	next := cfg.clone()
	next.Hosts[host] = addr
	return m.Update(next)
}

// RemoveHost deletes a host override and persists the configuration.
func (m *Manager) RemoveHost(host string) error {
	cfg := m.Get()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if _, ok := cfg.Hosts[host]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	next := cfg.clone()
	delete(next.Hosts, host)
	return m.Update(next)
}

func (c *Config) clone() *Config {
	next := *c
	next.Tunnels = make(map[string]Tunnel, len(c.Tunnels))
	for k, v := range c.Tunnels {
		next.Tunnels[k] = v
	}
	next.Hosts = make(map[string]string, len(c.Hosts))
	for k, v := range c.Hosts {
		next.Hosts[k] = v
	}
	next.Bin = make(map[string]string, len(c.Bin))
	for k, v := range c.Bin {
		next.Bin[k] = v
	}
	next.Patterns = append(Patterns(nil), c.Patterns...)
	return &next
}
