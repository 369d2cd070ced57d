// Package setup registers the diapredict MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/diapredict/diapredict/internal/config"
)

// ServerKey is the entry name under mcpServers
const ServerKey = "diapredict"

// BinaryName is the stdio MCP server executable
const BinaryName = "diapredict-mcp"

// MCPServerConfig represents a single MCP server entry
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// DesktopConfig is a client configuration file. Entries are kept as raw
// JSON so top-level keys and other servers keep every field.
type DesktopConfig struct {
	servers map[string]json.RawMessage
	other   map[string]json.RawMessage
}

// Server decodes the named mcpServers entry
func (c *DesktopConfig) Server(name string) (MCPServerConfig, bool, error) {
	raw, ok := c.servers[name]
	if !ok {
		return MCPServerConfig{}, false, nil
	}
	var entry MCPServerConfig
	if err := json.Unmarshal(raw, &entry); err != nil {
		return MCPServerConfig{}, true, fmt.Errorf("failed to parse server %q: %w", name, err)
	}
	return entry, true, nil
}

// SetServer adds or replaces the named entry
func (c *DesktopConfig) SetServer(name string, entry MCPServerConfig) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal server %q: %w", name, err)
	}
	c.servers[name] = raw
	return nil
}

// RemoveServer deletes the named entry and reports whether it existed
func (c *DesktopConfig) RemoveServer(name string) bool {
	if _, ok := c.servers[name]; !ok {
		return false
	}
	delete(c.servers, name)
	return true
}

// ServerNames lists the registered entries in sorted order
func (c *DesktopConfig) ServerNames() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options controls what gets registered
type Options struct {
	BinaryPath string // empty means search PATH and common locations
	ConfigFile string // passed to the server as --config
	Provider   string // exported as DIAPREDICT_AI_PROVIDER
	Model      string // exported as DIAPREDICT_AI_MODEL
}

// Status describes the current registration
type Status struct {
	ConfigPath string
	Registered bool
	Server     MCPServerConfig
	Issues     []string
}

// DesktopConfigPath returns the platform location of the desktop client's config file
func DesktopConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
		} else {
			dir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// Load reads the config at path. A missing file yields an empty config.
func Load(path string) (*DesktopConfig, error) {
	cfg := &DesktopConfig{
		servers: make(map[string]json.RawMessage),
		other:   make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.servers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.other, "mcpServers")
	}
	if cfg.servers == nil {
		cfg.servers = make(map[string]json.RawMessage)
	}
	if cfg.other == nil {
		cfg.other = make(map[string]json.RawMessage)
	}

	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed
func Save(path string, cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]interface{}, len(cfg.other)+1)
	for k, v := range cfg.other {
		out[k] = v
	}
	out["mcpServers"] = cfg.servers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Install adds or replaces the diapredict entry in the config at path
func Install(path string, opts Options) (MCPServerConfig, error) {
	binary := opts.BinaryPath
	if binary == "" {
		found, err := findBinary()
		if err != nil {
			return MCPServerConfig{}, err
		}
		binary = found
	}

	entry := MCPServerConfig{Command: binary, Env: map[string]string{}}
	if opts.ConfigFile != "" {
		abs, err := filepath.Abs(opts.ConfigFile)
		if err != nil {
			return MCPServerConfig{}, fmt.Errorf("failed to resolve config path: %w", err)
		}
		entry.Args = []string{"--config", abs}
	}
	if opts.Provider != "" {
		entry.Env[config.EnvPrefix+"_AI_PROVIDER"] = opts.Provider
	}
	if opts.Model != "" {
		entry.Env[config.EnvPrefix+"_AI_MODEL"] = opts.Model
	}

	cfg, err := Load(path)
	if err != nil {
		return MCPServerConfig{}, err
	}
	if err := cfg.SetServer(ServerKey, entry); err != nil {
		return MCPServerConfig{}, err
	}

	if err := Save(path, cfg); err != nil {
		return MCPServerConfig{}, err
	}
	return entry, nil
}

// Uninstall removes the diapredict entry. It reports whether one existed.
func Uninstall(path string) (bool, error) {
	cfg, err := Load(path)
	if err != nil {
		return false, err
	}
	if !cfg.RemoveServer(ServerKey) {
		return false, nil
	}
	return true, Save(path, cfg)
}

// Check inspects the registration at path
func Check(path string) (*Status, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path}
	entry, ok, err := cfg.Server(ServerKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		status.Issues = append(status.Issues, "diapredict is not registered")
		return status, nil
	}

	status.Registered = true
	status.Server = entry

	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case runtime.GOOS != "windows" && info.Mode()&0o111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}

	if len(entry.Args) == 2 && entry.Args[0] == "--config" {
		if _, err := os.Stat(entry.Args[1]); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("config file not found: %s", entry.Args[1]))
		}
	}

	sort.Strings(status.Issues)
	return status, nil
}

// findBinary looks on PATH and then in common build locations
func findBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + BinaryName,
		"./bin/" + BinaryName,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary %q not found in PATH or common locations", BinaryName)
}
