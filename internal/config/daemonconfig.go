package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/neuromance/neuromance-go/internal/domain"
)

// ModelProfile names one (provider, model) pair the daemon can route a
// conversation to, along with where to find its credentials (spec.md §4.5
// "model profiles"). APIKeyEnv, not the key itself, is what's recorded on
// disk.
type ModelProfile struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"`

	// TokenizerProxyURL, when set, routes this profile's requests through a
	// tokenizer proxy instead of the provider directly (spec.md §6
	// "optional proxy mode"): the real API key named by APIKeyEnv is never
	// sent, replaced on the wire by the sealed token named by
	// SealedTokenEnv.
	TokenizerProxyURL string `yaml:"tokenizer_proxy_url,omitempty"`
	SealedTokenEnv    string `yaml:"sealed_token_env,omitempty"`
}

// DaemonSettings are the tunables that apply across every conversation the
// daemon serves (spec.md §4.6).
type DaemonSettings struct {
	AutoApproveTools bool          `yaml:"auto_approve_tools"`
	MaxTurns         int           `yaml:"max_turns"`
	ThinkingBudget   int           `yaml:"thinking_budget"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
}

// DaemonConfig is the daemon's complete YAML-loaded configuration: which
// model profiles exist, which one is active by default, and the settings
// applied to every conversation's Core.
type DaemonConfig struct {
	ActiveModel string                  `yaml:"active_model"`
	Models      map[string]ModelProfile `yaml:"models"`
	Settings    DaemonSettings          `yaml:"settings"`

	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	watchCtl context.CancelFunc
	path     string
}

// DefaultDaemonSettings mirrors the original's hardcoded fallbacks for any
// setting a config file omits.
func DefaultDaemonSettings() DaemonSettings {
	return DaemonSettings{
		AutoApproveTools: false,
		MaxTurns:         25,
		ThinkingBudget:   0,
		IdleTimeout:      30 * time.Minute,
	}
}

// DefaultDaemonConfigPath resolves $XDG_CONFIG_HOME/neuromance/config.yaml,
// falling back to ~/.config/neuromance/config.yaml — the CLI's default
// --config flag value, mirroring internal/storage's single-variable XDG
// fallback for $XDG_DATA_HOME and the original CLI's ~/.config/neuromance
// convention (see theme.rs).
func DefaultDaemonConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "neuromance", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "neuromance", "config.yaml")
}

// LoadDaemonConfig reads and parses a daemon config file from path,
// rejecting unknown fields the way decodeRawConfig does for Config.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeConfig, err)
	}
	cfg, err := parseDaemonConfig(data)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeConfig, err)
	}
	cfg.path = path
	return cfg, nil
}

func parseDaemonConfig(data []byte) (*DaemonConfig, error) {
	cfg := &DaemonConfig{Settings: DefaultDaemonSettings()}
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse daemon config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse daemon config: expected single document")
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelProfile{}
	}
	return cfg, nil
}

// GetModel looks up a model profile by nickname.
func (c *DaemonConfig) GetModel(nickname string) (ModelProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	profile, ok := c.Models[nickname]
	if !ok {
		return ModelProfile{}, domain.NewDomainError(domain.ErrCodeModelNotFound, nickname)
	}
	return profile, nil
}

// ActiveModelName returns the nickname used when a caller doesn't specify
// one, read under the same lock a reload would take.
func (c *DaemonConfig) ActiveModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveModel
}

// AllModels returns a snapshot copy of every configured model profile,
// keyed by nickname, safe to range over while a Reload is in flight.
func (c *DaemonConfig) AllModels() map[string]ModelProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ModelProfile, len(c.Models))
	for k, v := range c.Models {
		out[k] = v
	}
	return out
}

// SnapshotSettings returns the current DaemonSettings, safe to read while a
// reload is in flight.
func (c *DaemonConfig) SnapshotSettings() DaemonSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Settings
}

// Reload re-reads the file this config was loaded from and swaps in the
// new models/settings in place, so every holder of this *DaemonConfig
// observes the update without re-fetching it.
func (c *DaemonConfig) Reload() error {
	if c.path == "" {
		return domain.NewDomainError(domain.ErrCodeConfig, "daemon config has no backing file to reload")
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeConfig, err)
	}
	next, err := parseDaemonConfig(data)
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeConfig, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveModel = next.ActiveModel
	c.Models = next.Models
	c.Settings = next.Settings
	return nil
}

// WatchForChanges starts an fsnotify watch on this config's file and calls
// Reload whenever it changes, logging (not failing) a bad reload so a
// momentarily-invalid file during an editor save doesn't bring the daemon
// down. Every write or create event on the file triggers a Reload at once;
// events are not debounced.
func (c *DaemonConfig) WatchForChanges(ctx context.Context, onError func(error)) error {
	if c.path == "" {
		return domain.NewDomainError(domain.ErrCodeConfig, "daemon config has no backing file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.WrapDomainError(domain.ErrCodeConfig, err)
	}
	if err := watcher.Add(c.path); err != nil {
		_ = watcher.Close()
		return domain.WrapDomainError(domain.ErrCodeConfig, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.watcher = watcher
	c.watchCtl = cancel

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.Reload(); err != nil && onError != nil {
					onError(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()
	return nil
}

// StopWatching cancels an in-flight WatchForChanges, if any.
func (c *DaemonConfig) StopWatching() {
	if c.watchCtl != nil {
		c.watchCtl()
		c.watchCtl = nil
	}
}

// DaemonConfigJSONSchema returns the JSON Schema for DaemonConfig, for
// clients that want to validate a config file before handing it to the
// daemon.
func DaemonConfigJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{FieldNameTag: "yaml"}
	schema := r.Reflect(&DaemonConfig{})
	return json.MarshalIndent(schema, "", "  ")
}
