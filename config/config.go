// Package config loads the sktools YAML configuration and resolves the
// repository credential from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sktools/configsync"
	"github.com/hazyhaar/sktools/contents"
	"github.com/hazyhaar/sktools/plugin"
)

// Config is the top-level configuration.
type Config struct {
	Sync      SyncConfig      `yaml:"sync"`
	Inject    InjectConfig    `yaml:"inject"`
	Browser   BrowserConfig   `yaml:"browser"`
	Fragments FragmentsConfig `yaml:"fragments"`
	Server    ServerConfig    `yaml:"server"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	Journal   string          `yaml:"journal"` // sqlite path; empty disables the journal
}

// SyncConfig describes the remote configuration file and the plugins to
// ensure in it.
type SyncConfig struct {
	BaseURL  string              `yaml:"base_url"`
	TokenEnv string              `yaml:"token_env"`
	Location configsync.Location `yaml:"location"`
	Message  string              `yaml:"message"`
	Plugins  []plugin.Descriptor `yaml:"plugins"`
}

// InjectConfig controls the sidekick button injection.
type InjectConfig struct {
	HostSelector      string        `yaml:"host_selector"`
	ReadyEvent        string        `yaml:"ready_event"`
	ContainerSelector string        `yaml:"container_selector"`
	Delay             time.Duration `yaml:"delay"`
	MaxDepth          *int          `yaml:"max_depth"` // nil: 10; 0 searches the host's shadow root only
	PluginID          string        `yaml:"plugin_id"`
	Label             string        `yaml:"label"`
	Event             string        `yaml:"event"`
	Timeout           time.Duration `yaml:"timeout"` // whole run, including waiting for the host
}

// BrowserConfig controls Chrome for the inject command.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`            // ws:// URL of a running Chrome; empty launches one
	Mode             string   `yaml:"mode"`              // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`      // headful only
	ResourceBlocking []string `yaml:"resource_blocking"` // image | font | media | stylesheet
}

// FragmentsConfig controls fragment loading for the decorate command.
type FragmentsConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ServerConfig controls the local contents server.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	DB       string `yaml:"db"`
	TokenEnv string `yaml:"token_env"` // empty disables authentication
}

// SinkConfig defines an event output backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// MissingCredentialError means the repository token is not set.
type MissingCredentialError struct {
	Var string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("ERROR: Please set %s env var with a token that has access to the repo.", e.Var)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file and fills in defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and fills in defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and yields all defaults.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.BaseURL == "" {
		c.Sync.BaseURL = contents.DefaultBaseURL
	}
	if c.Sync.TokenEnv == "" {
		c.Sync.TokenEnv = "GITHUB_TOKEN"
	}
	if c.Sync.Location.Owner == "" {
		c.Sync.Location.Owner = "sudo-buddy"
	}
	if c.Sync.Location.Repo == "" {
		c.Sync.Location.Repo = "wgw2025"
	}
	if c.Sync.Location.Path == "" {
		c.Sync.Location.Path = "tools/sidekick/config.json"
	}
	if c.Sync.Message == "" {
		c.Sync.Message = configsync.DefaultMessage
	}
	// An explicit empty list ensures nothing; only an absent list gets the
	// default.
	if c.Sync.Plugins == nil {
		exp := plugin.Experimentation
		exp.Environments = slices.Clone(exp.Environments)
		c.Sync.Plugins = []plugin.Descriptor{exp}
	}

	if c.Inject.HostSelector == "" {
		c.Inject.HostSelector = "aem-sidekick"
	}
	if c.Inject.ReadyEvent == "" {
		c.Inject.ReadyEvent = "sidekick-ready"
	}
	if c.Inject.ContainerSelector == "" {
		c.Inject.ContainerSelector = ".action-group.plugins-container"
	}
	if c.Inject.Delay <= 0 {
		c.Inject.Delay = time.Second
	}
	if c.Inject.MaxDepth == nil {
		depth := 10
		c.Inject.MaxDepth = &depth
	}
	if c.Inject.PluginID == "" {
		c.Inject.PluginID = "experimentation-fallback"
	}
	if c.Inject.Label == "" {
		c.Inject.Label = "A/B Testing"
	}
	if c.Inject.Event == "" {
		c.Inject.Event = "experimentation"
	}
	if c.Inject.Timeout <= 0 {
		c.Inject.Timeout = 2 * time.Minute
	}

	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}

	if c.Fragments.Concurrency <= 0 {
		c.Fragments.Concurrency = 4
	}
	if c.Fragments.Timeout <= 0 {
		c.Fragments.Timeout = 10 * time.Second
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8086"
	}
	if c.Server.DB == "" {
		c.Server.DB = "sktools-contents.db"
	}
}

// Validate checks values defaults cannot repair.
func (c *Config) Validate() error {
	if err := plugin.ValidateAll(c.Sync.Plugins); err != nil {
		return fmt.Errorf("config: sync.plugins: %w", err)
	}
	if d := c.Inject.MaxDepth; d != nil && *d < 0 {
		return fmt.Errorf("config: inject.max_depth %d: must not be negative", *d)
	}
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless or headful", c.Browser.Mode)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}

// Token reads the repository credential through getenv (os.Getenv when
// nil). An empty value is a *MissingCredentialError.
func (c *Config) Token(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	tok := getenv(c.Sync.TokenEnv)
	if tok == "" {
		return "", &MissingCredentialError{Var: c.Sync.TokenEnv}
	}
	return tok, nil
}
