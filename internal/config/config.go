// Package config provides configuration management for the crawler.
//
// Config file locations (priority order):
//  1. an explicit path (the --config flag)
//  2. $CDPCRAWLER_CONFIG
//  3. ./cdpcrawler.yaml
//  4. $XDG_CONFIG_HOME/cdpcrawler/config.yaml
//  5. ~/.config/cdpcrawler/config.yaml
//  6. /etc/cdpcrawler/config.yaml
//
// Every setting has a default, so running without a file is valid as long as
// the seed and the username are supplied on the command line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"cdpcrawler/internal/classify"
	"cdpcrawler/internal/domain"
)

// Defaults
const (
	DefaultWorkers          = 10
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
	DefaultCommandTimeout   = 60 * time.Second
	DefaultProgressInterval = 30 * time.Second
	DefaultSSHPort          = 22
	DefaultDatabasePath     = "./cdpcrawler.db"
	DefaultOutputDir        = "./output"
	DefaultInventoryFile    = "inventory.csv"
	DefaultOutputFormat     = "csv"
	DefaultSNMPCommunity    = "public"
	DefaultSNMPVersion      = "2c"
	DefaultSNMPPort         = 161
	DefaultSNMPTimeout      = 2 * time.Second
	DefaultPreflightTimeout = 5 * time.Second
	DefaultEventSubject     = "cdpcrawler.events"
)

// OutputFormats lists the supported export formats
var OutputFormats = []string{"csv", "json", "yaml"}

// Load finds and loads the config file, or returns defaults if none found.
// A non-empty explicit path must exist.
func Load(explicit string) (*Config, string, error) {
	if explicit != "" {
		return LoadFromPath(explicit)
	}

	path := FindConfigPath()
	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, &domain.ConfigurationError{Source: path, Reason: "read config", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, &domain.ConfigurationError{Source: path, Reason: "parse config", Err: err}
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Credentials.Port == 0 {
		c.Credentials.Port = DefaultSSHPort
	}

	if c.Crawl.Workers == 0 {
		c.Crawl.Workers = DefaultWorkers
	}
	if c.Crawl.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Crawl.MaxRetries = &retries
	}
	if c.Crawl.RetryDelay == 0 {
		c.Crawl.RetryDelay = Duration(DefaultRetryDelay)
	}
	if c.Crawl.ConnectTimeout == 0 {
		c.Crawl.ConnectTimeout = Duration(DefaultConnectTimeout)
	}
	if c.Crawl.CommandTimeout == 0 {
		c.Crawl.CommandTimeout = Duration(DefaultCommandTimeout)
	}
	if c.Crawl.ProgressInterval == 0 {
		c.Crawl.ProgressInterval = Duration(DefaultProgressInterval)
	}

	if c.Filtering.ExcludePlatforms == nil {
		c.Filtering.ExcludePlatforms = slices.Clone(classify.DefaultExclude)
	}
	if c.Filtering.IncludePlatforms == nil {
		c.Filtering.IncludePlatforms = slices.Clone(classify.DefaultInclude)
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	if c.Output.Directory == "" {
		c.Output.Directory = DefaultOutputDir
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultOutputFormat
	}
	if c.Output.InventoryFile == "" {
		c.Output.InventoryFile = "inventory." + c.Output.Format
	}

	if c.SNMP.Community == "" {
		c.SNMP.Community = DefaultSNMPCommunity
	}
	if c.SNMP.Version == "" {
		c.SNMP.Version = DefaultSNMPVersion
	}
	if c.SNMP.Port == 0 {
		c.SNMP.Port = DefaultSNMPPort
	}
	if c.SNMP.Timeout == 0 {
		c.SNMP.Timeout = Duration(DefaultSNMPTimeout)
	}

	if c.Preflight.Timeout == 0 {
		c.Preflight.Timeout = Duration(DefaultPreflightTimeout)
	}

	if c.Events.Subject == "" {
		c.Events.Subject = DefaultEventSubject
	}
}

// Validate checks the settings a crawl cannot start without
func (c *Config) Validate() error {
	fail := func(field, reason string) error {
		return domain.NewConfigurationError(field, reason)
	}

	if c.Seed.Hostname == "" && c.Seed.Address == "" {
		return fail("seed", "a hostname or an address is required")
	}
	if c.Credentials.Username == "" {
		return fail("credentials.username", "is required")
	}
	if c.Credentials.Password == "" && c.Credentials.PasswordEnv == "" && c.Credentials.KeyPath == "" {
		return fail("credentials", "one of password, password_env or key_path is required")
	}
	if c.Credentials.Port < 1 || c.Credentials.Port > 65535 {
		return fail("credentials.port", fmt.Sprintf("%d is not a TCP port", c.Credentials.Port))
	}

	if c.Crawl.Workers < 1 {
		return fail("crawl.workers", "must be at least 1")
	}
	if c.Crawl.RetryCeiling() < 0 {
		return fail("crawl.max_retries", "must not be negative")
	}
	for field, d := range map[string]Duration{
		"crawl.retry_delay":       c.Crawl.RetryDelay,
		"crawl.connect_timeout":   c.Crawl.ConnectTimeout,
		"crawl.command_timeout":   c.Crawl.CommandTimeout,
		"crawl.progress_interval": c.Crawl.ProgressInterval,
	} {
		if d < 0 {
			return fail(field, "must not be negative")
		}
	}

	if !slices.Contains(OutputFormats, c.Output.Format) {
		return fail("output.format", fmt.Sprintf("%q is not one of %v", c.Output.Format, OutputFormats))
	}

	if c.SNMP.Enabled && c.SNMP.Version != "1" && c.SNMP.Version != "2c" {
		return fail("snmp.version", fmt.Sprintf("%q is not supported, use 1 or 2c", c.SNMP.Version))
	}

	for name, path := range c.Rules.Overrides {
		if path == "" {
			return fail("rules.overrides."+name, "path is empty")
		}
	}

	return nil
}

// Password resolves the SSH password, preferring the inline value
func (c *Config) Password() string {
	if c.Credentials.Password != "" {
		return c.Credentials.Password
	}
	if c.Credentials.PasswordEnv != "" {
		return os.Getenv(c.Credentials.PasswordEnv)
	}
	return ""
}

// InventoryPath returns where the export is written
func (c *Config) InventoryPath() string {
	return filepath.Join(c.Output.Directory, c.Output.InventoryFile)
}
