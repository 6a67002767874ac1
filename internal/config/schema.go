package config

import (
	"time"

	"cdpcrawler/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Seed        SeedConfig        `yaml:"seed"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Filtering   FilteringConfig   `yaml:"filtering"`
	Rules       RulesConfig       `yaml:"rules"`
	Normalize   NormalizeConfig   `yaml:"normalize"`
	Database    DatabaseConfig    `yaml:"database"`
	Output      OutputConfig      `yaml:"output"`
	Logging     logger.Config     `yaml:"logging"`
	SNMP        SNMPConfig        `yaml:"snmp"`
	Preflight   PreflightConfig   `yaml:"preflight"`
	Events      EventsConfig      `yaml:"events"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// SeedConfig identifies the device the crawl starts from
type SeedConfig struct {
	Hostname string `yaml:"hostname"`
	Address  string `yaml:"address,omitempty"`
}

// CredentialsConfig holds SSH login settings. Secrets may be given inline or
// read from the named environment variable.
type CredentialsConfig struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password,omitempty"`
	PasswordEnv    string `yaml:"password_env,omitempty"`
	KeyPath        string `yaml:"key_path,omitempty"`
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"` // empty disables host key checking
	Port           int    `yaml:"port"`
	// LegacyAlgorithms enables the SHA-1 key exchanges and CBC ciphers older
	// IOS images need
	LegacyAlgorithms bool `yaml:"legacy_algorithms,omitempty"`
}

// CrawlConfig tunes the worker pool and retry policy
type CrawlConfig struct {
	Workers                  int      `yaml:"workers"`
	MaxRetries               *int     `yaml:"max_retries"` // nil means the default; 0 disables retries
	RetryDelay               Duration `yaml:"retry_delay"`
	ConnectTimeout           Duration `yaml:"connect_timeout"`
	CommandTimeout           Duration `yaml:"command_timeout"`
	ProgressInterval         Duration `yaml:"progress_interval"`
	RequireManagementAddress bool     `yaml:"require_management_address"`
	Fresh                    bool     `yaml:"fresh"` // discard stored state instead of resuming
}

// RetryCeiling returns how many times a failing device is retried
func (c CrawlConfig) RetryCeiling() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// FilteringConfig lists platform substrings, case-insensitive
type FilteringConfig struct {
	ExcludePlatforms []string `yaml:"exclude_platforms"`
	IncludePlatforms []string `yaml:"include_platforms"`
}

// RulesConfig maps rule set names to override files
type RulesConfig struct {
	Overrides map[string]string `yaml:"overrides,omitempty"`
	Watch     bool              `yaml:"watch,omitempty"` // reload overrides when their files change
}

// NormalizeConfig controls how device names become keys
type NormalizeConfig struct {
	DomainSuffixes []string `yaml:"domain_suffixes,omitempty"`
	PublicSuffixes *bool    `yaml:"public_suffixes,omitempty"` // nil means enabled
}

// UsePublicSuffixes reports whether the public suffix list takes part in
// domain splitting
func (n NormalizeConfig) UsePublicSuffixes() bool {
	return n.PublicSuffixes == nil || *n.PublicSuffixes
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // ":memory:" keeps state only for the life of the process
}

// OutputConfig controls the inventory export
type OutputConfig struct {
	Directory     string `yaml:"directory"`
	InventoryFile string `yaml:"inventory_file"`
	Format        string `yaml:"format"` // csv, json, yaml
}

// SNMPConfig enables SNMP system-group enrichment of crawled devices
type SNMPConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Community string   `yaml:"community"`
	Version   string   `yaml:"version"` // 1, 2c
	Port      uint16   `yaml:"port"`
	Timeout   Duration `yaml:"timeout"`
	Retries   int      `yaml:"retries"`
}

// PreflightConfig enables an nmap port check before each SSH dial
type PreflightConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
}

// EventsConfig publishes crawl events to NATS
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"` // empty disables publishing
	Subject string `yaml:"subject"`
}

// HTTPConfig serves the read-only status API
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty disables the server
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
