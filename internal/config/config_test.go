package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cdpcrawler/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultWorkers, cfg.Crawl.Workers)
	assert.Equal(t, DefaultMaxRetries, cfg.Crawl.RetryCeiling())
	assert.Equal(t, DefaultRetryDelay, cfg.Crawl.RetryDelay.Duration())
	assert.Equal(t, DefaultConnectTimeout, cfg.Crawl.ConnectTimeout.Duration())
	assert.Equal(t, DefaultCommandTimeout, cfg.Crawl.CommandTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.Crawl.ProgressInterval.Duration())
	assert.Equal(t, DefaultSSHPort, cfg.Credentials.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, filepath.Join(DefaultOutputDir, "inventory.csv"), cfg.InventoryPath())
	assert.NotEmpty(t, cfg.Filtering.ExcludePlatforms)
	assert.NotEmpty(t, cfg.Filtering.IncludePlatforms)
	assert.True(t, cfg.Normalize.UsePublicSuffixes())
	assert.Equal(t, DefaultEventSubject, cfg.Events.Subject)
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdpcrawler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed:
  hostname: core-sw1
  address: 10.0.0.1
credentials:
  username: netops
  password_env: CRAWL_PASSWORD
crawl:
  workers: 4
  max_retries: 0
  retry_delay: 2s
  command_timeout: 45s
  require_management_address: true
filtering:
  exclude_platforms: [phone]
  include_platforms: [cisco]
normalize:
  domain_suffixes: [example.net]
  public_suffixes: false
output:
  format: json
rules:
  overrides:
    cisco_ios_show_version: /etc/cdpcrawler/version.yaml
`), 0o644))

	cfg, found, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	assert.Equal(t, "core-sw1", cfg.Seed.Hostname)
	assert.Equal(t, "10.0.0.1", cfg.Seed.Address)
	assert.Equal(t, 4, cfg.Crawl.Workers)
	assert.Equal(t, 0, cfg.Crawl.RetryCeiling(), "explicit zero must survive defaults")
	assert.Equal(t, 2*time.Second, cfg.Crawl.RetryDelay.Duration())
	assert.Equal(t, 45*time.Second, cfg.Crawl.CommandTimeout.Duration())
	assert.Equal(t, DefaultConnectTimeout, cfg.Crawl.ConnectTimeout.Duration())
	assert.True(t, cfg.Crawl.RequireManagementAddress)
	assert.Equal(t, []string{"phone"}, cfg.Filtering.ExcludePlatforms)
	assert.False(t, cfg.Normalize.UsePublicSuffixes())
	assert.Equal(t, "inventory.json", cfg.Output.InventoryFile)
	assert.Equal(t, "/etc/cdpcrawler/version.yaml", cfg.Rules.Overrides["cisco_ios_show_version"])

	t.Setenv("CRAWL_PASSWORD", "s3cret")
	assert.Equal(t, "s3cret", cfg.Password())
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadFromPath(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("crawl:\n  retry_delay: soon\n"), 0o644))
	_, _, err = LoadFromPath(bad)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, _, err = Load(filepath.Join(dir, "also-missing.yaml"))
	assert.Error(t, err)
}

func TestLoadUsesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  workers: 2\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, found, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, found)
	assert.Equal(t, 2, cfg.Crawl.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Seed.Hostname = "core-sw1"
		cfg.Credentials.Username = "netops"
		cfg.Credentials.Password = "pw"
		return cfg
	}
	require.NoError(t, valid().Validate())

	negative := -1

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no seed", func(c *Config) { c.Seed.Hostname = "" }},
		{"no username", func(c *Config) { c.Credentials.Username = "" }},
		{"no secret", func(c *Config) { c.Credentials.Password = "" }},
		{"bad port", func(c *Config) { c.Credentials.Port = 70000 }},
		{"no workers", func(c *Config) { c.Crawl.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Crawl.MaxRetries = &negative }},
		{"negative delay", func(c *Config) { c.Crawl.RetryDelay = Duration(-time.Second) }},
		{"bad format", func(c *Config) { c.Output.Format = "xlsx" }},
		{"bad snmp version", func(c *Config) { c.SNMP.Enabled = true; c.SNMP.Version = "3" }},
		{"empty override", func(c *Config) { c.Rules.Overrides = map[string]string{"x": ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestSeedAddressOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed.Address = "10.0.0.1"
	cfg.Credentials.Username = "netops"
	cfg.Credentials.KeyPath = "/home/netops/.ssh/id_ed25519"
	assert.NoError(t, cfg.Validate())
}

func TestDurationYAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("90s"), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := yaml.Marshal(Duration(5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "5m0s\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("forever"), &d))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Seed.Hostname = "core-sw1"

	require.NoError(t, cfg.Save(path))

	loaded, _, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Seed, loaded.Seed)
	assert.Equal(t, cfg.Crawl.RetryDelay, loaded.Crawl.RetryDelay)
	assert.Equal(t, cfg.Crawl.RetryCeiling(), loaded.Crawl.RetryCeiling())
}

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NETCRAWL_CONFIG", "/opt/netcrawl.yaml")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Chdir(dir)

	assert.Equal(t, []string{
		"/opt/netcrawl.yaml",
		filepath.Join(dir, "netcrawl.yaml"),
		filepath.Join(dir, "xdg", "netcrawl", "config.yaml"),
		filepath.Join(dir, "home", ".config", "netcrawl", "config.yaml"),
		"/etc/netcrawl/config.yaml",
	}, SearchPaths("netcrawl", "NETCRAWL_CONFIG"))
}

func TestFindConfigPathPriority(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigPath, filepath.Join(dir, "missing.yaml"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Chdir(dir)

	homeCfg := filepath.Join(dir, "home", ".config", AppName, "config.yaml")
	require.NoError(t, EnsureDir(homeCfg))
	require.NoError(t, os.WriteFile(homeCfg, []byte("{}"), 0o600))
	assert.Equal(t, homeCfg, FindConfigPath(), "a missing explicit path falls through")

	xdgCfg := filepath.Join(dir, "xdg", AppName, "config.yaml")
	require.NoError(t, EnsureDir(xdgCfg))
	require.NoError(t, os.WriteFile(xdgCfg, []byte("{}"), 0o600))
	assert.Equal(t, xdgCfg, FindConfigPath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, AppName+".yaml"), []byte("{}"), 0o600))
	assert.Equal(t, filepath.Join(dir, AppName+".yaml"), FindConfigPath())
}
