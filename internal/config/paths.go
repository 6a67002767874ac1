package config

import (
	"os"
	"path/filepath"
)

// AppName names the config file and the XDG and /etc config directories
const AppName = "cdpcrawler"

// EnvConfigPath is the environment variable for an explicit config path
const EnvConfigPath = "CDPCRAWLER_CONFIG"

// SearchPaths lists the places a config file for app is looked for, highest
// priority first. Locations whose base variable is unset are left out.
func SearchPaths(app, envVar string) []string {
	var paths []string
	if p := os.Getenv(envVar); p != "" {
		paths = append(paths, p)
	}

	local := app + ".yaml"
	if abs, err := filepath.Abs(local); err == nil {
		local = abs
	}
	paths = append(paths, local)

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, app, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", app, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", app, "config.yaml"))
}

// FindConfigPath returns the first existing file of SearchPaths, or empty
func FindConfigPath() string {
	for _, p := range SearchPaths(AppName, EnvConfigPath) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// EnsureDir creates the parent directory of path if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
