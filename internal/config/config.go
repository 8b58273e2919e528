// Package config loads the daemon configuration: a YAML file with
// environment-variable overrides, an optional .env overlay, and npm
// registry settings from .npmrc files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// DefaultRegistry is the fallback registry URL.
const DefaultRegistry = "https://registry.npmjs.org"

// Config is the daemon configuration.
type Config struct {
	// DataDir is the root of all core-owned state.
	DataDir string `yaml:"datadir"`
	// Registry is the default npm registry URL.
	Registry string `yaml:"registry"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogJSON switches log output to JSON lines.
	LogJSON bool `yaml:"log_json"`
	// Socket is the unix socket path the channel listens on, if any.
	Socket string `yaml:"socket"`
	// Listen is the address of the websocket channel endpoint, if any.
	Listen string `yaml:"listen"`
}

// DefaultDataDir returns the standard data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pocketnode")
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "pocketd.yaml")
}

// Load reads the configuration. A missing file yields the defaults; a
// present but malformed file is an error. Environment variables override
// file values, and a .env in the working directory is loaded first.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the common case.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:  DefaultDataDir(),
		Registry: DefaultRegistry,
		LogLevel: "info",
	}

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if v := os.Getenv("POCKETD_DATADIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("POCKETD_REGISTRY"); v != "" {
		cfg.Registry = v
	}
	if v := os.Getenv("POCKETD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// Npmrc carries registry overrides from .npmrc files.
type Npmrc struct {
	// Registry overrides the default registry when set.
	Registry string
	// ScopeRegistries maps "@scope" to a registry URL.
	ScopeRegistries map[string]string
}

// LoadNpmrc reads npm configuration from the given .npmrc paths in order;
// later files win. Missing files are skipped.
func LoadNpmrc(paths ...string) Npmrc {
	rc := Npmrc{ScopeRegistries: make(map[string]string)}

	// npmrc keys use ":" inside scope names, so "=" must be the only
	// key-value delimiter.
	opts := ini.LoadOptions{Loose: true, KeyValueDelimiters: "="}

	for _, path := range paths {
		f, err := ini.LoadSources(opts, path)
		if err != nil {
			continue
		}

		for _, key := range f.Section("").Keys() {
			name := key.Name()
			value := strings.TrimSpace(key.String())
			if value == "" {
				continue
			}
			switch {
			case name == "registry":
				rc.Registry = value
			case strings.HasPrefix(name, "@") && strings.HasSuffix(name, ":registry"):
				scope := strings.TrimSuffix(name, ":registry")
				rc.ScopeRegistries[scope] = value
			}
		}
	}
	return rc
}

// DefaultNpmrcPaths lists the .npmrc locations consulted, in ascending
// precedence: user home, then the data directory.
func DefaultNpmrcPaths(dataDir string) []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".npmrc"),
		filepath.Join(dataDir, ".npmrc"),
	}
}
