package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal: silently ignoring a typo in a
// config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values, supporting zero-config startup.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns fully parsed Settings ready for use.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Settings, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if cli.ServerURL != nil {
		cfg.ServerURL = *cli.ServerURL
	}

	if cli.Workspace != nil {
		cfg.Workspace = *cli.Workspace
	}

	return buildSettings(cfg)
}

// ResolvePath returns the config file path the override chain would use,
// for the watcher and diagnostics.
func ResolvePath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.ServerURL != "" {
		cfg.ServerURL = env.ServerURL
	}

	if env.AccountID != "" {
		cfg.AccountID = env.AccountID
	}

	if env.Workspace != "" {
		cfg.Workspace = env.Workspace
	}

	if env.DataDir != "" {
		cfg.Storage.DataDir = env.DataDir
	}
}

// buildSettings converts a validated Config into parsed Settings: durations
// parsed, data paths derived.
func buildSettings(cfg *Config) (*Settings, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	pollInterval, err := parseInterval(cfg.Sync.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("sync.poll_interval: %w", err)
	}

	debounce, err := parseInterval(cfg.Sync.DebounceInterval)
	if err != nil {
		return nil, fmt.Errorf("sync.debounce_interval: %w", err)
	}

	connectTimeout, err := parseInterval(cfg.Network.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("network.connect_timeout: %w", err)
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	return &Settings{
		ServerURL:        strings.TrimRight(cfg.ServerURL, "/"),
		AccountID:        cfg.AccountID,
		Workspace:        cfg.Workspace,
		PollInterval:     pollInterval,
		DebounceInterval: debounce,
		ConflictPolicy:   cfg.Sync.ConflictPolicy,
		Websocket:        cfg.Sync.Websocket,
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, dbFileName),
		TokenPath:        filepath.Join(dataDir, tokenFileName),
		LogLevel:         cfg.Logging.LogLevel,
		LogFormat:        cfg.Logging.LogFormat,
		ConnectTimeout:   connectTimeout,
		UserAgent:        cfg.Network.UserAgent,
	}, nil
}

// parseInterval parses a duration string, accepting "0" as a disabled
// interval.
func parseInterval(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}

	return d, nil
}
