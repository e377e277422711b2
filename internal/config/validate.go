package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validConflictPolicies = map[string]bool{
	"prompt":      true,
	"keep-both":   true,
	"keep-local":  true,
	"keep-remote": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
	"auto": true,
}

// Validate checks a Config for structural errors. It does not require
// ServerURL or AccountID to be set - commands that need them enforce that
// themselves, so config-free commands like "quillsync login" still work.
func Validate(cfg *Config) error {
	if cfg.ServerURL != "" {
		u, err := url.Parse(cfg.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("server_url %q must be an http(s) URL", cfg.ServerURL)
		}
	}

	if cfg.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}

	if strings.ContainsAny(cfg.Workspace, "/ ") {
		return fmt.Errorf("workspace %q must not contain slashes or spaces", cfg.Workspace)
	}

	if !validConflictPolicies[cfg.Sync.ConflictPolicy] {
		return fmt.Errorf("sync.conflict_policy %q: must be one of prompt, keep-both, keep-local, keep-remote", cfg.Sync.ConflictPolicy)
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		return fmt.Errorf("logging.log_level %q: must be one of debug, info, warn, error", cfg.Logging.LogLevel)
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		return fmt.Errorf("logging.log_format %q: must be one of text, json, auto", cfg.Logging.LogFormat)
	}

	if _, err := parseInterval(cfg.Sync.PollInterval); err != nil {
		return fmt.Errorf("sync.poll_interval: %w", err)
	}

	if _, err := parseInterval(cfg.Sync.DebounceInterval); err != nil {
		return fmt.Errorf("sync.debounce_interval: %w", err)
	}

	if _, err := parseInterval(cfg.Network.ConnectTimeout); err != nil {
		return fmt.Errorf("network.connect_timeout: %w", err)
	}

	return nil
}
