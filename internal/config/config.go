// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for quillsync. It supports a three-layer
// override chain (defaults -> config file -> environment -> CLI flags) and
// live reloading of the config file for long-running watch mode.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// ServerURL is the base URL of the note server, e.g.
	// "https://sync.example.com". Required for every command except login
	// status display.
	ServerURL string `toml:"server_url"`

	// AccountID identifies the local account; it scopes all database rows
	// so multiple accounts can share one database file.
	AccountID string `toml:"account_id"`

	// Workspace is the default workspace synced when --workspace is not
	// given on the command line.
	Workspace string `toml:"workspace"`

	Sync    SyncConfig    `toml:"sync"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// SyncConfig controls sync engine behavior: polling cadence, conflict
// policy, and whether the websocket change feed is used in watch mode.
type SyncConfig struct {
	// PollInterval is how often watch mode runs a timer-driven cycle.
	// "0" disables the timer (change-feed only).
	PollInterval string `toml:"poll_interval"`

	// ConflictPolicy is what happens to diverged entities during a cycle:
	// "prompt" pauses and surfaces them, "keep-both" / "keep-local" /
	// "keep-remote" resolve automatically.
	ConflictPolicy string `toml:"conflict_policy"`

	// Websocket enables the server change feed in watch mode. When false,
	// watch mode is timer-only.
	Websocket bool `toml:"websocket"`

	// DebounceInterval is how long watch mode waits after a change
	// notification before syncing, so edit bursts collapse into one cycle.
	DebounceInterval string `toml:"debounce_interval"`
}

// StorageConfig controls where local state lives.
type StorageConfig struct {
	// DataDir holds the state database and token file. Empty means the
	// platform default data directory.
	DataDir string `toml:"data_dir"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`  // debug, info, warn, error
	LogFormat string `toml:"log_format"` // text, json, auto
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Workspace  *string // --workspace flag
	ServerURL  *string // --server flag
}

// Settings is the fully resolved, parsed configuration handed to the rest
// of the program: string durations converted, paths made absolute, defaults
// applied.
type Settings struct {
	ServerURL string
	AccountID string
	Workspace string

	PollInterval     time.Duration
	DebounceInterval time.Duration
	ConflictPolicy   string
	Websocket        bool

	DataDir   string
	DBPath    string
	TokenPath string

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	UserAgent      string
}
