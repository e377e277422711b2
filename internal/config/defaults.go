package config

// Default values for configuration options. These are the starting layer of
// the override chain and are chosen so the tool works without a config file
// once the server URL is known.
const (
	defaultWorkspace        = "default"
	defaultPollInterval     = "5m"
	defaultDebounceInterval = "2s"
	defaultConflictPolicy   = "prompt"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultConnectTimeout   = "30s"
)

// DefaultConfig returns a Config populated with all default values. Used as
// the starting point for TOML decoding (so unset fields retain defaults)
// and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Workspace: defaultWorkspace,
		Sync: SyncConfig{
			PollInterval:     defaultPollInterval,
			ConflictPolicy:   defaultConflictPolicy,
			Websocket:        true,
			DebounceInterval: defaultDebounceInterval,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
		},
	}
}
