package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "QUILLSYNC_CONFIG"
	EnvServerURL = "QUILLSYNC_SERVER_URL"
	EnvAccountID = "QUILLSYNC_ACCOUNT_ID"
	EnvWorkspace = "QUILLSYNC_WORKSPACE"
	EnvDataDir   = "QUILLSYNC_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string
	ServerURL  string
	AccountID  string
	Workspace  string
	DataDir    string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers apply the relevant fields during Resolve.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		AccountID:  os.Getenv(EnvAccountID),
		Workspace:  os.Getenv(EnvWorkspace),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
