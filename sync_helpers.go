package main

import (
	"fmt"
	"os"

	"github.com/quillnotes/quillsync/internal/api"
	"github.com/quillnotes/quillsync/internal/config"
	"github.com/quillnotes/quillsync/internal/sync"
)

// appRuntime bundles the store, API client, and engine for one command
// invocation. Close releases the database.
type appRuntime struct {
	Store  *sync.SQLiteStore
	Client *api.Client
	Engine *sync.Engine
	Token  api.TokenSource
}

// Close checkpoints and closes the state database. Errors are reported but
// not fatal - the command's real work is already done.
func (rt *appRuntime) Close(cc *CLIContext) {
	if err := rt.Store.Close(); err != nil {
		cc.Logger.Warn("closing state database", "error", err.Error())
	}
}

// buildRuntime wires the full sync stack from resolved settings: saved
// credentials, the HTTP client, the SQLite store (running migrations), and
// the engine.
func buildRuntime(cc *CLIContext) (*appRuntime, error) {
	if err := requireServerURL(cc); err != nil {
		return nil, err
	}

	if err := requireAccountID(cc); err != nil {
		return nil, err
	}

	settings := cc.Settings

	if err := os.MkdirAll(settings.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	token, err := api.TokenSourceFromPath(settings.ServerURL, settings.TokenPath, cc.Logger)
	if err != nil {
		return nil, err
	}

	store, err := sync.NewStore(settings.DBPath, cc.Logger)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(settings.ServerURL, defaultHTTPClient(cc), token, cc.Logger)

	engine := sync.NewEngine(&sync.EngineConfig{
		Store:     store,
		Remote:    client,
		AccountID: settings.AccountID,
		Policy:    sync.ConflictPolicy(settings.ConflictPolicy),
		Logger:    cc.Logger,
	})

	return &appRuntime{Store: store, Client: client, Engine: engine, Token: token}, nil
}

// newListener builds the websocket change-feed listener for watch mode.
func newListener(cc *CLIContext, rt *appRuntime) *api.Listener {
	return api.NewListener(cc.Settings.ServerURL, rt.Token, cc.Logger)
}

// resolveLoginSettings resolves configuration for the auth commands, which
// skip the root pre-run config loading so they work before a config file
// exists. Only the server URL is required.
func resolveLoginSettings(cc *CLIContext) (*config.Settings, error) {
	settings, err := config.Resolve(cc.Env, cc.CLI)
	if err != nil {
		return nil, err
	}

	if settings.ServerURL == "" {
		return nil, fmt.Errorf("no server configured: set server_url in the config file, %s, or pass --server", config.EnvServerURL)
	}

	return settings, nil
}
