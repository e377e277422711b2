package main

import (
	"context"
	"log/slog"

	"github.com/quillnotes/quillsync/internal/config"
)

// skipConfigAnnotation marks commands that handle configuration themselves.
// Login must work before any config exists.
const skipConfigAnnotation = "quillsync_skip_config"

// CLIFlags holds the parsed persistent flag values.
type CLIFlags struct {
	ConfigPath string
	Workspace  string
	ServerURL  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration, logger, and flags through
// cobra's command context to every subcommand.
type CLIContext struct {
	Flags    CLIFlags
	Logger   *slog.Logger
	Settings *config.Settings
	Env      config.EnvOverrides
	CLI      config.CLIOverrides
}

type cliContextKey struct{}

// withCLIContext attaches a CLIContext to a context.
func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext retrieves the CLIContext installed by the root pre-run.
// Panics if missing - that is a wiring bug, not a runtime condition.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}
