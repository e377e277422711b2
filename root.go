package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/quillnotes/quillsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "quillsync",
		Short:   "Offline-first note sync client",
		Long:    "A local-first sync client for Quill notes: edit offline, sync when connected.",
		Version: version,
		// Silence cobra's default error/usage printing - main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := buildCLIContext(cmd, &flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.Workspace, "workspace", "", "workspace to operate on")
	cmd.PersistentFlags().StringVar(&flags.ServerURL, "server", "", "note server base URL")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConflictsCmd())

	return cmd
}

// buildCLIContext resolves configuration through the override chain and
// builds the logger. Commands annotated to skip config still get a logger
// and flags; their Settings field is nil.
func buildCLIContext(cmd *cobra.Command, flags *CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{
		Flags: *flags,
		Env:   config.ReadEnvOverrides(),
		CLI:   config.CLIOverrides{ConfigPath: flags.ConfigPath},
	}

	// Only pass flags to the resolver if the user explicitly set them.
	if cmd.Flags().Changed("workspace") {
		cc.CLI.Workspace = &flags.Workspace
	}

	if cmd.Flags().Changed("server") {
		cc.CLI.ServerURL = &flags.ServerURL
	}

	if cmd.Annotations[skipConfigAnnotation] != "true" {
		settings, err := config.Resolve(cc.Env, cc.CLI)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}

		cc.Settings = settings
	}

	cc.Logger = buildLogger(cc.Settings, flags)

	return cc, nil
}

// buildLogger creates an slog.Logger from the resolved config and CLI flags.
// Config provides the baseline level and format; --verbose and --quiet
// override because CLI flags always win. Format "auto" picks text on a
// terminal and JSON otherwise, so piped logs stay machine-readable.
func buildLogger(settings *config.Settings, flags *CLIFlags) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if settings != nil {
		switch settings.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = settings.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// requireServerURL verifies the resolved config names a server.
func requireServerURL(cc *CLIContext) error {
	if cc.Settings == nil || cc.Settings.ServerURL == "" {
		return fmt.Errorf("no server configured: set server_url in the config file, %s, or pass --server", config.EnvServerURL)
	}

	return nil
}

// requireAccountID verifies the resolved config names an account.
func requireAccountID(cc *CLIContext) error {
	if cc.Settings == nil || cc.Settings.AccountID == "" {
		return fmt.Errorf("no account configured: set account_id in the config file or %s", config.EnvAccountID)
	}

	return nil
}

// defaultHTTPClient returns an HTTP client with the configured timeout.
func defaultHTTPClient(cc *CLIContext) *http.Client {
	return &http.Client{Timeout: cc.Settings.ConnectTimeout}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
