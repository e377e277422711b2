package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quillsync/internal/config"
	"github.com/quillnotes/quillsync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var (
		flagWatch  bool
		flagEntity string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the workspace with the server",
		Long: `Run a full sync cycle: pull remote changes, reconcile against local
edits, and push everything the server is missing.

With --watch, keep running and sync on a timer and on server change
notifications until interrupted. With --entity, sync a single entity by id;
a diverged entity is resolved by keeping both copies.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			rt, err := buildRuntime(cc)
			if err != nil {
				return err
			}
			defer rt.Close(cc)

			if flagEntity != "" {
				return runSyncEntity(cmd.Context(), cc, rt, flagEntity)
			}

			if flagWatch {
				return runSyncWatch(cmd.Context(), cc, rt)
			}

			return runSyncOnce(cmd.Context(), cc, rt)
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep running and sync continuously")
	cmd.Flags().StringVar(&flagEntity, "entity", "", "sync a single entity by id")

	return cmd
}

func runSyncOnce(ctx context.Context, cc *CLIContext, rt *appRuntime) error {
	res, err := rt.Engine.SyncNow(ctx, cc.Settings.Workspace)
	if err != nil {
		return err
	}

	return reportResult(cc, res)
}

func runSyncEntity(ctx context.Context, cc *CLIContext, rt *appRuntime, entityID string) error {
	res, err := rt.Engine.SyncEntity(ctx, cc.Settings.Workspace, entityID)
	if err != nil {
		return err
	}

	return reportResult(cc, res)
}

// runSyncWatch runs the scheduler until interrupted. The poll interval
// follows config file edits live; an immediate first cycle runs before the
// timer takes over.
func runSyncWatch(ctx context.Context, cc *CLIContext, rt *appRuntime) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := sync.NewScheduler(&sync.SchedulerConfig{
		Engine:      rt.Engine,
		WorkspaceID: cc.Settings.Workspace,
		Interval:    cc.Settings.PollInterval,
		Debounce:    cc.Settings.DebounceInterval,
		Notifier:    watchNotifier(cc, rt),
		Logger:      cc.Logger,
		OnResult: func(res *sync.SyncResult) {
			if err := reportResult(cc, res); err != nil {
				cc.Logger.Warn("rendering sync result", "error", err.Error())
			}
		},
	})

	// Follow config edits: only the poll interval can change without a
	// restart, everything else (server, workspace, storage) is bound at
	// startup.
	cfgPath := config.ResolvePath(cc.Env, cc.CLI)
	go func() {
		err := config.Watch(ctx, cfgPath, cc.Env, cc.CLI, cc.Logger, func(s *config.Settings) {
			scheduler.SetInterval(s.PollInterval)
		})
		if err != nil && ctx.Err() == nil {
			cc.Logger.Warn("config watcher stopped", "error", err.Error())
		}
	}()

	scheduler.Trigger()

	cc.Statusf("Watching workspace %q (poll interval %s). Ctrl-C to stop.\n",
		cc.Settings.Workspace, cc.Settings.PollInterval)

	if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	cc.Statusf("\nStopped.\n")

	return nil
}

// watchNotifier returns the change-feed source for watch mode, or nil when
// the websocket feed is disabled in config.
func watchNotifier(cc *CLIContext, rt *appRuntime) sync.NotificationSource {
	if !cc.Settings.Websocket {
		return nil
	}

	return newListener(cc, rt)
}

// syncResultJSON is the machine-readable rendering of a sync outcome.
type syncResultJSON struct {
	Status      string   `json:"status"`
	SyncType    string   `json:"sync_type"`
	Pushed      int      `json:"pushed"`
	Pulled      int      `json:"pulled"`
	Conflicts   int      `json:"conflicts"`
	Duration    string   `json:"duration"`
	Error       string   `json:"error,omitempty"`
	ConflictIDs []string `json:"conflict_ids,omitempty"`
}

// reportResult renders a cycle outcome. A paused-on-conflicts or failed
// cycle is reported through the error return so the process exits non-zero.
func reportResult(cc *CLIContext, res *sync.SyncResult) error {
	if cc.Flags.JSON {
		out := syncResultJSON{
			Status:      string(res.Status),
			SyncType:    string(res.SyncType),
			Pushed:      res.Pushed,
			Pulled:      res.Pulled,
			Conflicts:   res.Conflicts,
			Duration:    formatDuration(res.Duration),
			ConflictIDs: res.ConflictIDs,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
	} else {
		cc.Statusf("Synced: %d pushed, %d pulled, %d conflicts (%s)\n",
			res.Pushed, res.Pulled, res.Conflicts, formatDuration(res.Duration))

		for _, ee := range res.EntityErrors {
			fmt.Fprintf(os.Stderr, "  entity %s: %v\n", ee.EntityID, ee.Err)
		}
	}

	if res.Status == sync.StatusConflict {
		return fmt.Errorf("%d entities are in conflict; run 'quillsync conflicts' to review", len(res.ConflictIDs))
	}

	if res.Err != nil {
		return res.Err
	}

	return nil
}
