package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quillsync/internal/sync"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past sync cycles",
		Long: `List recent sync cycles, newest first: what kind of cycle ran, how
much moved in each direction, conflicts found, duration, and any error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistoryList(cmd, flagLimit)
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", defaultHistoryLimit, "maximum entries to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all sync history entries",
		RunE:  runHistoryClear,
	})

	return cmd
}

// historyEntryJSON is the machine-readable rendering of one history entry.
type historyEntryJSON struct {
	ID        string `json:"id"`
	SyncType  string `json:"sync_type"`
	Pushed    int    `json:"pushed"`
	Pulled    int    `json:"pulled"`
	Conflicts int    `json:"conflicts"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func runHistoryList(cmd *cobra.Command, limit int) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cc)
	if err != nil {
		return err
	}
	defer rt.Close(cc)

	entries, err := rt.Store.ListHistory(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}

	if cc.Flags.JSON {
		return printHistoryJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No sync history.")

		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		errCol := ""
		if e.Error != "" {
			errCol = truncate(e.Error, 40)
		}

		rows = append(rows, []string{
			formatMilli(e.CreatedAt),
			string(e.SyncType),
			fmt.Sprintf("%d", e.PushedCount),
			fmt.Sprintf("%d", e.PulledCount),
			fmt.Sprintf("%d", e.ConflictCount),
			formatDuration(time.Duration(e.DurationMs) * time.Millisecond),
			errCol,
		})
	}

	printTable(os.Stdout, []string{"WHEN", "TYPE", "PUSHED", "PULLED", "CONFLICTS", "DURATION", "ERROR"}, rows)

	return nil
}

func printHistoryJSON(entries []*sync.HistoryEntry) error {
	out := make([]historyEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryJSON{
			ID:        e.ID,
			SyncType:  string(e.SyncType),
			Pushed:    e.PushedCount,
			Pulled:    e.PulledCount,
			Conflicts: e.ConflictCount,
			Duration:  formatDuration(time.Duration(e.DurationMs) * time.Millisecond),
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func runHistoryClear(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cc)
	if err != nil {
		return err
	}
	defer rt.Close(cc)

	if err := rt.Store.ClearHistory(cmd.Context()); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	cc.Statusf("Sync history cleared.\n")

	return nil
}
