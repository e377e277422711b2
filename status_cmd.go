package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status for the workspace",
		Long: `Display the current sync state: pending local changes, unresolved
conflicts, time of the last successful cycle, and the last error if any.`,
		RunE: runStatus,
	}
}

// statusJSON is the machine-readable status rendering.
type statusJSON struct {
	Workspace     string `json:"workspace"`
	Status        string `json:"status"`
	LastSyncAt    int64  `json:"last_sync_at"`
	PendingCount  int    `json:"pending_count"`
	ConflictCount int    `json:"conflict_count"`
	LastError     string `json:"last_error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cc)
	if err != nil {
		return err
	}
	defer rt.Close(cc)

	st, err := rt.Engine.GetStatus(cmd.Context(), cc.Settings.Workspace)
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(statusJSON{
			Workspace:     cc.Settings.Workspace,
			Status:        string(st.Status),
			LastSyncAt:    st.LastSyncAt,
			PendingCount:  st.PendingCount,
			ConflictCount: st.ConflictCount,
			LastError:     st.LastError,
		})
	}

	fmt.Printf("Workspace: %s\n", cc.Settings.Workspace)
	fmt.Printf("Status:    %s\n", st.Status)
	fmt.Printf("Last sync: %s\n", formatMilli(st.LastSyncAt))
	fmt.Printf("Pending:   %d local changes\n", st.PendingCount)

	if st.ConflictCount > 0 {
		fmt.Printf("Conflicts: %d; run 'quillsync conflicts' to review\n", st.ConflictCount)
	}

	if st.LastError != "" {
		fmt.Printf("Last error: %s\n", st.LastError)
	}

	return nil
}
