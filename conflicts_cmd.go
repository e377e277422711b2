package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quillsync/internal/sync"
)

func newConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and resolve sync conflicts",
		Long: `List entities where both the local copy and the server copy changed
since the last sync. Resolve them one at a time with 'conflicts resolve'.`,
		RunE: runConflictsList,
	}

	cmd.AddCommand(newConflictsResolveCmd())

	return cmd
}

// conflictJSON is the machine-readable rendering of one conflict.
type conflictJSON struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	LocalRevision  int64  `json:"local_revision"`
	RemoteRevision int64  `json:"remote_revision"`
	LocalUpdated   int64  `json:"local_updated_at"`
	RemoteUpdated  int64  `json:"remote_updated_at"`
}

func runConflictsList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rt, err := buildRuntime(cc)
	if err != nil {
		return err
	}
	defer rt.Close(cc)

	conflicts, err := rt.Engine.DetectConflicts(cmd.Context(), cc.Settings.Workspace)
	if err != nil {
		return fmt.Errorf("detecting conflicts: %w", err)
	}

	if cc.Flags.JSON {
		out := make([]conflictJSON, 0, len(conflicts))
		for _, c := range conflicts {
			out = append(out, conflictJSON{
				ID:             c.Local.ID,
				Kind:           string(c.Local.Kind),
				Title:          c.Local.Title,
				LocalRevision:  c.Local.Revision,
				RemoteRevision: c.Remote.Revision,
				LocalUpdated:   c.Local.UpdatedAt,
				RemoteUpdated:  c.Remote.UpdatedAt,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(conflicts) == 0 {
		fmt.Println("No conflicts.")

		return nil
	}

	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		rows = append(rows, []string{
			c.Local.ID,
			string(c.Local.Kind),
			truncate(c.Local.Title, 40),
			fmt.Sprintf("r%d @ %s", c.Local.Revision, formatMilli(c.Local.UpdatedAt)),
			fmt.Sprintf("r%d @ %s", c.Remote.Revision, formatMilli(c.Remote.UpdatedAt)),
		})
	}

	printTable(os.Stdout, []string{"ID", "KIND", "TITLE", "LOCAL", "REMOTE"}, rows)
	fmt.Printf("\n%d conflicts. Resolve with: quillsync conflicts resolve <id> --strategy=<keep-local|keep-remote|keep-both>\n", len(conflicts))

	return nil
}

func newConflictsResolveCmd() *cobra.Command {
	var flagStrategy string

	cmd := &cobra.Command{
		Use:   "resolve <entity-id>",
		Short: "Resolve one conflict",
		Long: `Resolve a conflict by entity id.

Strategies:
  keep-local   keep your edits, overwriting the server's version
  keep-remote  take the server's version, discarding your edits
  keep-both    keep the server's version under the original id and your
               edits as a new copy (default)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflictsResolve(cmd, args[0], flagStrategy)
		},
	}

	cmd.Flags().StringVar(&flagStrategy, "strategy", string(sync.KeepBoth), "resolution strategy")

	return cmd
}

func runConflictsResolve(cmd *cobra.Command, entityID, strategy string) error {
	cc := mustCLIContext(cmd.Context())

	switch sync.Strategy(strategy) {
	case sync.KeepLocal, sync.KeepRemote, sync.KeepBoth:
	default:
		return fmt.Errorf("unknown strategy %q: must be keep-local, keep-remote, or keep-both", strategy)
	}

	rt, err := buildRuntime(cc)
	if err != nil {
		return err
	}
	defer rt.Close(cc)

	if err := rt.Engine.ResolveConflict(cmd.Context(), cc.Settings.Workspace, entityID, sync.Strategy(strategy)); err != nil {
		return err
	}

	cc.Statusf("Resolved %s with %s.\n", entityID, strategy)

	return nil
}
