package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/ui"
)

var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	GroupID: "sync",
	Short:   "Replay the divergence journal",
	Long: `Repair stores that fell out of step on an earlier write.

For each open journal entry:
  - local_write_failed:  archive the orphaned Notion page, unless a local
                         record claims it
  - remote_sync_failed:  push the local record to its Notion page
  - local_delete_failed: finish deleting the local record and mirror row

Entries that are repaired are marked resolved. Failures stay open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("%s Reconciling...\n", ui.RenderAccent("🔄"))
		start := time.Now()

		report, err := a.coord.Reconcile(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%s Reconcile complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Examined: %d\n", report.Examined)
		fmt.Printf("   Resolved: %d\n", report.Resolved)
		fmt.Printf("   Skipped:  %d\n", report.Skipped)
		if report.Failed > 0 {
			fmt.Printf("   %s %d\n", ui.RenderFail("Failed:"), report.Failed)
			for _, e := range report.Errors {
				fmt.Printf("     %s\n", ui.RenderMuted(e))
			}
		}
		return nil
	},
}

var divergencesCmd = &cobra.Command{
	Use:     "divergences",
	GroupID: "sync",
	Short:   "Show open divergence journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.OpenDivergences(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Printf("%s All stores in step\n", ui.RenderPass("✓"))
			return nil
		}
		fmt.Print(ui.DivergenceTable(entries))
		fmt.Printf("\n%d open. Run 'tasksync reconcile' to repair.\n", len(entries))
		return nil
	},
}

var mirrorCmd = &cobra.Command{
	Use:     "mirror",
	GroupID: "sync",
	Short:   "Manage the .xlsx mirror",
}

var mirrorRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rewrite the mirror from the local store",
	Long: `Replace every row of the mirror sheet with the linked tasks in SQLite.

Use this after editing the workbook by hand or when it is lost. Tasks
without a Notion page are left out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.coord.RebuildMirror(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s Mirror rebuilt: %d row(s)\n", ui.RenderPass("✓"), rows)
		fmt.Printf("   File: %s\n", a.mirror.Path())
		return nil
	},
}

func init() {
	divergencesCmd.Flags().Bool("json", false, "Output as JSON")

	mirrorCmd.AddCommand(mirrorRebuildCmd)
	rootCmd.AddCommand(reconcileCmd, divergencesCmd, mirrorCmd)
}
