package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/db"
	tasksync "github.com/robsonferreira/tasksync/internal/sync"
	"github.com/robsonferreira/tasksync/internal/task"
	"github.com/robsonferreira/tasksync/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Create, list, update and delete tasks",
	Long: `Manage tasks through the sync coordinator.

Writes reach Notion, SQLite and the mirror in order. Reads come from SQLite
only. Status and priority accept either the canonical name (NOT_STARTED,
IN_PROGRESS, DONE / ATTENTION, LOW, HIGH) or the board label.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.coord.Create(cmd.Context(), task.CreateInput{
			Title:    args[0],
			Status:   status,
			Priority: priority,
		})
		if err != nil {
			return describe(err)
		}

		fmt.Printf("%s Created %s\n", ui.RenderPass("✓"), t.ID)
		fmt.Print(ui.TaskDetail(t))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter db.ListFilter
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			s, err := task.ParseStatus(v)
			if err != nil {
				return err
			}
			filter.Status = s
		}
		if v, _ := cmd.Flags().GetString("priority"); v != "" {
			p, err := task.ParsePriority(v)
			if err != nil {
				return err
			}
			filter.Priority = p
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.store.ListTasks(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found")
			return nil
		}
		fmt.Print(ui.TaskTable(tasks, ui.TerminalWidth(120)))
		fmt.Printf("\n%s\n", ui.RenderMuted(fmt.Sprintf("%d task(s)", len(tasks))))
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.store.GetTask(cmd.Context(), args[0])
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("task %s not found", args[0])
		}
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(t)
		}
		fmt.Print(ui.TaskDetail(t))
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task's title, status or priority",
	Example: `  tasksync task update 3f2a... --status DONE
  tasksync task update 3f2a... --title "Ship v2" --priority HIGH`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in task.UpdateInput
		for name, dst := range map[string]**string{
			"title":    &in.Title,
			"status":   &in.Status,
			"priority": &in.Priority,
		} {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetString(name)
				*dst = &v
			}
		}
		if in.Empty() {
			return fmt.Errorf("nothing to update: pass --title, --status or --priority")
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.coord.Update(cmd.Context(), args[0], in)
		if err != nil {
			return describe(err)
		}

		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), t.ID)
		fmt.Print(ui.TaskDetail(t))
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Archive a task in Notion and delete it locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.coord.Delete(cmd.Context(), args[0])
		if err != nil {
			return describe(err)
		}
		fmt.Printf("%s Deleted %s (%s)\n", ui.RenderPass("✓"), t.ID, t.Title)
		return nil
	},
}

// describe adds recovery hints to divergent failures.
func describe(err error) error {
	var e *tasksync.Error
	if !errors.As(err, &e) || !e.Divergent() {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s Stores diverged (%s)\n", ui.RenderWarn("⚠"), tasksync.KindName(e.Kind))
	if e.TaskID != "" {
		fmt.Fprintf(os.Stderr, "   Task:        %s\n", e.TaskID)
	}
	if e.RemotePageID != "" {
		fmt.Fprintf(os.Stderr, "   Remote page: %s\n", e.RemotePageID)
	}
	fmt.Fprintf(os.Stderr, "   Run 'tasksync reconcile' to repair.\n")
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	taskCreateCmd.Flags().StringP("status", "s", string(task.StatusNotStarted), "Initial status")
	taskCreateCmd.Flags().StringP("priority", "p", string(task.PriorityLow), "Priority")

	taskListCmd.Flags().StringP("status", "s", "", "Filter by status")
	taskListCmd.Flags().StringP("priority", "p", "", "Filter by priority")
	taskListCmd.Flags().IntP("limit", "n", 0, "Maximum tasks to show (0 = all)")
	taskListCmd.Flags().Bool("json", false, "Output as JSON")

	taskShowCmd.Flags().Bool("json", false, "Output as JSON")

	taskUpdateCmd.Flags().StringP("title", "t", "", "New title")
	taskUpdateCmd.Flags().StringP("status", "s", "", "New status")
	taskUpdateCmd.Flags().StringP("priority", "p", "", "New priority")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskUpdateCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
