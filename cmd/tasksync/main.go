package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/config"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Keep Notion, a local SQLite store and an .xlsx mirror in step",
	Long: `tasksync manages a task list held in three places at once:

  - a Notion database (the shared board)
  - a local SQLite database (the canonical record store)
  - an .xlsx workbook (a spreadsheet view for people outside Notion)

Every create, update and delete goes through one coordinator that orders the
writes and records any store that falls out of step. Run 'tasksync serve' for
the HTTP API, or use the task commands directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// flagKeys binds root flags to config keys.
var flagKeys = map[string]string{
	"database.path": "db",
	"mirror.path":   "mirror",
	"server.addr":   "addr",
	"log.file":      "log-file",
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: tasksync.yaml in ., .tasksync or ~/.config/tasksync)")
	flags.String("env-file", ".env", "Dotenv file loaded before reading config")
	flags.String("db", "", "Path to the SQLite database")
	flags.String("mirror", "", "Path to the .xlsx mirror")
	flags.String("addr", "", "HTTP listen address")
	flags.String("log-file", "", "Also write logs to this file")
}

// loadConfig reads configuration with the root flags applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	return config.Load(config.Options{
		ConfigFile: file,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
		FlagKeys:   flagKeys,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
