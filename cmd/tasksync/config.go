package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robsonferreira/tasksync/internal/config"
	"github.com/robsonferreira/tasksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the .env file, the
config file, environment variables and flags. The Notion token is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		if cfg.File != "" {
			fmt.Printf("# %s\n", cfg.File)
		} else {
			fmt.Println("# no config file found, showing defaults and overrides")
		}
		fmt.Print(string(data))

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "\n%s %v\n", ui.RenderWarn("⚠"), err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := "tasksync.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println("   Set notion.token and notion.database_id, or export NOTION_TOKEN and ID_DO_BANCO.")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
