package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shawbot/internal/app"
	"shawbot/internal/config"
)

const defaultConfigPath = "./shawbot.json"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shawbot",
		Short: "Shawbot posts text documents one fragment per tick",
		Long: `Shawbot walks a list of tagged text documents, cuts each paragraph into
post-sized fragments and publishes one fragment per scheduled tick.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to the config file (JSON or YAML)")

	root.AddCommand(
		newRunCmd(),
		newPreviewCmd(),
		newCursorCmd(),
		newStatusCmd(),
		newCtlCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	if p == "" {
		return defaultConfigPath
	}
	return p
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return app.LoadConfig(configPath(cmd))
}
