package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftpad/driftpad/cmd/driftpad/commands"
	"github.com/driftpad/driftpad/conf"
	"github.com/driftpad/driftpad/logger"
)

var rootCmd = &cobra.Command{
	Use:   "driftpad",
	Short: "driftpad - multi-device sync backend for notes and todos",
	Long: `driftpad - a synchronization backend for a personal notes/todo app.

Many devices mutate the same per-user data set, offline or concurrently;
driftpad reconciles those mutations through last-write-wins conflict
resolution over an append-only change log, and can mirror notes with an
external Memos store via content-hash reconciliation.

Examples:
  driftpad serve           # Start the sync server
  driftpad migrate         # Apply pending schema migrations
  driftpad version         # Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetLevel(cfg.Log.Level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
