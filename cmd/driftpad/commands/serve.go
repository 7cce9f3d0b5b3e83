package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftpad/driftpad/conf"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
	"github.com/driftpad/driftpad/server"
)

// ServeCmd starts the sync server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the driftpad sync server",
	Long: `Start the HTTP server exposing push/pull synchronization, collection
tree operations, external reconciliation, and the websocket change feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := conf.Load()
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}

		dbPath, _ := cmd.Flags().GetString("database")
		database, err := openDatabase(cfg, dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		srv := server.New(cfg, database)

		// Hot-reload the log level when the config file changes.
		if path := conf.GetViper().ConfigFileUsed(); path != "" {
			watcher, werr := conf.NewConfigWatcher(path)
			if werr != nil {
				logger.Warnw("config watch unavailable",
					logger.FieldPath, path,
					logger.FieldError, werr)
			} else {
				watcher.OnReload(func(c *conf.Config) error {
					logger.SetLevel(c.Log.Level)
					return nil
				})
				watcher.Start()
				defer watcher.Stop()
			}
		}

		// Shut down cleanly on SIGINT/SIGTERM so in-flight pushes commit.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Infow("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	ServeCmd.Flags().StringP("database", "d", "", "Database path (overrides configuration)")
}
