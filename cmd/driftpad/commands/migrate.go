package commands

import (
	"github.com/spf13/cobra"

	"github.com/driftpad/driftpad/conf"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
)

// MigrateCmd applies pending schema migrations and exits.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
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

		logger.Infow("migrations applied", logger.FieldPath, cfg.Database.Path)
		return nil
	},
}

func init() {
	MigrateCmd.Flags().StringP("database", "d", "", "Database path (overrides configuration)")
}
