package main

import (
	sqlstore "github.com/goliatone/go-inbox/store/sql"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogProvider().GetLogger("inboxd")
			cfg, _, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			client, err := sqlstore.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
