package ctl

import (
	"fmt"

	"github.com/dalemusser/recoveryhub/internal/app/bootstrap"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create MongoDB indexes and, for the Postgres board, its tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := a.mongo(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			pool, err := a.postgres(ctx)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			if err := bootstrap.Migrate(ctx, db, pool, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
