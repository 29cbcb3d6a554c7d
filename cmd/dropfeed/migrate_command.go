package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/dropfeed/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQLite schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			s, err := store.OpenSQLStore(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date at %s\n", cfg.Store.Path)
			return nil
		},
	}
}
