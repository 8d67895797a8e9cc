// Command mindctl is the operator tool for a mind-weather deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/mind-weather/internal/app"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/db"
	"github.com/suPer8Hu/mind-weather/internal/logging"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(load func() config.Config) *cobra.Command {
	var cfg config.Config
	var logger zerolog.Logger

	root := &cobra.Command{
		Use:           "mindctl",
		Short:         "Operate the mind-weather store",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = load()
			logger = logging.New(cfg.LogLevel, "console")
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the relational store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := db.Migrate(gdb); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the last schema migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			if err := db.Rollback(gdb); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every session and thought",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			ctx := cmd.Context()
			storage, err := app.OpenStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()
			if err := storage.Store.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s store\n", cfg.StoreBackend)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session and its thoughts as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storage, err := app.OpenStorage(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			sess, err := storage.Store.GetSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			thoughts, err := storage.Store.GetThoughtsBySession(ctx, sess.ID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{"session": sess, "thoughts": thoughts}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	root.AddCommand(migrateCmd, rollbackCmd, clearCmd, showCmd)
	root.SetContext(context.Background())
	return root
}
