package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	identityservice "keystone/internal/identity/service"
	"keystone/internal/platform/config"
	"keystone/internal/platform/database"
	"keystone/internal/platform/logger"
	"keystone/internal/seeder"
	"keystone/internal/storage"
	"keystone/migrations"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func openDatabase() (config.Server, *database.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	pool, err := database.New(cfg.Database)
	if err != nil {
		return cfg, nil, err
	}
	if pool == nil {
		return cfg, nil, errNoDatabase
	}
	return cfg, pool, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, pool, err := openDatabase()
			if err != nil {
				return err
			}
			defer pool.Close() //nolint:errcheck // CLI exit path
			applied, err := database.NewMigrator(pool.DB(), migrations.FS, logger.New(cfg.LogLevel)).Up(cmd.Context())
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			if err == nil && len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return err
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the most recent migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			cfg, pool, err := openDatabase()
			if err != nil {
				return err
			}
			defer pool.Close() //nolint:errcheck // CLI exit path
			reverted, err := database.NewMigrator(pool.DB(), migrations.FS, logger.New(cfg.LogLevel)).Down(cmd.Context(), steps)
			for _, v := range reverted {
				fmt.Fprintln(cmd.OutOrStdout(), "reverted", v)
			}
			return err
		},
	}

	cmd.AddCommand(up, down)
	return cmd
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tenants, apps, users and grants from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := seeder.Load(file)
			if err != nil {
				return err
			}
			cfg, pool, err := openDatabase()
			if err != nil {
				return err
			}
			defer pool.Close() //nolint:errcheck // CLI exit path
			log := logger.New(cfg.LogLevel)

			repos := storage.Open(pool, nil)
			identities := identityservice.New(repos.Users, repos.Recovery, identityservice.WithLogger(log))
			stats, err := seeder.New(identities, repos.Tenants, repos.Apps, repos.Memberships, repos.Grants, log).Seed(cmd.Context(), seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created tenants=%d apps=%d users=%d memberships=%d grants=%d\n",
				stats.Tenants, stats.Apps, stats.Users, stats.Memberships, stats.Grants)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed.yaml", "seed file")
	return cmd
}
