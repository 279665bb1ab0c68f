package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/spectral-tracks/internal/store"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema.",
	}

	open := func() (*store.Store, error) {
		path := v.GetString("db")
		if path == "" {
			return nil, fmt.Errorf("--db is required")
		}
		return store.Open(path)
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.MigrateUp(); err != nil {
				return err
			}
			ver, _, err := s.MigrateVersion()
			if err != nil {
				return err
			}
			cmd.Printf("schema at version %d\n", ver)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			ver, dirty, err := s.MigrateVersion()
			if err != nil {
				return err
			}
			cmd.Printf("version %d", ver)
			if dirty {
				cmd.Print(" (dirty)")
			}
			cmd.Println()
			return nil
		},
	})
	return migrateCmd
}
