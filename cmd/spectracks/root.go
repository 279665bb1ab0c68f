package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/spectral-tracks/internal/monitoring"
	"github.com/banshee-data/spectral-tracks/internal/version"
)

const envPrefix = "SPECTRACKS"

// newRootCmd builds the command tree. Each tree owns its viper instance so
// settings never leak between invocations.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:                "spectracks",
		Short:              "Cluster discriminated spectral points and build frequency tracks.",
		Version:            version.Version,
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfigFile(v); err != nil {
				return err
			}
			monitoring.SetDebug(v.GetBool("debug"))
			if v.GetBool("quiet") {
				monitoring.SetLogger(nil)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "Path to a CLI settings file (yaml, json or toml)")
	root.PersistentFlags().String("db", "", "SQLite database for runs and tracks")
	root.PersistentFlags().Bool("quiet", false, "Suppress logs and the track table")
	root.PersistentFlags().Bool("debug", false, "Log per-slice diagnostics")
	if err := v.BindPFlags(root.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("binding root flags: %v", err))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newRunCmd(v))
	root.AddCommand(newMigrateCmd(v))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfigFile reads the optional settings file. A missing default file
// is not an error; a missing explicit one is.
func loadConfigFile(v *viper.Viper) error {
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".spectracks")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Print(version.Summary("spectracks"))
		},
	}
}
