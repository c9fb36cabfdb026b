package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/syncer"
	"github.com/tidemark/tidemark/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "tm",
	Short: "Local-first task manager with background sync",
	Long: `tm keeps your tasks in a local SQLite database and syncs them with a
remote server when one is reachable.

All commands work offline. Edits are recorded as dirty mutations and
pushed on the next sync; remote changes are pulled incrementally using
the server's version counter.`,
	SilenceUsage: true,
}

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/tidemark/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "path to the local task database")
	rootCmd.PersistentFlags().String("server", "", "sync server base URL")
	rootCmd.PersistentFlags().String("token", "", "sync server bearer token")

	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "tidemark"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TIDEMARK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

// storePath resolves the database location from config or the default
// ~/.local/share/tidemark/tasks.db.
func storePath() string {
	if p := viper.GetString("db"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "tasks.db"
	}
	return filepath.Join(home, ".local", "share", "tidemark", "tasks.db")
}

// openStore opens the local database, creating it on first use.
func openStore() *store.Store {
	st, err := store.Open(storePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening task database: %v\n", err)
		os.Exit(1)
	}
	return st
}

// newClient builds the sync transport from configuration. Exits when no
// server is configured, since every caller needs one.
func newClient() transport.Client {
	server := viper.GetString("server")
	if server == "" {
		fmt.Fprintf(os.Stderr, "Error: no sync server configured\n")
		fmt.Fprintf(os.Stderr, "Set 'server' in the config file or pass --server\n")
		os.Exit(1)
	}

	token := viper.GetString("token")
	return transport.NewHTTPClient(server, func(ctx context.Context) (string, error) {
		return token, nil
	})
}

func newCoordinator(st *store.Store, config *syncer.Config) *syncer.Coordinator {
	return syncer.New(st, newClient(), config)
}
