// Command unitsync runs the offline persistence and sync layer for the
// unit converter: a local SQLite store of conversions and preferences, a
// WebSocket control surface for the page, and a background reconciler that
// pushes unsynced records to the remote API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "unitsync",
	Short: "Offline cache and sync layer for the unit converter",
	Long: `unitsync keeps the unit converter usable offline.

It maintains a local SQLite database of conversions and preferences,
serves the converter's control surface over WebSocket, and reconciles
unsynced records with the remote API whenever connectivity allows.

Records are durable the moment they are written; sync is best-effort
and retried until it succeeds.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default unitsync.toml)")
	rootCmd.PersistentFlags().String("db", ".unitsync/unitsync.db", "path to the local database")
	_ = viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads the config file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("unitsync")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.unitsync")
		}
	}

	viper.SetEnvPrefix("UNITSYNC")
	viper.AutomaticEnv()

	viper.SetDefault("db.path", ".unitsync/unitsync.db")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("remote.timeout", 30*time.Second)
	viper.SetDefault("sync.debounce", 250*time.Millisecond)
	viper.SetDefault("sync.retry", time.Minute)
	viper.SetDefault("assets.dir", ".unitsync/assets")
	viper.SetDefault("assets.version", "v1")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; only complain when one was named.
		if cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
