package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyegge/unitsync/internal/assets"
	"github.com/steveyegge/unitsync/internal/control"
	"github.com/steveyegge/unitsync/internal/daemon"
	"github.com/steveyegge/unitsync/internal/server"
	"github.com/steveyegge/unitsync/internal/syncer"
	"github.com/steveyegge/unitsync/internal/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control server and background sync daemon",
	Long: `Run the full offline stack:

  1. Opens the local database (created on first run)
  2. Serves the WebSocket control surface on /ws
  3. Serves cached converter assets at / (when assets.upstream is set)
  4. Runs the sync daemon, reconciling unsynced records with the remote

The page talks to this process; every write is durable locally before the
remote ever sees it.

Example usage:
  unitsync serve                  # defaults from unitsync.toml
  unitsync serve --port 9000`,
	Run: func(cmd *cobra.Command, args []string) {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			viper.Set("server.port", port)
		}

		logOut := os.Stderr.Name()
		baseLogger := log.New(os.Stderr, "", log.LstdFlags)
		if file := viper.GetString("log.file"); file != "" {
			rotator := &lumberjack.Logger{
				Filename:   file,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
			baseLogger.SetOutput(rotator)
			log.SetOutput(rotator)
			logOut = file
		}

		db := openDatabase()
		defer db.Close()

		registry := buildRegistry()
		trig := trigger.NewHost()
		writer, reader := buildRecords(db, registry, trig)

		reconciler := syncer.New(db, writer, buildTransmitter(),
			log.New(baseLogger.Writer(), "[sync] ", log.LstdFlags))

		dispatcher := control.New(writer, reader, reconciler,
			log.New(baseLogger.Writer(), "[control] ", log.LstdFlags))

		var assetHandler http.Handler
		upstream := viper.GetString("assets.upstream")
		if upstream != "" {
			cache, err := assets.New(
				viper.GetString("assets.dir"),
				viper.GetString("assets.version"),
				log.New(baseLogger.Writer(), "[assets] ", log.LstdFlags),
			)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating asset cache: %v\n", err)
				os.Exit(1)
			}

			ctx := context.Background()
			if precache := viper.GetStringSlice("assets.precache"); len(precache) > 0 {
				_ = cache.Install(ctx, upstream, precache)
			}
			if err := cache.Activate(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: asset cache activate: %v\n", err)
			}

			if srcDir := viper.GetString("assets.watch"); srcDir != "" {
				watcher, err := assets.NewWatcher(cache, srcDir)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: asset watcher: %v\n", err)
				} else {
					go watcher.Run(ctx)
				}
			}

			assetHandler = cache.Handler(upstream)
		}

		srv := server.New(dispatcher, &server.Config{
			Port:   viper.GetInt("server.port"),
			Logger: log.New(baseLogger.Writer(), "[server] ", log.LstdFlags),
			Assets: assetHandler,
		})

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start server: %v\n", err)
			os.Exit(1)
		}

		d, err := daemon.New(reconciler, trig, &daemon.Config{
			DebounceInterval: viper.GetDuration("sync.debounce"),
			RetryInterval:    viper.GetDuration("sync.retry"),
			Events:           srv,
			Logger:           log.New(baseLogger.Writer(), "[daemon] ", log.LstdFlags),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Control server started on http://localhost:%d\n", viper.GetInt("server.port"))
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", viper.GetInt("server.port"))
		fmt.Printf("Database: %s\n", db.Path())
		fmt.Printf("Logs: %s\n", logOut)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon: %v\n", err)
		}

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the control server (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
