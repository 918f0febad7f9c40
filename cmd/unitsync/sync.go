package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/unitsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force an immediate sync of unsynced records",
	Long: `Transmit all unsynced conversions and preferences to the remote API now,
without waiting for a background trigger.

Sync is idempotent: records already marked synced are never re-sent, and a
failed transmit leaves everything unsynced for the next attempt.`,
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		registry := buildRegistry()
		writer, _ := buildRecords(db, registry, nil)
		reconciler := syncer.New(db, writer, buildTransmitter(), nil)

		ctx := context.Background()

		before, _ := db.UnsyncedConversionCount(ctx)
		start := time.Now()

		if err := reconciler.ForceSync(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
			fmt.Fprintln(os.Stderr, "Records remain unsynced and will be retried.")
			os.Exit(1)
		}

		after, _ := db.UnsyncedConversionCount(ctx)
		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Conversions synced: %d\n", before-after)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
