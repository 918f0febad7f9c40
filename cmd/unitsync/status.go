package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local store's sync status",
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		ctx := context.Background()

		version, _ := db.SchemaVersion(ctx)
		total, _ := db.ConversionCount(ctx)
		unsynced, _ := db.UnsyncedConversionCount(ctx)
		prefs, _ := db.PreferenceCount(ctx)

		fmt.Printf("Database: %s (schema v%d)\n", db.Path(), version)
		fmt.Printf("   Conversions: %d (%d unsynced)\n", total, unsynced)
		fmt.Printf("   Preferences: %d\n", prefs)
	},
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the unit identifiers the converter accepts",
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		for _, id := range registry.IDs() {
			u, _ := registry.Lookup(id)
			fmt.Printf("%-14s %s (%s)\n", id, u.Label, u.Quantity)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unitsCmd)
}
