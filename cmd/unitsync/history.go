package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/unitsync/internal/records"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		db := openDatabase()
		defer db.Close()

		reader := records.NewReader(db, nil)
		recs := reader.Conversions(context.Background(), limit)

		if len(recs) == 0 {
			fmt.Println("No conversions recorded.")
			return
		}

		for _, c := range recs {
			mark := " "
			if c.Synced {
				mark = "*"
			}
			fmt.Printf("%s %s  %.4g %s -> %.4g %s\n",
				mark,
				c.Time().Format(time.RFC3339),
				c.Value, c.FromUnit,
				c.Result, c.ToUnit,
			)
		}
		fmt.Println("\n(* = synced)")
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show stored preferences",
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		reader := records.NewReader(db, nil)
		prefs := reader.Preferences(context.Background())

		if len(prefs) == 0 {
			fmt.Println("No preferences stored.")
			return
		}

		for key, value := range prefs {
			fmt.Printf("%s = %s\n", key, value)
		}
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversion history",
	Long: `Delete all conversion history from the local store.

Preferences are never cleared by this command.`,
	Run: func(cmd *cobra.Command, args []string) {
		db := openDatabase()
		defer db.Close()

		writer := records.NewWriter(db, buildRegistry(), nil, nil)
		if !writer.ClearHistory(context.Background()) {
			fmt.Fprintln(os.Stderr, "Error: failed to clear history")
			os.Exit(1)
		}

		fmt.Println("History cleared.")
	},
}

func init() {
	historyCmd.Flags().Int("limit", records.DefaultHistoryLimit, "maximum number of conversions to show")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(clearCmd)
}
