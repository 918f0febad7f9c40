package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/steveyegge/unitsync/internal/records"
	"github.com/steveyegge/unitsync/internal/remote"
	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/store"
	"github.com/steveyegge/unitsync/internal/syncer"
	"github.com/steveyegge/unitsync/internal/trigger"
	"github.com/steveyegge/unitsync/internal/units"
)

// openDatabase opens the configured database and initializes its schema.
// Exits the process on failure: every command needs a working store.
func openDatabase() *store.DB {
	db, err := store.Open(viper.GetString("db.path"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}

	return db
}

// buildRegistry loads the unit registry, overlaying the configured TOML
// file when present.
func buildRegistry() *units.Registry {
	registry := units.NewRegistry()
	if file := viper.GetString("units.file"); file != "" {
		if err := registry.LoadTOML(file); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return registry
}

// buildTransmitter returns the remote client, or a stub that fails every
// transmit when no remote endpoint is configured. With the stub, records
// simply stay unsynced until an endpoint is available.
func buildTransmitter() syncer.Transmitter {
	url := viper.GetString("remote.url")
	if url == "" {
		return unconfiguredRemote{}
	}
	return remote.New(url, viper.GetDuration("remote.timeout"))
}

type unconfiguredRemote struct{}

func (unconfiguredRemote) SendConversions(ctx context.Context, batch []*schema.Conversion) error {
	return fmt.Errorf("remote endpoint not configured (set remote.url)")
}

func (unconfiguredRemote) SendPreferences(ctx context.Context, batch []*schema.Preference) error {
	return fmt.Errorf("remote endpoint not configured (set remote.url)")
}

// buildRecords wires a writer and reader over the database. trig may be
// nil when no daemon is running.
func buildRecords(db *store.DB, registry *units.Registry, trig trigger.Trigger) (*records.Writer, *records.Reader) {
	writer := records.NewWriter(db, registry, trig, nil)
	reader := records.NewReader(db, nil)
	return writer, reader
}
