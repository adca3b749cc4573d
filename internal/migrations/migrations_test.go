package migrations_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/playperu/riftbound/internal/database"
	"github.com/playperu/riftbound/internal/migrations"
)

func TestMigrations(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	// Verify all tables exist by querying sqlite_master.
	want := []string{"identities", "scans", "registration_requests", "game_sessions", "admins", "admin_sessions"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(context.Background(), db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestPendingRequestUniquePerTag(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := migrations.Run(context.Background(), db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	insert := `INSERT INTO registration_requests (rfid_tag, status, created_at_ms) VALUES (?, ?, 0)`
	if _, err := db.Exec(insert, "AA:BB:CC", "rejected"); err != nil {
		t.Fatalf("rejected row: %v", err)
	}
	if _, err := db.Exec(insert, "AA:BB:CC", "pending"); err != nil {
		t.Fatalf("first pending row: %v", err)
	}
	if _, err := db.Exec(insert, "AA:BB:CC", "pending"); err == nil {
		t.Fatal("second pending row for the same tag was accepted")
	}
}
