package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/playperu/riftbound/internal/database"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "riftbound.db")
	db, err := database.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("reading foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestWorkerSerializesWrites(t *testing.T) {
	db := openMemory(t)
	if _, err := db.Exec(`CREATE TABLE counter (n INTEGER NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO counter (n) VALUES (0)`); err != nil {
		t.Fatal(err)
	}

	w := database.NewWorker(db)
	defer w.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
				var n int
				if err := tx.QueryRowContext(ctx, `SELECT n FROM counter`).Scan(&n); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `UPDATE counter SET n = ?`, n+1)
				return err
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	var n int
	if err := db.QueryRow(`SELECT n FROM counter`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Errorf("counter = %d, want 20", n)
	}
}

func TestWorkerRollsBackOnError(t *testing.T) {
	db := openMemory(t)
	if _, err := db.Exec(`CREATE TABLE items (name TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}

	w := database.NewWorker(db)
	defer w.Close()

	boom := errors.New("boom")
	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("rows = %d, want 0 after rollback", count)
	}
}

func TestWorkerClosed(t *testing.T) {
	db := openMemory(t)
	w := database.NewWorker(db)
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, database.ErrWorkerClosed) {
		t.Errorf("err = %v, want ErrWorkerClosed", err)
	}
}

func TestWorkerCloseDuringWrites(t *testing.T) {
	db := openMemory(t)
	w := database.NewWorker(db)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
			if err != nil && !errors.Is(err, database.ErrWorkerClosed) {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	w.Close()
	wg.Wait()

	// A second Close returns once the loop has stopped.
	w.Close()
	err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, database.ErrWorkerClosed) {
		t.Errorf("err = %v, want ErrWorkerClosed", err)
	}
}
