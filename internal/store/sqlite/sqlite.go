// Package sqlite implements store.Store on libSQL. Reads go straight to the
// pool; every write runs inside the shared database.Worker.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/playperu/riftbound/internal/database"
	"github.com/playperu/riftbound/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db     *sql.DB
	writer *database.Worker
}

func New(db *sql.DB, writer *database.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMs(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt[T int | int64](p *T) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}
