package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
)

const scanColumns = `id, rfid_tag, machine_id, scanned_at_ms, consumed, revoked`

func scanScan(row rowScanner) (arcade.Scan, error) {
	var (
		sc        arcade.Scan
		machineID sql.NullString
		at        int64
		consumed  int
		revoked   int
	)
	if err := row.Scan(&sc.ID, &sc.RFIDTag, &machineID, &at, &consumed, &revoked); err != nil {
		return arcade.Scan{}, err
	}
	sc.MachineID = stringPtr(machineID)
	sc.ScannedAt = fromMs(at)
	sc.Consumed = consumed != 0
	sc.Revoked = revoked != 0
	return sc, nil
}

func insertScanTx(ctx context.Context, tx *sql.Tx, rfidTag string, machineID *string, at time.Time) (arcade.Scan, error) {
	sc, err := scanScan(tx.QueryRowContext(ctx, `
		INSERT INTO scans (rfid_tag, machine_id, scanned_at_ms)
		VALUES (?, ?, ?)
		RETURNING `+scanColumns,
		rfidTag, nullString(machineID), toMs(at)))
	if err != nil {
		return arcade.Scan{}, fmt.Errorf("inserting scan: %w", err)
	}
	return sc, nil
}

func (s *Store) InsertScan(ctx context.Context, rfidTag string, machineID *string, at time.Time) (arcade.Scan, error) {
	var sc arcade.Scan
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		sc, err = insertScanTx(ctx, tx, rfidTag, machineID, at)
		return err
	})
	return sc, err
}

func (s *Store) GetScan(ctx context.Context, id int64) (arcade.Scan, error) {
	sc, err := scanScan(s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return arcade.Scan{}, arcade.ErrNotFound
	}
	return sc, err
}

func (s *Store) MarkConsumed(ctx context.Context, id int64) error {
	return s.updateScanFlag(ctx, `UPDATE scans SET consumed = 1 WHERE id = ?`, id)
}

func (s *Store) RevokeScan(ctx context.Context, id int64) error {
	return s.updateScanFlag(ctx, `UPDATE scans SET revoked = 1 WHERE id = ?`, id)
}

func (s *Store) updateScanFlag(ctx context.Context, query string, id int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return arcade.ErrNotFound
		}
		return nil
	})
}

func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE scanned_at_ms < ?`, toMs(cutoff))
		if err != nil {
			return fmt.Errorf("pruning scans: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
