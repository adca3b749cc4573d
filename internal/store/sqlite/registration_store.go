package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

const requestColumns = `id, rfid_tag, scan_id, machine_id, slot_hint, status,
	created_identity_id, created_at_ms, resolved_at_ms`

func scanRequest(row rowScanner) (arcade.RegistrationRequest, error) {
	var (
		r          arcade.RegistrationRequest
		scanID     sql.NullInt64
		machineID  sql.NullString
		slotHint   sql.NullInt64
		status     string
		identityID sql.NullString
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.RFIDTag, &scanID, &machineID, &slotHint, &status,
		&identityID, &createdAt, &resolvedAt)
	if err != nil {
		return arcade.RegistrationRequest{}, err
	}
	r.ScanID = int64Ptr(scanID)
	r.MachineID = stringPtr(machineID)
	r.SlotHint = intPtr(slotHint)
	r.Status = arcade.RequestStatus(status)
	r.CreatedIdentityID = stringPtr(identityID)
	r.CreatedAt = fromMs(createdAt)
	if resolvedAt.Valid {
		t := fromMs(resolvedAt.Int64)
		r.ResolvedAt = &t
	}
	return r, nil
}

func getRequestTx(ctx context.Context, tx *sql.Tx, id int64) (arcade.RegistrationRequest, error) {
	r, err := scanRequest(tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM registration_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return arcade.RegistrationRequest{}, arcade.ErrNotFound
	}
	return r, err
}

// CreateOrGetPending relies on the partial unique index: a conflicting
// insert returns no row and the existing pending request is read back.
func (s *Store) CreateOrGetPending(ctx context.Context, req store.NewRequest) (arcade.RegistrationRequest, bool, error) {
	var (
		r       arcade.RegistrationRequest
		created bool
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		r, err = scanRequest(tx.QueryRowContext(ctx, `
			INSERT INTO registration_requests (rfid_tag, scan_id, machine_id, slot_hint, status, created_at_ms)
			VALUES (?, ?, ?, ?, 'pending', ?)
			ON CONFLICT (rfid_tag) WHERE status = 'pending' DO NOTHING
			RETURNING `+requestColumns,
			req.RFIDTag, nullInt(req.ScanID), nullString(req.MachineID), nullInt(req.SlotHint), toMs(req.At)))
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("inserting registration request: %w", err)
		}

		r, err = scanRequest(tx.QueryRowContext(ctx, `
			SELECT `+requestColumns+` FROM registration_requests
			WHERE rfid_tag = ? AND status = 'pending'
		`, req.RFIDTag))
		if err != nil {
			return fmt.Errorf("reading pending request: %w", err)
		}
		return nil
	})
	return r, created, err
}

func (s *Store) GetRequest(ctx context.Context, id int64) (arcade.RegistrationRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM registration_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return arcade.RegistrationRequest{}, arcade.ErrNotFound
	}
	return r, err
}

func (s *Store) ApproveRequest(ctx context.Context, p store.ApproveParams) (store.Approval, error) {
	var out store.Approval
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := getRequestTx(ctx, tx, p.RequestID)
		if err != nil {
			return err
		}
		if r.Status != arcade.RequestPending {
			return arcade.ErrAlreadyResolved
		}
		tag := r.RFIDTag
		if err := checkIdentityTx(ctx, tx, p.Username, &tag, p.Email); err != nil {
			return err
		}

		ident := arcade.Identity{
			ID:        p.IdentityID,
			Username:  p.Username,
			Email:     p.Email,
			RFIDTag:   &tag,
			CreatedAt: p.At.UTC(),
		}
		if err := insertIdentityTx(ctx, tx, ident); err != nil {
			return err
		}

		sc, err := insertScanTx(ctx, tx, tag, r.MachineID, p.At)
		if err != nil {
			return err
		}

		r, err = scanRequest(tx.QueryRowContext(ctx, `
			UPDATE registration_requests
			SET status = 'approved', resolved_at_ms = ?, created_identity_id = ?
			WHERE id = ?
			RETURNING `+requestColumns,
			toMs(p.At), ident.ID, r.ID))
		if err != nil {
			return fmt.Errorf("approving request: %w", err)
		}

		out = store.Approval{Request: r, Identity: ident, Scan: sc}
		return nil
	})
	return out, err
}

func (s *Store) RejectRequest(ctx context.Context, id int64, at time.Time) (arcade.RegistrationRequest, error) {
	var out arcade.RegistrationRequest
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := getRequestTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Status != arcade.RequestPending {
			return arcade.ErrAlreadyResolved
		}
		out, err = scanRequest(tx.QueryRowContext(ctx, `
			UPDATE registration_requests
			SET status = 'rejected', resolved_at_ms = ?
			WHERE id = ?
			RETURNING `+requestColumns,
			toMs(at), id))
		if err != nil {
			return fmt.Errorf("rejecting request: %w", err)
		}
		return nil
	})
	return out, err
}

func (s *Store) ListPending(ctx context.Context) ([]arcade.RegistrationRequest, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns+` FROM registration_requests
		WHERE status = 'pending'
		ORDER BY id
	`)
}

func (s *Store) ListResolved(ctx context.Context, limit int) ([]arcade.RegistrationRequest, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listRequests(ctx, `
		SELECT `+requestColumns+` FROM registration_requests
		WHERE status != 'pending'
		ORDER BY resolved_at_ms DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]arcade.RegistrationRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing registration requests: %w", err)
	}
	defer rows.Close()

	var out []arcade.RegistrationRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning registration request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
