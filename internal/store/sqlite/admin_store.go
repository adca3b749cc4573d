package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

func (s *Store) AdminByEmail(ctx context.Context, email string) (store.Admin, error) {
	var a store.Admin
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash FROM admins WHERE email = ?
	`, email).Scan(&a.ID, &a.Email, &a.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Admin{}, arcade.ErrNotFound
	}
	return a, err
}

func (s *Store) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO admins (id, email, password_hash) VALUES (?, ?, ?)
			ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash
		`, uuid.NewString(), email, passwordHash)
		if err != nil {
			return fmt.Errorf("upserting admin: %w", err)
		}
		return nil
	})
}

func (s *Store) CreateAdminSession(ctx context.Context, adminID string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO admin_sessions (id, admin_id, expires_at_ms) VALUES (?, ?, ?)
		`, id, adminID, toMs(expiresAt))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating admin session: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteAdminSession(ctx context.Context, sessionID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = ?`, sessionID)
		return err
	})
}

func (s *Store) AdminFromSession(ctx context.Context, sessionID string, now time.Time) (store.AdminSession, error) {
	var (
		sess    store.AdminSession
		expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, a.id, a.email, s.expires_at_ms
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.id = ? AND s.expires_at_ms > ?
	`, sessionID, toMs(now)).Scan(&sess.ID, &sess.AdminID, &sess.Email, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return store.AdminSession{}, arcade.ErrUnauthorized
	}
	if err != nil {
		return store.AdminSession{}, err
	}
	sess.ExpiresAt = fromMs(expires)
	return sess, nil
}
