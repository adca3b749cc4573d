package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/riftbound/internal/arcade"
)

const identityColumns = `id, username, email, rfid_tag, created_at_ms`

func scanIdentity(row rowScanner) (arcade.Identity, error) {
	var (
		ident   arcade.Identity
		email   sql.NullString
		rfidTag sql.NullString
		at      int64
	)
	if err := row.Scan(&ident.ID, &ident.Username, &email, &rfidTag, &at); err != nil {
		return arcade.Identity{}, err
	}
	ident.Email = stringPtr(email)
	ident.RFIDTag = stringPtr(rfidTag)
	ident.CreatedAt = fromMs(at)
	return ident, nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (arcade.Identity, error) {
	return s.identityWhere(ctx, `id = ?`, id)
}

func (s *Store) IdentityByRFID(ctx context.Context, rfidTag string) (arcade.Identity, error) {
	return s.identityWhere(ctx, `rfid_tag = ?`, rfidTag)
}

func (s *Store) identityWhere(ctx context.Context, cond string, arg any) (arcade.Identity, error) {
	ident, err := scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return arcade.Identity{}, arcade.ErrNotFound
	}
	return ident, err
}

func (s *Store) CreateIdentity(ctx context.Context, ident arcade.Identity) (arcade.Identity, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := checkIdentityTx(ctx, tx, ident.Username, ident.RFIDTag, ident.Email); err != nil {
			return err
		}
		return insertIdentityTx(ctx, tx, ident)
	})
	if err != nil {
		return arcade.Identity{}, err
	}
	ident.CreatedAt = ident.CreatedAt.UTC()
	return ident, nil
}

func insertIdentityTx(ctx context.Context, tx *sql.Tx, ident arcade.Identity) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO identities (id, username, email, rfid_tag, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, ident.ID, ident.Username, nullString(ident.Email), nullString(ident.RFIDTag), toMs(ident.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting identity: %w", err)
	}
	return nil
}

// checkIdentityTx enforces username, then badge, then email uniqueness.
// The columns are NOCASE, so = compares case-insensitively.
func checkIdentityTx(ctx context.Context, tx *sql.Tx, username string, rfidTag, email *string) error {
	checks := []struct {
		query string
		arg   *string
		err   error
	}{
		{`SELECT 1 FROM identities WHERE username = ?`, &username, arcade.ErrUsernameTaken},
		{`SELECT 1 FROM identities WHERE rfid_tag = ?`, rfidTag, arcade.ErrBadgeLinked},
		{`SELECT 1 FROM identities WHERE email = ?`, email, arcade.ErrEmailTaken},
	}
	for _, c := range checks {
		if c.arg == nil {
			continue
		}
		var one int
		err := tx.QueryRowContext(ctx, c.query, *c.arg).Scan(&one)
		switch {
		case err == nil:
			return c.err
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking identity uniqueness: %w", err)
		}
	}
	return nil
}
