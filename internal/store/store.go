// Package store defines the persistence contracts used by the services.
// Implementations return the arcade error sentinels so callers never
// depend on a driver's error types.
package store

import (
	"context"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
)

type ScanStore interface {
	InsertScan(ctx context.Context, rfidTag string, machineID *string, at time.Time) (arcade.Scan, error)
	GetScan(ctx context.Context, id int64) (arcade.Scan, error)
	MarkConsumed(ctx context.Context, id int64) error
	RevokeScan(ctx context.Context, id int64) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type IdentityStore interface {
	IdentityByID(ctx context.Context, id string) (arcade.Identity, error)
	IdentityByRFID(ctx context.Context, rfidTag string) (arcade.Identity, error)
	// CreateIdentity applies the same uniqueness rules as ApproveRequest.
	CreateIdentity(ctx context.Context, ident arcade.Identity) (arcade.Identity, error)
}

type NewRequest struct {
	RFIDTag   string
	ScanID    *int64
	MachineID *string
	SlotHint  *int
	At        time.Time
}

type ApproveParams struct {
	RequestID  int64
	IdentityID string
	Username   string
	Email      *string
	At         time.Time
}

// Approval is everything one successful approval wrote.
type Approval struct {
	Request  arcade.RegistrationRequest
	Identity arcade.Identity
	Scan     arcade.Scan
}

type RegistrationStore interface {
	// CreateOrGetPending returns the pending request for the tag, creating
	// it when none exists. created reports which happened.
	CreateOrGetPending(ctx context.Context, req NewRequest) (r arcade.RegistrationRequest, created bool, err error)
	GetRequest(ctx context.Context, id int64) (arcade.RegistrationRequest, error)
	// ApproveRequest checks, in order: request exists, still pending,
	// username free, badge unbound, email free. All writes share one
	// transaction.
	ApproveRequest(ctx context.Context, p ApproveParams) (Approval, error)
	RejectRequest(ctx context.Context, id int64, at time.Time) (arcade.RegistrationRequest, error)
	ListPending(ctx context.Context) ([]arcade.RegistrationRequest, error)
	ListResolved(ctx context.Context, limit int) ([]arcade.RegistrationRequest, error)
}

type GameSessionStore interface {
	RecordSession(ctx context.Context, rec arcade.GameSessionRecord) (arcade.GameSessionRecord, error)
	RecentSessions(ctx context.Context, limit int) ([]arcade.GameSessionRecord, error)
}

type Admin struct {
	ID           string
	Email        string
	PasswordHash string
}

type AdminSession struct {
	ID        string
	AdminID   string
	Email     string
	ExpiresAt time.Time
}

type AdminStore interface {
	AdminByEmail(ctx context.Context, email string) (Admin, error)
	// EnsureAdmin creates the account or replaces its password hash.
	EnsureAdmin(ctx context.Context, email, passwordHash string) error
	CreateAdminSession(ctx context.Context, adminID string, expiresAt time.Time) (string, error)
	DeleteAdminSession(ctx context.Context, sessionID string) error
	// AdminFromSession fails with arcade.ErrUnauthorized for unknown or
	// expired sessions.
	AdminFromSession(ctx context.Context, sessionID string, now time.Time) (AdminSession, error)
}

// Store is the full persistence surface of one backend.
type Store interface {
	ScanStore
	IdentityStore
	RegistrationStore
	GameSessionStore
	AdminStore
	Ping(ctx context.Context) error
}
