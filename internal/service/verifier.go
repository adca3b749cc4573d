package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

const DefaultSessionTTL = 5 * time.Minute

// Credential is the (identity, scan) pair a kiosk presents for a player.
type Credential struct {
	IdentityID string
	ScanID     int64
}

// Verifier checks that a scan is a live credential for an identity.
type Verifier struct {
	identities store.IdentityStore
	scans      store.ScanStore
	ttl        time.Duration
	now        func() time.Time
}

func NewVerifier(identities store.IdentityStore, scans store.ScanStore, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Verifier{identities: identities, scans: scans, ttl: ttl, now: time.Now}
}

func (v *Verifier) Verify(ctx context.Context, identityID string, scanID int64) (arcade.Identity, error) {
	identityID = trim(identityID)
	if identityID == "" {
		return arcade.Identity{}, arcade.Required("userId")
	}
	if scanID <= 0 {
		return arcade.Identity{}, arcade.Required("scanId")
	}

	ident, err := v.identities.IdentityByID(ctx, identityID)
	if errors.Is(err, arcade.ErrNotFound) {
		return arcade.Identity{}, fmt.Errorf("user %w", arcade.ErrNotFound)
	}
	if err != nil {
		return arcade.Identity{}, err
	}

	sc, err := v.scans.GetScan(ctx, scanID)
	if errors.Is(err, arcade.ErrNotFound) {
		return arcade.Identity{}, fmt.Errorf("scan %w", arcade.ErrNotFound)
	}
	if err != nil {
		return arcade.Identity{}, err
	}

	switch {
	case ident.RFIDTag == nil || *ident.RFIDTag != sc.RFIDTag:
		return arcade.Identity{}, arcade.ErrSessionMismatch
	case sc.Revoked:
		return arcade.Identity{}, arcade.ErrSessionRevoked
	case v.now().Sub(sc.ScannedAt) > v.ttl:
		return arcade.Identity{}, arcade.ErrSessionExpired
	}
	return ident, nil
}

// VerifyPair admits both players or neither. Every failure, including a
// missing record, is reported as unauthorized.
func (v *Verifier) VerifyPair(ctx context.Context, a, b Credential) (arcade.Identity, arcade.Identity, error) {
	if a.IdentityID == b.IdentityID {
		return arcade.Identity{}, arcade.Identity{}, fmt.Errorf("%w: both seats hold the same player", arcade.ErrUnauthorized)
	}

	var out [2]arcade.Identity
	for i, c := range []Credential{a, b} {
		ident, err := v.Verify(ctx, c.IdentityID, c.ScanID)
		if err != nil {
			if errors.Is(err, arcade.ErrUnauthorized) {
				return arcade.Identity{}, arcade.Identity{}, fmt.Errorf("player %d: %w", i+1, err)
			}
			return arcade.Identity{}, arcade.Identity{}, fmt.Errorf("%w: player %d: %v", arcade.ErrUnauthorized, i+1, err)
		}
		out[i] = ident
	}
	return out[0], out[1], nil
}
