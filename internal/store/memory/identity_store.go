package memory

import (
	"context"
	"strings"

	"github.com/playperu/riftbound/internal/arcade"
)

func (s *Store) IdentityByID(_ context.Context, id string) (arcade.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return arcade.Identity{}, arcade.ErrNotFound
	}
	return ident, nil
}

func (s *Store) IdentityByRFID(_ context.Context, rfidTag string) (arcade.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ident, ok := s.identityByRFIDLocked(rfidTag); ok {
		return ident, nil
	}
	return arcade.Identity{}, arcade.ErrNotFound
}

func (s *Store) CreateIdentity(_ context.Context, ident arcade.Identity) (arcade.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIdentityLocked(ident.Username, ident.RFIDTag, ident.Email); err != nil {
		return arcade.Identity{}, err
	}
	if _, ok := s.identities[ident.ID]; ok {
		return arcade.Identity{}, arcade.ErrConflict
	}
	ident.CreatedAt = ident.CreatedAt.UTC()
	s.identities[ident.ID] = ident
	return ident, nil
}

func (s *Store) identityByRFIDLocked(rfidTag string) (arcade.Identity, bool) {
	for _, ident := range s.identities {
		if ident.RFIDTag != nil && *ident.RFIDTag == rfidTag {
			return ident, true
		}
	}
	return arcade.Identity{}, false
}

// checkIdentityLocked enforces username, then badge, then email uniqueness.
func (s *Store) checkIdentityLocked(username string, rfidTag, email *string) error {
	for _, ident := range s.identities {
		if strings.EqualFold(ident.Username, username) {
			return arcade.ErrUsernameTaken
		}
	}
	if rfidTag != nil {
		if _, ok := s.identityByRFIDLocked(*rfidTag); ok {
			return arcade.ErrBadgeLinked
		}
	}
	if email != nil {
		for _, ident := range s.identities {
			if ident.Email != nil && strings.EqualFold(*ident.Email, *email) {
				return arcade.ErrEmailTaken
			}
		}
	}
	return nil
}
