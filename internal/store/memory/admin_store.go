package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

func (s *Store) AdminByEmail(_ context.Context, email string) (store.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[strings.ToLower(email)]
	if !ok {
		return store.Admin{}, arcade.ErrNotFound
	}
	return a, nil
}

func (s *Store) EnsureAdmin(_ context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	a, ok := s.admins[key]
	if !ok {
		a = store.Admin{ID: uuid.NewString(), Email: email}
	}
	a.PasswordHash = passwordHash
	s.admins[key] = a
	return nil
}

func (s *Store) CreateAdminSession(_ context.Context, adminID string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var email string
	for _, a := range s.admins {
		if a.ID == adminID {
			email = a.Email
		}
	}
	if email == "" {
		return "", arcade.ErrNotFound
	}

	id := uuid.NewString()
	s.adminSessions[id] = store.AdminSession{ID: id, AdminID: adminID, Email: email, ExpiresAt: expiresAt.UTC()}
	return id, nil
}

func (s *Store) DeleteAdminSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.adminSessions, sessionID)
	return nil
}

func (s *Store) AdminFromSession(_ context.Context, sessionID string, now time.Time) (store.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.adminSessions[sessionID]
	if !ok || !now.Before(sess.ExpiresAt) {
		return store.AdminSession{}, arcade.ErrUnauthorized
	}
	return sess, nil
}
