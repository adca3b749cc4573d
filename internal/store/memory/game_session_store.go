package memory

import (
	"context"

	"github.com/playperu/riftbound/internal/arcade"
)

func (s *Store) RecordSession(_ context.Context, rec arcade.GameSessionRecord) (arcade.GameSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSessionID++
	rec.ID = s.nextSessionID
	rec.StartedAt = rec.StartedAt.UTC()
	rec.EndedAt = rec.EndedAt.UTC()
	s.sessions = append(s.sessions, rec)
	return rec, nil
}

// RecentSessions returns the newest records first.
func (s *Store) RecentSessions(_ context.Context, limit int) ([]arcade.GameSessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}
	out := make([]arcade.GameSessionRecord, 0, limit)
	for i := len(s.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.sessions[i])
	}
	return out, nil
}
