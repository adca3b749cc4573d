package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

const (
	defaultSessionLimit = 10
	maxSessionLimit     = 100
)

type GameSessionInput struct {
	Player1ID       string
	Player2ID       string
	Score1          *int
	Score2          *int
	WinnerID        *string
	DurationSeconds int
}

type GameSessionService struct {
	store  store.GameSessionStore
	logger *slog.Logger
	now    func() time.Time
}

func NewGameSessionService(s store.GameSessionStore, logger *slog.Logger) *GameSessionService {
	return &GameSessionService{store: s, logger: logger.With("component", "game_sessions"), now: time.Now}
}

// Record stores a session reported by an external client.
func (s *GameSessionService) Record(ctx context.Context, in GameSessionInput) (arcade.GameSessionRecord, error) {
	p1, p2 := trim(in.Player1ID), trim(in.Player2ID)
	switch {
	case p1 == "":
		return arcade.GameSessionRecord{}, arcade.Required("player1Id")
	case p2 == "":
		return arcade.GameSessionRecord{}, arcade.Required("player2Id")
	case in.Score1 == nil:
		return arcade.GameSessionRecord{}, arcade.Required("player1Score")
	case in.Score2 == nil:
		return arcade.GameSessionRecord{}, arcade.Required("player2Score")
	case *in.Score1 < 0 || *in.Score2 < 0:
		return arcade.GameSessionRecord{}, &arcade.ValidationError{Field: "score", Reason: "must not be negative"}
	case in.DurationSeconds < 0:
		return arcade.GameSessionRecord{}, &arcade.ValidationError{Field: "durationSeconds", Reason: "must not be negative"}
	}
	winner := trimmedPtr(in.WinnerID)
	if winner != nil && *winner != p1 && *winner != p2 {
		return arcade.GameSessionRecord{}, &arcade.ValidationError{Field: "winnerId", Reason: "must be one of the players"}
	}

	ended := s.now()
	rec, err := s.store.RecordSession(ctx, arcade.GameSessionRecord{
		Player1ID:       p1,
		Player2ID:       p2,
		Score1:          *in.Score1,
		Score2:          *in.Score2,
		WinnerID:        winner,
		DurationSeconds: in.DurationSeconds,
		StartedAt:       ended.Add(-time.Duration(in.DurationSeconds) * time.Second),
		EndedAt:         ended,
	})
	if err != nil {
		return arcade.GameSessionRecord{}, fmt.Errorf("recording game session: %w", err)
	}
	return rec, nil
}

// Recent returns the latest sessions. limit <= 0 means the default; values
// above the maximum are clamped.
func (s *GameSessionService) Recent(ctx context.Context, limit int) ([]arcade.GameSessionRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultSessionLimit
	case limit > maxSessionLimit:
		limit = maxSessionLimit
	}
	return s.store.RecentSessions(ctx, limit)
}
