package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/playperu/riftbound/internal/arcade"
)

func (s *Store) RecordSession(ctx context.Context, rec arcade.GameSessionRecord) (arcade.GameSessionRecord, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO game_sessions (
				player1_id, player2_id, player1_score, player2_score,
				winner_id, duration_seconds, started_at_ms, ended_at_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`,
			rec.Player1ID, rec.Player2ID, rec.Score1, rec.Score2,
			nullString(rec.WinnerID), rec.DurationSeconds, toMs(rec.StartedAt), toMs(rec.EndedAt),
		).Scan(&rec.ID)
	})
	if err != nil {
		return arcade.GameSessionRecord{}, fmt.Errorf("recording game session: %w", err)
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.EndedAt = rec.EndedAt.UTC()
	return rec, nil
}

func (s *Store) RecentSessions(ctx context.Context, limit int) ([]arcade.GameSessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player1_id, player2_id, player1_score, player2_score,
			winner_id, duration_seconds, started_at_ms, ended_at_ms
		FROM game_sessions
		ORDER BY ended_at_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing game sessions: %w", err)
	}
	defer rows.Close()

	var out []arcade.GameSessionRecord
	for rows.Next() {
		var (
			rec            arcade.GameSessionRecord
			winner         sql.NullString
			started, ended int64
		)
		if err := rows.Scan(&rec.ID, &rec.Player1ID, &rec.Player2ID, &rec.Score1, &rec.Score2,
			&winner, &rec.DurationSeconds, &started, &ended); err != nil {
			return nil, fmt.Errorf("scanning game session: %w", err)
		}
		rec.WinnerID = stringPtr(winner)
		rec.StartedAt = fromMs(started)
		rec.EndedAt = fromMs(ended)
		out = append(out, rec)
	}
	return out, rows.Err()
}
