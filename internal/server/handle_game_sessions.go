package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/service"
)

// GameSessionRequest records a duel played outside the coordinator.
type GameSessionRequest struct {
	Player1ID       string  `json:"player1Id"`
	Player2ID       string  `json:"player2Id"`
	Player1Score    *int    `json:"player1Score"`
	Player2Score    *int    `json:"player2Score"`
	WinnerID        *string `json:"winnerId,omitempty"`
	DurationSeconds int     `json:"durationSeconds"`
}

type GameSessionResponse struct {
	Success bool                     `json:"success"`
	Session arcade.GameSessionRecord `json:"session"`
}

type GameSessionListResponse struct {
	Sessions []arcade.GameSessionRecord `json:"sessions"`
}

func handleGameSessionCreate(logger *slog.Logger, sessions *service.GameSessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GameSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rec, err := sessions.Record(r.Context(), service.GameSessionInput{
			Player1ID:       req.Player1ID,
			Player2ID:       req.Player2ID,
			Score1:          req.Player1Score,
			Score2:          req.Player2Score,
			WinnerID:        req.WinnerID,
			DurationSeconds: req.DurationSeconds,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, GameSessionResponse{Success: true, Session: rec})
	}
}

func handleGameSessionList(logger *slog.Logger, sessions *service.GameSessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var limit int
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		list, err := sessions.Recent(r.Context(), limit)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, GameSessionListResponse{Sessions: nonNil(list)})
	}
}
