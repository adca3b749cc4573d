package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/riftbound/internal/service"
)

// ScoreRequest adjusts one player's score. Player is 1 or 2.
type ScoreRequest struct {
	Player int `json:"player"`
	Delta  int `json:"delta"`
}

// DemoRequest starts an unverified, unrecorded duel. Names are optional.
type DemoRequest struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

func handleDuelState(logger *slog.Logger, duels *service.DuelService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := duels.State(machineID(r))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleDuelScore(logger *slog.Logger, duels *service.DuelService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := duels.Score(r.Context(), machineID(r), req.Player, req.Delta)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleDuelDemo(logger *slog.Logger, duels *service.DuelService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DemoRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		st, err := duels.StartDemo(machineID(r), req.Player1, req.Player2)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}
