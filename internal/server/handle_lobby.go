package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/stream"
)

func machineID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "machineID"))
}

func handleLobbyState(lobbies *service.LobbyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lobbies.State(machineID(r)))
	}
}

func handleLobbyReset(logger *slog.Logger, lobbies *service.LobbyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := machineID(r)
		st := lobbies.Reset(id)
		logger.Info("lobby reset over http", "machine_id", id)
		writeJSON(w, http.StatusOK, st)
	}
}

// handleKioskStream pushes lobby and duel updates for one machine. The
// current lobby, and the duel if one is showing, go out first. They are
// read once the subscription is live so no change falls between the two.
func handleKioskStream(logger *slog.Logger, lobbies *service.LobbyService, duels *service.DuelService, b *bus.Bus[service.KioskEvent], keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := machineID(r)
		serveSSE(w, r, logger, b, id, stream.Options[service.KioskEvent]{
			KeepAlive: keepAlive,
			Replay: func() []service.KioskEvent {
				return kioskSnapshot(lobbies, duels, id)
			},
		})
	}
}

func kioskSnapshot(lobbies *service.LobbyService, duels *service.DuelService, machineID string) []service.KioskEvent {
	lobby := lobbies.State(machineID)
	events := []service.KioskEvent{{Type: service.KioskLobby, MachineID: machineID, Lobby: &lobby}}
	if st, err := duels.State(machineID); err == nil {
		events = append(events, service.KioskEvent{Type: service.KioskDuel, MachineID: machineID, Duel: &st})
	}
	return events
}
