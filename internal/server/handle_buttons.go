package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/stream"
)

// ButtonRequest is posted by the machine when a physical button is pressed.
type ButtonRequest struct {
	MachineID string `json:"machineId"`
	Action    string `json:"action"`
}

type ButtonResponse struct {
	Success bool               `json:"success"`
	Event   arcade.ButtonEvent `json:"event"`
}

// ButtonFrame is one event on the button streams.
type ButtonFrame struct {
	Button arcade.ButtonEvent `json:"button"`
}

func handleButton(logger *slog.Logger, buttons *service.ButtonService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ButtonRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ev, err := buttons.Press(r.Context(), service.ButtonInput{MachineID: req.MachineID, Action: req.Action})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ButtonResponse{Success: true, Event: ev})
	}
}

func buttonOptions(machineID string, keepAlive time.Duration) stream.Options[arcade.ButtonEvent] {
	return stream.Options[arcade.ButtonEvent]{
		KeepAlive: keepAlive,
		Filter: func(ev arcade.ButtonEvent) bool {
			return machineID == "" || ev.MachineID == machineID
		},
		Encode: func(ev arcade.ButtonEvent) ([]byte, error) { return json.Marshal(ButtonFrame{Button: ev}) },
	}
}

func handleButtonStream(logger *slog.Logger, b *bus.Bus[arcade.ButtonEvent], keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveSSE(w, r, logger, b, service.TopicButton, buttonOptions(machineParam(r), keepAlive))
	}
}

func handleButtonWS(logger *slog.Logger, b *bus.Bus[arcade.ButtonEvent], keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		machineID := machineParam(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// The client never sends; CloseRead keeps pings and close frames flowing.
		ctx := conn.CloseRead(r.Context())
		serveSink(ctx, logger, b, service.TopicButton, stream.NewWSSink(ctx, conn), buttonOptions(machineID, keepAlive))
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
