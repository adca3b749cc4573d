package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/stream"
)

// ScanRequest is the body a badge reader posts to /api/rfid.
type ScanRequest struct {
	RFIDTag   string  `json:"rfidUuid"`
	MachineID *string `json:"machineId,omitempty"`
}

type ScanResponse struct {
	Success bool  `json:"success"`
	Known   bool  `json:"known"`
	ScanID  int64 `json:"scanId"`
}

// ScanFrame is one event on /api/rfid/stream.
type ScanFrame struct {
	Scan arcade.ScanEvent `json:"scan"`
}

func handleScan(logger *slog.Logger, scans *service.ScanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := scans.Ingest(r.Context(), service.ScanInput{RFIDTag: req.RFIDTag, MachineID: req.MachineID})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ScanResponse{Success: res.Success, Known: res.Known, ScanID: res.ScanID})
	}
}

func handleScanStream(logger *slog.Logger, b *bus.Bus[arcade.ScanEvent], keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		machineID := machineParam(r)
		serveSSE(w, r, logger, b, service.TopicScan, stream.Options[arcade.ScanEvent]{
			KeepAlive: keepAlive,
			Filter:    func(ev arcade.ScanEvent) bool { return sameMachine(ev.MachineID, machineID) },
			Encode:    func(ev arcade.ScanEvent) ([]byte, error) { return json.Marshal(ScanFrame{Scan: ev}) },
		})
	}
}

// VerifyResponse is returned when a kiosk credential is still good.
type VerifyResponse struct {
	Valid bool            `json:"valid"`
	User  arcade.Identity `json:"user"`
}

func handleVerify(logger *slog.Logger, v *service.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID := strings.TrimSpace(q.Get("userId"))
		rawScan := strings.TrimSpace(q.Get("scanId"))
		if userID == "" || rawScan == "" {
			writeError(w, http.StatusBadRequest, "userId and scanId are required")
			return
		}
		scanID, err := strconv.ParseInt(rawScan, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scanId")
			return
		}

		ident, err := v.Verify(r.Context(), userID, scanID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, User: ident})
	}
}

// KioskLogoutRequest revokes the scan credential a kiosk holds.
type KioskLogoutRequest struct {
	ScanID int64 `json:"scanId"`
}

func handleKioskLogout(logger *slog.Logger, scans *service.ScanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KioskLogoutRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := scans.Revoke(r.Context(), req.ScanID); err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}
