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

// RegistrationStartRequest is posted by a kiosk that saw an unknown badge.
type RegistrationStartRequest struct {
	RFIDTag   string  `json:"rfidUuid"`
	ScanID    *int64  `json:"scanId,omitempty"`
	MachineID *string `json:"machineId,omitempty"`
	Slot      *int    `json:"slot,omitempty"`
}

type RegistrationResponse struct {
	Request arcade.RegistrationRequest `json:"request"`
}

type RegistrationListResponse struct {
	Requests []arcade.RegistrationRequest `json:"requests"`
}

type ApproveRequest struct {
	RequestID int64   `json:"requestId"`
	Username  string  `json:"username"`
	Email     *string `json:"email,omitempty"`
}

type ApproveResponse struct {
	Success bool            `json:"success"`
	User    arcade.Identity `json:"user"`
	ScanID  int64           `json:"scanId"`
}

type RejectRequest struct {
	RequestID int64 `json:"requestId"`
}

func handleRegistrationStart(logger *slog.Logger, regs *service.RegistrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegistrationStartRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rr, created, err := regs.Start(r.Context(), service.StartInput{
			RFIDTag:   req.RFIDTag,
			ScanID:    req.ScanID,
			MachineID: req.MachineID,
			Slot:      req.Slot,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, RegistrationResponse{Request: rr})
	}
}

// handleResolutionStream holds the kiosk until an admin decides on the
// request, sends the one resolution frame, and closes.
func handleResolutionStream(logger *slog.Logger, regs *service.RegistrationService, b *bus.Bus[service.RegistrationEvent], keepAlive, closeDelay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("requestId"))
		if raw == "" {
			writeError(w, http.StatusBadRequest, "requestId is required")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid requestId")
			return
		}

		rr, err := regs.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		if rr.Status != arcade.RequestPending {
			writeServiceError(w, logger, arcade.ErrAlreadyResolved)
			return
		}

		serveSSE(w, r, logger, b, service.ResolvedTopic(id), stream.Options[service.RegistrationEvent]{
			KeepAlive:  keepAlive,
			Once:       true,
			CloseDelay: closeDelay,
			// Catches a resolution that landed between the check above
			// and the subscription.
			Replay: func() []service.RegistrationEvent {
				res, ok := regs.Resolution(id)
				if !ok {
					return nil
				}
				return []service.RegistrationEvent{{Type: service.TopicResolved, Resolution: &res}}
			},
			Encode: func(ev service.RegistrationEvent) ([]byte, error) {
				return json.Marshal(ev.Resolution)
			},
		})
	}
}

func handleRegistrationPending(logger *slog.Logger, regs *service.RegistrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := regs.Pending(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, RegistrationListResponse{Requests: nonNil(list)})
	}
}

func handleRegistrationHistory(logger *slog.Logger, regs *service.RegistrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := regs.History(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, RegistrationListResponse{Requests: nonNil(list)})
	}
}

func handleAdminStream(logger *slog.Logger, b *bus.Bus[service.RegistrationEvent], keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Info("admin stream opened", "admin_id", adminFrom(r).AdminID)
		serveSSE(w, r, logger, b, service.TopicNewRequest, stream.Options[service.RegistrationEvent]{
			KeepAlive: keepAlive,
		})
	}
}

func handleRegistrationApprove(logger *slog.Logger, regs *service.RegistrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApproveRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		a, err := regs.Approve(r.Context(), service.ApproveInput{
			RequestID: req.RequestID,
			Username:  req.Username,
			Email:     req.Email,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ApproveResponse{Success: true, User: a.Identity, ScanID: a.Scan.ID})
	}
}

func handleRegistrationReject(logger *slog.Logger, regs *service.RegistrationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RejectRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if _, err := regs.Reject(r.Context(), req.RequestID); err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
