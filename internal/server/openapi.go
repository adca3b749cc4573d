package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/riftbound/internal/duel"
	"github.com/playperu/riftbound/internal/service"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse maps each dependency to its check result.
type HealthResponse map[string]StatusResponse

// Path and query parameters, for documentation only.
type machineParams struct {
	MachineID string `path:"machineID"`
}

type machineFilter struct {
	MachineID string `query:"machineId" description:"Only events from this machine."`
}

type verifyParams struct {
	UserID string `query:"userId" required:"true"`
	ScanID int64  `query:"scanId" required:"true"`
}

type resolutionParams struct {
	RequestID int64 `query:"requestId" required:"true"`
}

type sessionListParams struct {
	Limit int `query:"limit"`
}

type scoreParams struct {
	MachineID string `path:"machineID"`
	ScoreRequest
}

type demoParams struct {
	MachineID string `path:"machineID"`
	DemoRequest
}

// op describes one documented route.
type op struct {
	method      string
	path        string
	summary     string
	description string
	req         any
	resp        []resp
}

type resp struct {
	status      int
	body        any
	contentType string
}

func ok(body any) resp      { return resp{status: http.StatusOK, body: body} }
func created(body any) resp { return resp{status: http.StatusCreated, body: body} }
func eventStream() resp     { return resp{status: http.StatusOK, contentType: "text/event-stream"} }

func failures(codes ...int) []resp {
	out := make([]resp, len(codes))
	for i, c := range codes {
		out[i] = resp{status: c, body: ErrorResponse{}}
	}
	return out
}

func operations() []op {
	const admin = " Requires admin_session cookie."
	resolveFailures := failures(http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict)

	return []op{
		{
			method:      http.MethodGet,
			path:        "/healthz",
			summary:     "Health check",
			description: "Returns the health status of backend dependencies.",
			resp:        []resp{ok(HealthResponse{}), {status: http.StatusServiceUnavailable, body: HealthResponse{}}},
		},
		{
			method:      http.MethodPost,
			path:        "/api/rfid",
			summary:     "Ingest badge scan",
			description: "Called by a badge reader. Persists the scan and broadcasts it to kiosk streams.",
			req:         ScanRequest{},
			resp:        append([]resp{ok(ScanResponse{})}, failures(http.StatusBadRequest)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/rfid/stream",
			summary:     "Scan stream",
			description: "Server-Sent Events of scans.",
			req:         machineFilter{},
			resp:        []resp{eventStream()},
		},
		{
			method:      http.MethodPost,
			path:        "/api/buttons",
			summary:     "Button press",
			description: "Called by a machine when a physical button is pressed.",
			req:         ButtonRequest{},
			resp:        append([]resp{ok(ButtonResponse{})}, failures(http.StatusBadRequest)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/buttons/stream",
			summary:     "Button stream",
			description: "Server-Sent Events of button presses.",
			req:         machineFilter{},
			resp:        []resp{eventStream()},
		},
		{
			method:      http.MethodGet,
			path:        "/api/buttons/ws",
			summary:     "Button WebSocket",
			description: "Upgrades to a WebSocket that carries one text message per button press.",
			req:         machineFilter{},
			resp:        []resp{{status: http.StatusSwitchingProtocols, contentType: "text/plain"}},
		},
		{
			method:      http.MethodGet,
			path:        "/api/auth/verify",
			summary:     "Verify kiosk credential",
			description: "Checks that scanId belongs to userId and is neither revoked nor expired.",
			req:         verifyParams{},
			resp:        append([]resp{ok(VerifyResponse{})}, failures(http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/auth/logout",
			summary:     "Revoke kiosk credential",
			description: "Revokes a scan so it can no longer enter a duel.",
			req:         KioskLogoutRequest{},
			resp:        append([]resp{ok(SuccessResponse{})}, failures(http.StatusBadRequest, http.StatusNotFound)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/registration-requests",
			summary:     "Start registration",
			description: "Returns the pending request for the badge, creating it if needed.",
			req:         RegistrationStartRequest{},
			resp:        append([]resp{ok(RegistrationResponse{}), created(RegistrationResponse{})}, failures(http.StatusBadRequest)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/registration-requests/stream",
			summary:     "Wait for resolution",
			description: "Server-Sent Events stream that delivers the single resolution of requestId, then closes.",
			req:         resolutionParams{},
			resp:        append([]resp{eventStream()}, failures(http.StatusBadRequest, http.StatusNotFound, http.StatusConflict)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/registration-requests",
			summary:     "Pending requests",
			description: "Lists pending registration requests." + admin,
			resp:        append([]resp{ok(RegistrationListResponse{})}, failures(http.StatusUnauthorized)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/registration-requests/history",
			summary:     "Resolved requests",
			description: "Lists resolved requests, newest first." + admin,
			resp:        append([]resp{ok(RegistrationListResponse{})}, failures(http.StatusUnauthorized)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/registration-requests/admin-stream",
			summary:     "Admin request stream",
			description: "Server-Sent Events of new registration requests." + admin,
			resp:        append([]resp{eventStream()}, failures(http.StatusUnauthorized)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/registration-requests/approve",
			summary:     "Approve request",
			description: "Creates the account, binds the badge and mints a fresh scan for the kiosk." + admin,
			req:         ApproveRequest{},
			resp:        append([]resp{ok(ApproveResponse{})}, resolveFailures...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/registration-requests/reject",
			summary:     "Reject request",
			description: "Rejects a pending request." + admin,
			req:         RejectRequest{},
			resp:        append([]resp{ok(SuccessResponse{})}, resolveFailures...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/lobby/{machineID}",
			summary:     "Lobby state",
			description: "Returns the seats and phase of the machine's lobby.",
			req:         machineParams{},
			resp:        []resp{ok(service.LobbyState{})},
		},
		{
			method:      http.MethodPost,
			path:        "/api/lobby/{machineID}/reset",
			summary:     "Reset lobby",
			description: "Clears both seats and any pending registration.",
			req:         machineParams{},
			resp:        []resp{ok(service.LobbyState{})},
		},
		{
			method:      http.MethodGet,
			path:        "/api/lobby/{machineID}/stream",
			summary:     "Kiosk stream",
			description: "Server-Sent Events of lobby and duel updates for one machine, starting with a snapshot.",
			req:         machineParams{},
			resp:        []resp{eventStream()},
		},
		{
			method:      http.MethodGet,
			path:        "/api/duels/{machineID}",
			summary:     "Duel state",
			description: "Returns the duel shown on the machine.",
			req:         machineParams{},
			resp:        append([]resp{ok(duel.State{})}, failures(http.StatusNotFound)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/duels/{machineID}/score",
			summary:     "Adjust score",
			description: "Adds delta to one player's score. Scores never go below zero.",
			req:         scoreParams{},
			resp:        append([]resp{ok(duel.State{})}, failures(http.StatusBadRequest, http.StatusNotFound)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/duels/{machineID}/demo",
			summary:     "Start demo duel",
			description: "Starts a duel without badge verification. The result is not recorded.",
			req:         demoParams{},
			resp:        append([]resp{created(duel.State{})}, failures(http.StatusBadRequest, http.StatusConflict)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/game-sessions",
			summary:     "Record game session",
			description: "Stores a finished duel.",
			req:         GameSessionRequest{},
			resp:        append([]resp{created(GameSessionResponse{})}, failures(http.StatusBadRequest)...),
		},
		{
			method:      http.MethodGet,
			path:        "/api/game-sessions",
			summary:     "Recent game sessions",
			description: "Returns the latest sessions. The limit defaults to 10, at most 100.",
			req:         sessionListParams{},
			resp:        append([]resp{ok(GameSessionListResponse{})}, failures(http.StatusBadRequest)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/admin/login",
			summary:     "Admin login",
			description: "Authenticate with email and password. Sets admin_session cookie.",
			req:         AdminLoginRequest{},
			resp:        append([]resp{ok(AdminMeResponse{})}, failures(http.StatusBadRequest, http.StatusUnauthorized)...),
		},
		{
			method:      http.MethodPost,
			path:        "/api/admin/logout",
			summary:     "Admin logout",
			description: "Clears admin session and cookie.",
			resp:        []resp{ok(StatusResponse{})},
		},
		{
			method:      http.MethodGet,
			path:        "/api/admin/me",
			summary:     "Current admin",
			description: "Returns the currently authenticated admin." + admin,
			resp:        append([]resp{ok(AdminMeResponse{})}, failures(http.StatusUnauthorized)...),
		},
	}
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Riftbound API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Arcade kiosk coordinator: badge scans, registration approval, lobbies and duels.")

	for _, o := range operations() {
		oc, err := r.NewOperationContext(o.method, o.path)
		if err != nil {
			continue
		}
		oc.SetSummary(o.summary)
		oc.SetDescription(o.description)
		if o.req != nil {
			oc.AddReqStructure(o.req)
		}
		for _, rs := range o.resp {
			opts := []openapi.ContentOption{openapi.WithHTTPStatus(rs.status)}
			if rs.contentType != "" {
				opts = append(opts, openapi.WithContentType(rs.contentType))
			}
			oc.AddRespStructure(rs.body, opts...)
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
