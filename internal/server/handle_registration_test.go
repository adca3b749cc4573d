package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store/memory"
)

func startRegistration(t *testing.T, e *testEnv, tag string) (arcade.RegistrationRequest, int) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/registration-requests", RegistrationStartRequest{RFIDTag: tag, MachineID: strp("kiosk-7")})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("start: status %d: %s", w.Code, w.Body.String())
	}
	return decode[RegistrationResponse](t, w).Request, w.Code
}

func TestRegistrationStartDedup(t *testing.T) {
	e := newTestEnv(t)

	first, code := startRegistration(t, e, "AA:BB:CC")
	if code != http.StatusCreated {
		t.Errorf("first start: status %d, want 201", code)
	}
	if first.Status != arcade.RequestPending {
		t.Errorf("status = %q, want pending", first.Status)
	}

	again, code := startRegistration(t, e, "AA:BB:CC")
	if code != http.StatusOK {
		t.Errorf("second start: status %d, want 200", code)
	}
	if again.ID != first.ID {
		t.Errorf("second start returned request %d, want %d", again.ID, first.ID)
	}

	if w := e.do(t, http.MethodPost, "/api/registration-requests", RegistrationStartRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty tag: status %d, want 400", w.Code)
	}
}

func TestRegistrationAdminRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/registration-requests"},
		{http.MethodGet, "/api/registration-requests/history"},
		{http.MethodGet, "/api/registration-requests/admin-stream"},
		{http.MethodPost, "/api/registration-requests/approve"},
		{http.MethodPost, "/api/registration-requests/reject"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			if w := e.do(t, rt.method, rt.path, nil); w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestRegistrationApproveResolvesKiosk(t *testing.T) {
	e := newTestEnv(t)
	srv := e.serve(t)
	cookies := e.login(t)

	req, _ := startRegistration(t, e, "AA:BB:CC")

	pending := decode[RegistrationListResponse](t, e.do(t, http.MethodGet, "/api/registration-requests", nil, cookies...))
	if len(pending.Requests) != 1 || pending.Requests[0].ID != req.ID {
		t.Fatalf("pending = %+v", pending.Requests)
	}

	_, frames := openStream(t, srv.URL+"/api/registration-requests/stream?requestId="+strconv.FormatInt(req.ID, 10))
	eventually(t, "kiosk waiting", func() bool {
		return e.deps.RegistrationBus.Subscribers(service.ResolvedTopic(req.ID)) == 1
	})

	w := e.do(t, http.MethodPost, "/api/registration-requests/approve",
		ApproveRequest{RequestID: req.ID, Username: "Nova", Email: strp("nova@example.com")}, cookies...)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status %d: %s", w.Code, w.Body.String())
	}
	approved := decode[ApproveResponse](t, w)
	if approved.User.Username != "Nova" || approved.ScanID == 0 {
		t.Errorf("approve response = %+v", approved)
	}

	var res arcade.Resolution
	if err := json.Unmarshal([]byte(nextFrame(t, frames)), &res); err != nil {
		t.Fatalf("decoding resolution: %v", err)
	}
	if res.Status != arcade.RequestApproved || res.Identity == nil || res.Identity.Username != "Nova" {
		t.Errorf("resolution = %+v", res)
	}
	if res.ScanID == nil || *res.ScanID != approved.ScanID {
		t.Errorf("resolution scan = %v, want %d", res.ScanID, approved.ScanID)
	}

	// The stream closes by itself after the one resolution.
	if _, ok := <-frames; ok {
		t.Error("stream sent a second frame")
	}

	history := decode[RegistrationListResponse](t, e.do(t, http.MethodGet, "/api/registration-requests/history", nil, cookies...))
	if len(history.Requests) != 1 || history.Requests[0].Status != arcade.RequestApproved {
		t.Errorf("history = %+v", history.Requests)
	}

	// Resolved requests can't be waited on or decided again.
	if w := e.do(t, http.MethodGet, "/api/registration-requests/stream?requestId="+strconv.FormatInt(req.ID, 10), nil); w.Code != http.StatusConflict {
		t.Errorf("stream on resolved request: status %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/registration-requests/reject", RejectRequest{RequestID: req.ID}, cookies...); w.Code != http.StatusConflict {
		t.Errorf("reject after approve: status %d, want 409", w.Code)
	}
}

func TestRegistrationApproveConflicts(t *testing.T) {
	e := newTestEnv(t)
	cookies := e.login(t)

	first, _ := startRegistration(t, e, "AA:01")
	second, _ := startRegistration(t, e, "AA:02")

	if w := e.do(t, http.MethodPost, "/api/registration-requests/approve",
		ApproveRequest{RequestID: first.ID, Username: "Nova"}, cookies...); w.Code != http.StatusOK {
		t.Fatalf("approve first: status %d: %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name string
		req  ApproveRequest
		want int
	}{
		{"username taken", ApproveRequest{RequestID: second.ID, Username: "nova"}, http.StatusConflict},
		{"missing username", ApproveRequest{RequestID: second.ID}, http.StatusBadRequest},
		{"missing request id", ApproveRequest{Username: "Vega"}, http.StatusBadRequest},
		{"unknown request", ApproveRequest{RequestID: 9999, Username: "Vega"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/registration-requests/approve", tt.req, cookies...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	// The failed approvals left the second request pending.
	pending := decode[RegistrationListResponse](t, e.do(t, http.MethodGet, "/api/registration-requests", nil, cookies...))
	if len(pending.Requests) != 1 || pending.Requests[0].ID != second.ID {
		t.Errorf("pending = %+v", pending.Requests)
	}
}

func TestRegistrationRejectResolvesKiosk(t *testing.T) {
	e := newTestEnv(t)
	srv := e.serve(t)
	cookies := e.login(t)

	req, _ := startRegistration(t, e, "DD:EE")
	_, frames := openStream(t, srv.URL+"/api/registration-requests/stream?requestId="+strconv.FormatInt(req.ID, 10))
	eventually(t, "kiosk waiting", func() bool {
		return e.deps.RegistrationBus.Subscribers(service.ResolvedTopic(req.ID)) == 1
	})

	if w := e.do(t, http.MethodPost, "/api/registration-requests/reject", RejectRequest{RequestID: req.ID}, cookies...); w.Code != http.StatusOK {
		t.Fatalf("reject: status %d: %s", w.Code, w.Body.String())
	}
	if got := nextFrame(t, frames); got != `{"status":"rejected"}` {
		t.Errorf("frame = %s, want rejected", got)
	}
}

// resolvingStore runs resolve right after the first request lookup, which
// is after the handler saw the request pending but before it subscribed.
type resolvingStore struct {
	*memory.Store
	once    sync.Once
	resolve func()
}

func (s *resolvingStore) GetRequest(ctx context.Context, id int64) (arcade.RegistrationRequest, error) {
	r, err := s.Store.GetRequest(ctx, id)
	s.once.Do(s.resolve)
	return r, err
}

func TestResolutionStreamCatchesEarlyApproval(t *testing.T) {
	logger := silentLogger()
	st := &resolvingStore{Store: memory.New()}
	regBus := bus.New[service.RegistrationEvent]("registration", logger)
	regs := service.NewRegistrationService(st, regBus, logger)

	req, _, err := regs.Start(context.Background(), service.StartInput{RFIDTag: "EE:FF", MachineID: strp("kiosk-7")})
	if err != nil {
		t.Fatalf("starting registration: %v", err)
	}
	st.resolve = func() {
		if _, err := regs.Approve(context.Background(), service.ApproveInput{RequestID: req.ID, Username: "Orion"}); err != nil {
			t.Errorf("approving: %v", err)
		}
	}

	r := chi.NewRouter()
	r.Get("/stream", handleResolutionStream(logger, regs, regBus, time.Hour, 10*time.Millisecond))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, frames := openStream(t, srv.URL+"/stream?requestId="+strconv.FormatInt(req.ID, 10))

	var res arcade.Resolution
	if err := json.Unmarshal([]byte(nextFrame(t, frames)), &res); err != nil {
		t.Fatalf("decoding resolution: %v", err)
	}
	if res.Status != arcade.RequestApproved || res.Identity == nil || res.Identity.Username != "Orion" || res.ScanID == nil {
		t.Errorf("resolution = %+v", res)
	}

	select {
	case _, ok := <-frames:
		if ok {
			t.Error("stream sent a second frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after the resolution")
	}
}

func TestResolutionStreamValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing id", "/api/registration-requests/stream", http.StatusBadRequest},
		{"bad id", "/api/registration-requests/stream?requestId=x", http.StatusBadRequest},
		{"unknown id", "/api/registration-requests/stream?requestId=42", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodGet, tt.url, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdminStreamReceivesNewRequests(t *testing.T) {
	e := newTestEnv(t)
	srv := e.serve(t)
	cookies := e.login(t)

	_, frames := openStream(t, srv.URL+"/api/registration-requests/admin-stream", cookies...)
	eventually(t, "admin stream subscribed", func() bool {
		return e.deps.RegistrationBus.Subscribers(service.TopicNewRequest) == 1
	})

	req, _ := startRegistration(t, e, "FF:00")

	var ev service.RegistrationEvent
	if err := json.Unmarshal([]byte(nextFrame(t, frames)), &ev); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if ev.Type != service.TopicNewRequest || ev.Request == nil || ev.Request.ID != req.ID {
		t.Errorf("admin event = %+v", ev)
	}
}
