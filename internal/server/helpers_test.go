package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/handler/health"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store/memory"
)

const (
	testAdminEmail    = "admin@playperu.com"
	testAdminPassword = "changeme"
)

type testEnv struct {
	store  *memory.Store
	deps   Deps
	router *chi.Mux
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the full router over a memory store with the lobby and
// duel consumers running.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := silentLogger()
	st := memory.New()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if err := st.EnsureAdmin(context.Background(), testAdminEmail, string(hash)); err != nil {
		t.Fatalf("seeding admin: %v", err)
	}

	scanBus := bus.New[arcade.ScanEvent]("scan", logger)
	buttonBus := bus.New[arcade.ButtonEvent]("button", logger)
	regBus := bus.New[service.RegistrationEvent]("registration", logger)
	kioskBus := bus.New[service.KioskEvent]("kiosk", logger)

	scans := service.NewScanService(st, st, scanBus, logger)
	regs := service.NewRegistrationService(st, regBus, logger)
	verifier := service.NewVerifier(st, st, service.DefaultSessionTTL)
	duels := service.NewDuelService(verifier, st, kioskBus, buttonBus, logger,
		service.DuelConfig{Threshold: 8, TickInterval: time.Hour})
	lobbies := service.NewLobbyService(duels, regs, scanBus, regBus, buttonBus, kioskBus, logger,
		service.LobbyConfig{SettleDelay: 20 * time.Millisecond, TTL: time.Hour})

	d := Deps{
		Scans:             scans,
		Buttons:           service.NewButtonService(buttonBus, logger),
		Registrations:     regs,
		Verifier:          verifier,
		Lobbies:           lobbies,
		Duels:             duels,
		Sessions:          service.NewGameSessionService(st, logger),
		Admins:            st,
		Checks:            map[string]health.Checker{"store": health.CheckFunc(st.Ping)},
		ScanBus:           scanBus,
		ButtonBus:         buttonBus,
		RegistrationBus:   regBus,
		KioskBus:          kioskBus,
		KeepAlive:         time.Hour,
		ResolveCloseDelay: 10 * time.Millisecond,
		AdminSessionTTL:   time.Hour,
	}

	r := chi.NewRouter()
	addRoutes(r, logger, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { duels.Run(ctx); done <- struct{}{} }()
	go func() { lobbies.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
		duels.Wait()
	})
	eventually(t, "consumers subscribed", func() bool {
		return scanBus.Subscribers(service.TopicScan) == 1 &&
			buttonBus.Subscribers(service.TopicButton) == 2
	})

	return &testEnv{store: st, deps: d, router: r}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// do sends a JSON request through the router.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = &buf
	}
	req := httptest.NewRequest(method, path, r)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/admin/login", AdminLoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %s: %v", w.Body.String(), err)
	}
	return v
}

// serve starts a real listener for streaming tests.
func (e *testEnv) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)
	return srv
}

// openStream issues a GET against srv and returns the data payloads as
// they arrive. The channel closes when the server ends the response.
func openStream(t *testing.T, url string, cookies ...*http.Cookie) (*http.Response, <-chan string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("building request: %v", err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		br := bufio.NewReader(resp.Body)
		for {
			line, err := br.ReadString('\n')
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				frames <- strings.TrimSuffix(data, "\n")
			}
			if err != nil {
				return
			}
		}
	}()
	return resp, frames
}

func nextFrame(t *testing.T, frames <-chan string) string {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatal("stream closed before the next frame")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

func strp(s string) *string { return &s }
