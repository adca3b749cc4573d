package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/riftbound/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	adminOnly := adminAuthMiddleware(d.Admins)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Riftbound API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Checks).Routes())

	// Hardware: badge readers and buttons.
	r.Post("/api/rfid", handleScan(logger, d.Scans))
	r.Get("/api/rfid/stream", handleScanStream(logger, d.ScanBus, d.KeepAlive))
	r.Post("/api/buttons", handleButton(logger, d.Buttons))
	r.Get("/api/buttons/stream", handleButtonStream(logger, d.ButtonBus, d.KeepAlive))
	r.Get("/api/buttons/ws", handleButtonWS(logger, d.ButtonBus, d.KeepAlive))

	// Kiosk credentials.
	r.Get("/api/auth/verify", handleVerify(logger, d.Verifier))
	r.Post("/api/auth/logout", handleKioskLogout(logger, d.Scans))

	r.Route("/api/registration-requests", func(r chi.Router) {
		r.Post("/", handleRegistrationStart(logger, d.Registrations))
		r.Get("/stream", handleResolutionStream(logger, d.Registrations, d.RegistrationBus, d.KeepAlive, d.ResolveCloseDelay))

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", handleRegistrationPending(logger, d.Registrations))
			r.Get("/history", handleRegistrationHistory(logger, d.Registrations))
			r.Get("/admin-stream", handleAdminStream(logger, d.RegistrationBus, d.KeepAlive))
			r.Post("/approve", handleRegistrationApprove(logger, d.Registrations))
			r.Post("/reject", handleRegistrationReject(logger, d.Registrations))
		})
	})

	r.Route("/api/lobby/{machineID}", func(r chi.Router) {
		r.Get("/", handleLobbyState(d.Lobbies))
		r.Post("/reset", handleLobbyReset(logger, d.Lobbies))
		r.Get("/stream", handleKioskStream(logger, d.Lobbies, d.Duels, d.KioskBus, d.KeepAlive))
	})

	r.Route("/api/duels/{machineID}", func(r chi.Router) {
		r.Get("/", handleDuelState(logger, d.Duels))
		r.Post("/score", handleDuelScore(logger, d.Duels))
		r.Post("/demo", handleDuelDemo(logger, d.Duels))
	})

	r.Post("/api/game-sessions", handleGameSessionCreate(logger, d.Sessions))
	r.Get("/api/game-sessions", handleGameSessionList(logger, d.Sessions))

	// Admin auth.
	r.Post("/api/admin/login", handleAdminLogin(logger, d.Admins, d.AdminSessionTTL))
	r.Post("/api/admin/logout", handleAdminLogout(logger, d.Admins))
	r.With(adminOnly).Get("/api/admin/me", handleAdminMe())

	if d.SPADir != "" {
		if info, err := os.Stat(d.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", d.SPADir)
			r.NotFound(handleSPA(d.SPADir))
		}
	}
}
