package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/config"
	"github.com/playperu/riftbound/internal/database"
	"github.com/playperu/riftbound/internal/handler/health"
	"github.com/playperu/riftbound/internal/migrations"
	"github.com/playperu/riftbound/internal/server"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store"
	"github.com/playperu/riftbound/internal/store/memory"
	"github.com/playperu/riftbound/internal/store/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Store ---
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedAdmin(ctx, st, cfg, logger); err != nil {
		return err
	}

	// --- Buses ---
	scanBus := bus.New[arcade.ScanEvent]("scan", logger)
	buttonBus := bus.New[arcade.ButtonEvent]("button", logger)
	regBus := bus.New[service.RegistrationEvent]("registration", logger)
	kioskBus := bus.New[service.KioskEvent]("kiosk", logger)

	// --- Services ---
	scans := service.NewScanService(st, st, scanBus, logger)
	regs := service.NewRegistrationService(st, regBus, logger)
	verifier := service.NewVerifier(st, st, cfg.SessionTTL)
	duels := service.NewDuelService(verifier, st, kioskBus, buttonBus, logger, service.DuelConfig{
		Threshold: cfg.WinThreshold,
	})
	lobbies := service.NewLobbyService(duels, regs, scanBus, regBus, buttonBus, kioskBus, logger, service.LobbyConfig{
		SettleDelay: cfg.SettleDelay,
		TTL:         cfg.LobbyTTL,
	})
	pruner := service.NewScanPruner(st, cfg.ScanRetention, cfg.PruneInterval, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
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
		KeepAlive:         cfg.KeepAlive,
		ResolveCloseDelay: cfg.ResolveCloseDelay,
		AdminSessionTTL:   cfg.AdminSessionTTL,
		SPADir:            cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error { return lobbies.Run(gctx) })
	g.Go(func() error { return duels.Run(gctx) })
	g.Go(func() error { return pruner.Run(gctx) })

	err = g.Wait()
	// Let finished duels reach the store before it closes.
	duels.Wait()
	return err
}

// openStore returns the configured backend and a func that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	if err := migrations.Run(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	writer := database.NewWorker(db)
	closeFn := func() {
		writer.Close()
		db.Close()
	}
	return sqlite.New(db, writer), closeFn, nil
}

// seedAdmin makes sure the configured admin can log in. The password is
// only ever stored as a bcrypt hash.
func seedAdmin(ctx context.Context, st store.AdminStore, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Warn("ADMIN_EMAIL or ADMIN_PASSWORD not set, admin routes are unreachable")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	if err := st.EnsureAdmin(ctx, cfg.AdminEmail, string(hash)); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	logger.Info("admin account ready", "email", cfg.AdminEmail)
	return nil
}
