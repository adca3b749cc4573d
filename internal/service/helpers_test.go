package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store/memory"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strp(s string) *string { return &s }

// rig wires every service over one memory store, the way main does.
type rig struct {
	store *memory.Store

	scanBus   *bus.Bus[arcade.ScanEvent]
	buttonBus *bus.Bus[arcade.ButtonEvent]
	regBus    *bus.Bus[service.RegistrationEvent]
	kioskBus  *bus.Bus[service.KioskEvent]

	scans    *service.ScanService
	buttons  *service.ButtonService
	regs     *service.RegistrationService
	verifier *service.Verifier
	duels    *service.DuelService
	lobby    *service.LobbyService
}

func newRig(t *testing.T) *rig {
	t.Helper()
	logger := silentLogger()
	st := memory.New()

	r := &rig{
		store:     st,
		scanBus:   bus.New[arcade.ScanEvent]("scan", logger),
		buttonBus: bus.New[arcade.ButtonEvent]("button", logger),
		regBus:    bus.New[service.RegistrationEvent]("registration", logger),
		kioskBus:  bus.New[service.KioskEvent]("kiosk", logger),
	}
	r.scans = service.NewScanService(st, st, r.scanBus, logger)
	r.buttons = service.NewButtonService(r.buttonBus, logger)
	r.regs = service.NewRegistrationService(st, r.regBus, logger)
	r.verifier = service.NewVerifier(st, st, service.DefaultSessionTTL)
	r.duels = service.NewDuelService(r.verifier, st, r.kioskBus, r.buttonBus, logger,
		service.DuelConfig{Threshold: 8, TickInterval: time.Hour})
	r.lobby = service.NewLobbyService(r.duels, r.regs, r.scanBus, r.regBus, r.buttonBus, r.kioskBus, logger,
		service.LobbyConfig{SettleDelay: 20 * time.Millisecond, TTL: time.Hour})
	return r
}

// start runs the background consumers until the test ends.
func (r *rig) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { r.duels.Run(ctx); done <- struct{}{} }()
	go func() { r.lobby.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	eventually(t, "consumers subscribed", func() bool {
		return r.scanBus.Subscribers(service.TopicScan) == 1 &&
			r.regBus.Subscribers(service.TopicResolved) == 1 &&
			r.buttonBus.Subscribers(service.TopicButton) == 2
	})
}

func (r *rig) identity(t *testing.T, id, username, tag string) arcade.Identity {
	t.Helper()
	ident, err := r.store.CreateIdentity(context.Background(), arcade.Identity{
		ID: id, Username: username, RFIDTag: strp(tag), CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("creating identity %s: %v", username, err)
	}
	return ident
}

// watchKiosk collects kiosk events for one machine.
func (r *rig) watchKiosk(t *testing.T, machineID string) <-chan service.KioskEvent {
	t.Helper()
	ch := make(chan service.KioskEvent, 64)
	sub := r.kioskBus.Subscribe(machineID, func(ev service.KioskEvent) error {
		select {
		case ch <- ev:
		default:
		}
		return nil
	})
	t.Cleanup(sub.Close)
	return ch
}

// waitKiosk returns the first event on ch for which match is true.
func waitKiosk(t *testing.T, ch <-chan service.KioskEvent, match func(service.KioskEvent) bool) service.KioskEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for kiosk event")
			return service.KioskEvent{}
		}
	}
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
