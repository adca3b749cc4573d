package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/duel"
	"github.com/playperu/riftbound/internal/store"
)

const persistTimeout = 5 * time.Second

type PairVerifier interface {
	VerifyPair(ctx context.Context, a, b Credential) (arcade.Identity, arcade.Identity, error)
}

type DuelConfig struct {
	Threshold    int
	TickInterval time.Duration
}

type match struct {
	game *duel.Game
	stop context.CancelFunc
}

// DuelService owns at most one game per machine. It stays on the machine
// after finishing until dismissed by the back button.
type DuelService struct {
	verifier PairVerifier
	sessions store.GameSessionStore
	kiosk    *bus.Bus[KioskEvent]
	buttons  *bus.Bus[arcade.ButtonEvent]
	logger   *slog.Logger
	cfg      DuelConfig
	now      func() time.Time

	mu      sync.Mutex
	matches map[string]*match

	persisting sync.WaitGroup
}

func NewDuelService(
	verifier PairVerifier,
	sessions store.GameSessionStore,
	kiosk *bus.Bus[KioskEvent],
	buttons *bus.Bus[arcade.ButtonEvent],
	logger *slog.Logger,
	cfg DuelConfig,
) *DuelService {
	if cfg.Threshold <= 0 {
		cfg.Threshold = duel.DefaultThreshold
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &DuelService{
		verifier: verifier,
		sessions: sessions,
		kiosk:    kiosk,
		buttons:  buttons,
		logger:   logger.With("component", "duels"),
		cfg:      cfg,
		now:      time.Now,
		matches:  make(map[string]*match),
	}
}

// Run routes button presses to the matching game until ctx is done, then
// stops every running clock.
func (d *DuelService) Run(ctx context.Context) error {
	events := make(chan arcade.ButtonEvent, 64)
	sub := d.buttons.Subscribe(TopicButton, func(ev arcade.ButtonEvent) error {
		select {
		case events <- ev:
			return nil
		default:
			return fmt.Errorf("duel button queue full, dropping %s for %s", ev.Action, ev.MachineID)
		}
	})
	defer sub.Close()
	defer d.stopAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			d.handleButton(ev)
		}
	}
}

func (d *DuelService) handleButton(ev arcade.ButtonEvent) {
	var err error
	switch ev.Action {
	case arcade.IncrementP1:
		_, err = d.adjust(ev.MachineID, duel.Player1, 1)
	case arcade.IncrementP2:
		_, err = d.adjust(ev.MachineID, duel.Player2, 1)
	case arcade.DecrementP1:
		_, err = d.adjust(ev.MachineID, duel.Player1, -1)
	case arcade.DecrementP2:
		_, err = d.adjust(ev.MachineID, duel.Player2, -1)
	case arcade.Back:
		d.Back(ev.MachineID)
	}
	if err != nil {
		d.logger.Debug("button ignored", "machine_id", ev.MachineID, "action", ev.Action, "error", err)
	}
}

// Enter re-verifies both seats and starts a game. A failed verification
// turns both players away and notifies the kiosk.
func (d *DuelService) Enter(ctx context.Context, machineID string, seat1, seat2 LobbySlot) (duel.State, error) {
	if d.Active(machineID) {
		return duel.State{}, fmt.Errorf("%w: a duel is already running on %s", arcade.ErrConflict, machineID)
	}

	i1, i2, err := d.verifier.VerifyPair(ctx,
		Credential{IdentityID: seat1.Identity.ID, ScanID: seat1.ScanID},
		Credential{IdentityID: seat2.Identity.ID, ScanID: seat2.ScanID},
	)
	if err != nil {
		d.kiosk.Publish(machineID, KioskEvent{Type: KioskVerificationFailed, MachineID: machineID, Error: err.Error()})
		d.logger.Warn("duel verification failed", "machine_id", machineID, "error", err)
		return duel.State{}, err
	}

	g := duel.New(
		duel.Player{ID: i1.ID, Username: i1.Username, ScanID: seat1.ScanID},
		duel.Player{ID: i2.ID, Username: i2.Username, ScanID: seat2.ScanID},
		d.cfg.Threshold, false,
	)
	return d.begin(machineID, g)
}

// StartDemo runs a game with no verification and no persistence.
func (d *DuelService) StartDemo(machineID, name1, name2 string) (duel.State, error) {
	machineID = trim(machineID)
	if machineID == "" {
		return duel.State{}, arcade.Required("machineId")
	}
	if d.Active(machineID) {
		return duel.State{}, fmt.Errorf("%w: a duel is already running on %s", arcade.ErrConflict, machineID)
	}
	if name1 = trim(name1); name1 == "" {
		name1 = "Player 1"
	}
	if name2 = trim(name2); name2 == "" {
		name2 = "Player 2"
	}
	g := duel.New(duel.Player{ID: "demo-1", Username: name1}, duel.Player{ID: "demo-2", Username: name2}, d.cfg.Threshold, true)
	return d.begin(machineID, g)
}

func (d *DuelService) begin(machineID string, g *duel.Game) (duel.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.matches[machineID]; ok {
		return duel.State{}, fmt.Errorf("%w: a duel is already running on %s", arcade.ErrConflict, machineID)
	}

	g.Start(d.now())
	ctx, stop := context.WithCancel(context.Background())
	m := &match{game: g, stop: stop}
	d.matches[machineID] = m
	go d.clock(ctx, machineID, m)

	s := g.Snapshot()
	d.publishLocked(machineID, s)
	d.logger.Info("duel started", "machine_id", machineID, "demo", s.Demo,
		"player1", s.Player1.ID, "player2", s.Player2.ID)
	return s, nil
}

func (d *DuelService) clock(ctx context.Context, machineID string, m *match) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.matches[machineID] != m || !m.game.Tick() {
				d.mu.Unlock()
				return
			}
			d.publishLocked(machineID, m.game.Snapshot())
			d.mu.Unlock()
		}
	}
}

// Score applies an HTTP-driven adjustment. player is 1 or 2.
func (d *DuelService) Score(_ context.Context, machineID string, player, delta int) (duel.State, error) {
	if player != 1 && player != 2 {
		return duel.State{}, &arcade.ValidationError{Field: "player", Reason: "must be 1 or 2"}
	}
	if delta == 0 {
		return duel.State{}, &arcade.ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	return d.adjust(machineID, duel.Side(player), delta)
}

func (d *DuelService) adjust(machineID string, side duel.Side, delta int) (duel.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.matches[machineID]
	if !ok {
		return duel.State{}, fmt.Errorf("duel %w", arcade.ErrNotFound)
	}

	changed, finished := m.game.Adjust(side, delta, d.now())
	s := m.game.Snapshot()
	if !changed {
		return s, nil
	}
	d.publishLocked(machineID, s)

	if finished {
		m.stop()
		d.logger.Info("duel finished", "machine_id", machineID, "winner", s.Winner.ID,
			"score1", s.Score1, "score2", s.Score2, "elapsed", s.Elapsed)
		if !s.Demo {
			d.persist(s)
		}
	}
	return s, nil
}

// persist hands the result to storage without blocking the caller.
// Failures are logged and not retried.
func (d *DuelService) persist(s duel.State) {
	rec := arcade.GameSessionRecord{
		Player1ID:       s.Player1.ID,
		Player2ID:       s.Player2.ID,
		Score1:          s.Score1,
		Score2:          s.Score2,
		DurationSeconds: s.Elapsed,
	}
	if s.Winner != nil {
		id := s.Winner.ID
		rec.WinnerID = &id
	}
	if s.StartedAt != nil {
		rec.StartedAt = *s.StartedAt
	}
	if s.EndedAt != nil {
		rec.EndedAt = *s.EndedAt
	}

	d.persisting.Add(1)
	go func() {
		defer d.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if _, err := d.sessions.RecordSession(ctx, rec); err != nil {
			d.logger.Error("recording game session", "player1", rec.Player1ID, "player2", rec.Player2ID, "error", err)
		}
	}()
}

// Back aborts a running game or dismisses a finished one. It reports
// whether there was a game on the machine.
func (d *DuelService) Back(machineID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.matches[machineID]
	if !ok {
		return false
	}
	m.stop()
	delete(d.matches, machineID)

	if m.game.Abort(d.now()) {
		d.publishLocked(machineID, m.game.Snapshot())
		d.logger.Info("duel aborted", "machine_id", machineID)
	}
	d.kiosk.Publish(machineID, KioskEvent{Type: KioskDismissed, MachineID: machineID})
	return true
}

func (d *DuelService) State(machineID string) (duel.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.matches[machineID]
	if !ok {
		return duel.State{}, fmt.Errorf("duel %w", arcade.ErrNotFound)
	}
	return m.game.Snapshot(), nil
}

// Active reports whether the machine shows a game, running or finished.
func (d *DuelService) Active(machineID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.matches[machineID]
	return ok
}

// Wait blocks until in-flight result hand-offs are done.
func (d *DuelService) Wait() {
	d.persisting.Wait()
}

func (d *DuelService) stopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.matches {
		m.stop()
	}
}

func (d *DuelService) publishLocked(machineID string, s duel.State) {
	d.kiosk.Publish(machineID, KioskEvent{Type: KioskDuel, MachineID: machineID, Duel: &s})
}
