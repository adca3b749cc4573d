package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/duel"
)

type LobbyPhase string

const (
	PhaseIdle      LobbyPhase = "idle"
	PhaseFilling   LobbyPhase = "filling"
	PhaseSettling  LobbyPhase = "settling"
	PhaseVerifying LobbyPhase = "verifying"
)

type LobbySlot struct {
	Identity arcade.IdentityRef `json:"identity"`
	ScanID   int64              `json:"scanId"`
}

// PendingRegistration reserves a slot for a badge awaiting approval.
type PendingRegistration struct {
	RequestID int64 `json:"requestId"`
	Slot      int   `json:"slot"`
}

type LobbyState struct {
	MachineID string                `json:"machineId"`
	Slot1     *LobbySlot            `json:"slot1"`
	Slot2     *LobbySlot            `json:"slot2"`
	Pending   []PendingRegistration `json:"pending,omitempty"`
	Phase     LobbyPhase            `json:"phase"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// DuelStarter is the part of DuelService the lobby hands a full lobby to.
type DuelStarter interface {
	Enter(ctx context.Context, machineID string, seat1, seat2 LobbySlot) (duel.State, error)
	Active(machineID string) bool
}

// Registrar is the part of RegistrationService used for unknown badges.
type Registrar interface {
	Start(ctx context.Context, in StartInput) (arcade.RegistrationRequest, bool, error)
}

type LobbyConfig struct {
	SettleDelay time.Duration
	TTL         time.Duration
}

type lobby struct {
	state  LobbyState
	gen    uint64
	settle *time.Timer
}

// LobbyService pairs two badge holders per machine. It consumes the scan
// bus, registration resolutions and the back button on its own goroutine.
type LobbyService struct {
	duels   DuelStarter
	reg     Registrar
	scans   *bus.Bus[arcade.ScanEvent]
	regs    *bus.Bus[RegistrationEvent]
	buttons *bus.Bus[arcade.ButtonEvent]
	kiosk   *bus.Bus[KioskEvent]
	logger  *slog.Logger
	cfg     LobbyConfig
	now     func() time.Time

	mu      sync.Mutex
	gen     uint64
	lobbies map[string]*lobby
}

func NewLobbyService(
	duels DuelStarter,
	reg Registrar,
	scans *bus.Bus[arcade.ScanEvent],
	regs *bus.Bus[RegistrationEvent],
	buttons *bus.Bus[arcade.ButtonEvent],
	kiosk *bus.Bus[KioskEvent],
	logger *slog.Logger,
	cfg LobbyConfig,
) *LobbyService {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	return &LobbyService{
		duels:   duels,
		reg:     reg,
		scans:   scans,
		regs:    regs,
		buttons: buttons,
		kiosk:   kiosk,
		logger:  logger.With("component", "lobby"),
		cfg:     cfg,
		now:     time.Now,
		lobbies: make(map[string]*lobby),
	}
}

// Run consumes events until ctx is done. Lobbies untouched for TTL are
// reset along the way.
func (l *LobbyService) Run(ctx context.Context) error {
	scans := make(chan arcade.ScanEvent, 256)
	resolutions := make(chan arcade.Resolution, 64)
	backs := make(chan string, 64)

	subs := []*bus.Subscription{
		l.scans.Subscribe(TopicScan, func(ev arcade.ScanEvent) error {
			if ev.MachineID == nil {
				return nil
			}
			return offer(scans, ev, "scan")
		}),
		l.regs.Subscribe(TopicResolved, func(ev RegistrationEvent) error {
			if ev.Resolution == nil || ev.Resolution.MachineID == nil {
				return nil
			}
			return offer(resolutions, *ev.Resolution, "resolution")
		}),
		l.buttons.Subscribe(TopicButton, func(ev arcade.ButtonEvent) error {
			if ev.Action != arcade.Back {
				return nil
			}
			return offer(backs, ev.MachineID, "back")
		}),
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
		l.stopTimers()
	}()

	var reap <-chan time.Time
	if l.cfg.TTL > 0 {
		t := time.NewTicker(reapInterval(l.cfg.TTL))
		defer t.Stop()
		reap = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-scans:
			l.handleScan(ctx, ev)
		case res := <-resolutions:
			l.handleResolution(ctx, res)
		case machineID := <-backs:
			if !l.duels.Active(machineID) {
				l.Reset(machineID)
			}
		case <-reap:
			l.reap()
		}
	}
}

func offer[T any](ch chan T, v T, kind string) error {
	select {
	case ch <- v:
		return nil
	default:
		return &queueFullError{kind: kind}
	}
}

type queueFullError struct{ kind string }

func (e *queueFullError) Error() string { return "lobby " + e.kind + " queue full" }

func reapInterval(ttl time.Duration) time.Duration {
	iv := ttl / 4
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	if iv > time.Minute {
		iv = time.Minute
	}
	return iv
}

func (l *LobbyService) handleScan(ctx context.Context, ev arcade.ScanEvent) {
	machineID := *ev.MachineID
	if l.duels.Active(machineID) {
		l.logger.Debug("scan ignored, duel on screen", "machine_id", machineID, "scan_id", ev.ID)
		return
	}

	if !ev.Known || ev.Identity == nil {
		l.handleUnknown(ctx, machineID, ev)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lb := l.lobbyLocked(machineID)
	l.seatLocked(ctx, lb, 0, LobbySlot{Identity: ev.Identity.Ref(), ScanID: ev.ID})
}

func (l *LobbyService) handleUnknown(ctx context.Context, machineID string, ev arcade.ScanEvent) {
	l.mu.Lock()
	lb := l.lobbyLocked(machineID)
	slot := openSlot(lb.state)
	gen := lb.gen
	l.mu.Unlock()

	if slot == 0 {
		l.logger.Info("unknown badge ignored, no open slot", "machine_id", machineID)
		return
	}

	scanID := ev.ID
	r, _, err := l.reg.Start(ctx, StartInput{
		RFIDTag:   ev.RFIDTag,
		ScanID:    &scanID,
		MachineID: &machineID,
		Slot:      &slot,
	})
	if err != nil {
		l.logger.Error("starting registration", "machine_id", machineID, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lb = l.lobbies[machineID]
	if lb == nil || lb.gen != gen {
		return
	}
	if pendingIndex(lb.state, r.ID) >= 0 {
		// Same badge scanned again while it waits.
		return
	}
	if slot = openSlot(lb.state); slot == 0 {
		l.logger.Info("registration started but no slot left to reserve", "machine_id", machineID, "request_id", r.ID)
		return
	}
	lb.state.Pending = append(lb.state.Pending, PendingRegistration{RequestID: r.ID, Slot: slot})
	l.touchLocked(lb)
}

func (l *LobbyService) handleResolution(ctx context.Context, res arcade.Resolution) {
	machineID := *res.MachineID

	l.mu.Lock()
	defer l.mu.Unlock()

	lb := l.lobbies[machineID]
	if lb == nil {
		return
	}
	i := pendingIndex(lb.state, res.RequestID)
	if i < 0 {
		return
	}
	hint := lb.state.Pending[i].Slot
	// Published states share the backing array.
	lb.state.Pending = slices.Delete(slices.Clone(lb.state.Pending), i, i+1)
	if len(lb.state.Pending) == 0 {
		lb.state.Pending = nil
	}

	switch res.Status {
	case arcade.RequestApproved:
		if res.Identity == nil || res.ScanID == nil {
			l.touchLocked(lb)
			return
		}
		l.seatLocked(ctx, lb, hint, LobbySlot{Identity: *res.Identity, ScanID: *res.ScanID})
	default:
		l.logger.Info("registration rejected, slot released", "machine_id", machineID, "request_id", res.RequestID)
		if lb.state.Slot1 == nil && lb.state.Slot2 == nil && len(lb.state.Pending) == 0 {
			l.resetLocked(machineID)
			return
		}
		l.touchLocked(lb)
	}
}

// seatLocked places a player in the preferred slot, or the first free one.
func (l *LobbyService) seatLocked(ctx context.Context, lb *lobby, prefer int, seat LobbySlot) {
	st := &lb.state
	if st.Phase == PhaseSettling || st.Phase == PhaseVerifying {
		l.logger.Debug("lobby full, scan ignored", "machine_id", st.MachineID)
		return
	}
	for _, s := range []*LobbySlot{st.Slot1, st.Slot2} {
		if s != nil && s.Identity.ID == seat.Identity.ID {
			l.logger.Info("player already seated", "machine_id", st.MachineID, "identity_id", seat.Identity.ID)
			return
		}
	}

	// Known badges keep clear of slots reserved for pending registrations
	// while an unreserved one is left.
	slot := prefer
	if slot == 1 && st.Slot1 != nil || slot == 2 && st.Slot2 != nil || slot == 0 {
		if slot = openSlot(*st); slot == 0 {
			slot = firstFree(*st)
		}
	}
	switch slot {
	case 1:
		st.Slot1 = &seat
	case 2:
		st.Slot2 = &seat
	default:
		return
	}
	st.Phase = PhaseFilling

	if st.Slot1 != nil && st.Slot2 != nil {
		st.Phase = PhaseSettling
		gen := lb.gen
		machineID := st.MachineID
		lb.settle = time.AfterFunc(l.cfg.SettleDelay, func() { l.handoff(ctx, machineID, gen) })
	}
	l.touchLocked(lb)
}

// handoff moves a settled lobby to the duel. The lobby resets afterwards
// whatever the verification outcome.
func (l *LobbyService) handoff(ctx context.Context, machineID string, gen uint64) {
	l.mu.Lock()
	lb := l.lobbies[machineID]
	if lb == nil || lb.gen != gen || lb.state.Phase != PhaseSettling {
		l.mu.Unlock()
		return
	}
	lb.state.Phase = PhaseVerifying
	seat1, seat2 := *lb.state.Slot1, *lb.state.Slot2
	l.touchLocked(lb)
	l.mu.Unlock()

	if _, err := l.duels.Enter(ctx, machineID, seat1, seat2); err != nil {
		l.logger.Warn("duel entry refused", "machine_id", machineID, "error", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lb := l.lobbies[machineID]; lb != nil && lb.gen == gen {
		l.resetLocked(machineID)
	}
}

func (l *LobbyService) State(machineID string) LobbyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lb, ok := l.lobbies[machineID]; ok {
		return lb.state
	}
	return LobbyState{MachineID: machineID, Phase: PhaseIdle, UpdatedAt: l.now().UTC()}
}

// Reset empties the machine's lobby and cancels any pending hand-off.
func (l *LobbyService) Reset(machineID string) LobbyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetLocked(machineID)
}

func (l *LobbyService) resetLocked(machineID string) LobbyState {
	if lb, ok := l.lobbies[machineID]; ok && lb.settle != nil {
		lb.settle.Stop()
	}
	delete(l.lobbies, machineID)

	st := LobbyState{MachineID: machineID, Phase: PhaseIdle, UpdatedAt: l.now().UTC()}
	l.kiosk.Publish(machineID, KioskEvent{Type: KioskLobby, MachineID: machineID, Lobby: &st})
	return st
}

func (l *LobbyService) reap() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().UTC().Add(-l.cfg.TTL)
	for id, lb := range l.lobbies {
		if lb.state.Phase == PhaseVerifying || !lb.state.UpdatedAt.Before(cutoff) {
			continue
		}
		l.logger.Info("lobby expired", "machine_id", id)
		l.resetLocked(id)
	}
}

func (l *LobbyService) lobbyLocked(machineID string) *lobby {
	lb, ok := l.lobbies[machineID]
	if !ok {
		l.gen++
		lb = &lobby{
			gen:   l.gen,
			state: LobbyState{MachineID: machineID, Phase: PhaseIdle, UpdatedAt: l.now().UTC()},
		}
		l.lobbies[machineID] = lb
	}
	return lb
}

func (l *LobbyService) touchLocked(lb *lobby) {
	lb.state.UpdatedAt = l.now().UTC()
	st := lb.state
	l.kiosk.Publish(st.MachineID, KioskEvent{Type: KioskLobby, MachineID: st.MachineID, Lobby: &st})
}

func (l *LobbyService) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lb := range l.lobbies {
		if lb.settle != nil {
			lb.settle.Stop()
		}
	}
}

// openSlot is the first slot neither seated nor reserved.
func openSlot(st LobbyState) int {
	for slot, seat := range []*LobbySlot{st.Slot1, st.Slot2} {
		if seat == nil && !reservedSlot(st, slot+1) {
			return slot + 1
		}
	}
	return 0
}

func reservedSlot(st LobbyState, slot int) bool {
	for _, p := range st.Pending {
		if p.Slot == slot {
			return true
		}
	}
	return false
}

func pendingIndex(st LobbyState, requestID int64) int {
	return slices.IndexFunc(st.Pending, func(p PendingRegistration) bool { return p.RequestID == requestID })
}

func firstFree(st LobbyState) int {
	switch {
	case st.Slot1 == nil:
		return 1
	case st.Slot2 == nil:
		return 2
	}
	return 0
}
