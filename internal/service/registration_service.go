package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/store"
)

const (
	historyLimit = 100
	// recentResolutions bounds the resolutions kept for late kiosk streams.
	recentResolutions = 1024
)

type StartInput struct {
	RFIDTag   string
	ScanID    *int64
	MachineID *string
	// Slot is the lobby slot the resolved identity should take, if any.
	Slot *int
}

type ApproveInput struct {
	RequestID int64
	Username  string
	Email     *string
}

// RegistrationService runs the unknown-badge workflow:
// Pending -> Approved | Rejected. Terminal states never change.
type RegistrationService struct {
	store  store.RegistrationStore
	bus    *bus.Bus[RegistrationEvent]
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	resolved map[int64]arcade.Resolution
	order    []int64
}

func NewRegistrationService(s store.RegistrationStore, b *bus.Bus[RegistrationEvent], logger *slog.Logger) *RegistrationService {
	return &RegistrationService{
		store:    s,
		bus:      b,
		logger:   logger.With("component", "registration"),
		now:      time.Now,
		newID:    uuid.NewString,
		resolved: make(map[int64]arcade.Resolution),
	}
}

// Start returns the pending request for the badge, creating it if needed.
// The admin feed is notified either way.
func (s *RegistrationService) Start(ctx context.Context, in StartInput) (arcade.RegistrationRequest, bool, error) {
	tag := trim(in.RFIDTag)
	if tag == "" {
		return arcade.RegistrationRequest{}, false, arcade.Required("rfidUuid")
	}
	if in.Slot != nil && *in.Slot != 1 && *in.Slot != 2 {
		return arcade.RegistrationRequest{}, false, &arcade.ValidationError{Field: "slot", Reason: "must be 1 or 2"}
	}
	if in.ScanID != nil && *in.ScanID <= 0 {
		in.ScanID = nil
	}

	r, created, err := s.store.CreateOrGetPending(ctx, store.NewRequest{
		RFIDTag:   tag,
		ScanID:    in.ScanID,
		MachineID: trimmedPtr(in.MachineID),
		SlotHint:  in.Slot,
		At:        s.now(),
	})
	if err != nil {
		return arcade.RegistrationRequest{}, false, fmt.Errorf("creating registration request: %w", err)
	}

	s.bus.Publish(TopicNewRequest, RegistrationEvent{Type: TopicNewRequest, Request: &r})
	s.logger.Info("registration requested", "request_id", r.ID, "created", created)
	return r, created, nil
}

func (s *RegistrationService) Approve(ctx context.Context, in ApproveInput) (store.Approval, error) {
	if in.RequestID <= 0 {
		return store.Approval{}, arcade.Required("requestId")
	}
	username := trim(in.Username)
	if username == "" {
		return store.Approval{}, arcade.Required("username")
	}

	// Once committed, the resolution must be published even if the caller
	// has gone away.
	a, err := s.store.ApproveRequest(context.WithoutCancel(ctx), store.ApproveParams{
		RequestID:  in.RequestID,
		IdentityID: s.newID(),
		Username:   username,
		Email:      trimmedPtr(in.Email),
		At:         s.now(),
	})
	if err != nil {
		return store.Approval{}, err
	}

	ref := a.Identity.Ref()
	scanID := a.Scan.ID
	s.publishResolution(a.Request, arcade.Resolution{
		RequestID: a.Request.ID,
		Status:    arcade.RequestApproved,
		Identity:  &ref,
		ScanID:    &scanID,
		MachineID: a.Request.MachineID,
		SlotHint:  a.Request.SlotHint,
	})
	s.logger.Info("registration approved", "request_id", a.Request.ID, "identity_id", a.Identity.ID)
	return a, nil
}

func (s *RegistrationService) Reject(ctx context.Context, requestID int64) (arcade.RegistrationRequest, error) {
	if requestID <= 0 {
		return arcade.RegistrationRequest{}, arcade.Required("requestId")
	}
	r, err := s.store.RejectRequest(context.WithoutCancel(ctx), requestID, s.now())
	if err != nil {
		return arcade.RegistrationRequest{}, err
	}

	s.publishResolution(r, arcade.Resolution{
		RequestID: r.ID,
		Status:    arcade.RequestRejected,
		MachineID: r.MachineID,
		SlotHint:  r.SlotHint,
	})
	s.logger.Info("registration rejected", "request_id", r.ID)
	return r, nil
}

// publishResolution records the outcome, then wakes the waiting kiosk
// stream and the lobby.
func (s *RegistrationService) publishResolution(r arcade.RegistrationRequest, res arcade.Resolution) {
	s.mu.Lock()
	s.resolved[r.ID] = res
	s.order = append(s.order, r.ID)
	if len(s.order) > recentResolutions {
		delete(s.resolved, s.order[0])
		s.order = s.order[1:]
	}
	s.mu.Unlock()

	ev := RegistrationEvent{Type: TopicResolved, Request: &r, Resolution: &res}
	s.bus.Publish(ResolvedTopic(r.ID), ev)
	s.bus.Publish(TopicResolved, ev)
}

// Resolution returns the outcome of a request resolved by this process.
// Only the most recent resolutions are kept.
func (s *RegistrationService) Resolution(id int64) (arcade.Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resolved[id]
	return res, ok
}

func (s *RegistrationService) Pending(ctx context.Context) ([]arcade.RegistrationRequest, error) {
	return s.store.ListPending(ctx)
}

// History lists resolved requests, newest first.
func (s *RegistrationService) History(ctx context.Context) ([]arcade.RegistrationRequest, error) {
	return s.store.ListResolved(ctx, historyLimit)
}

func (s *RegistrationService) Get(ctx context.Context, id int64) (arcade.RegistrationRequest, error) {
	if id <= 0 {
		return arcade.RegistrationRequest{}, arcade.Required("requestId")
	}
	return s.store.GetRequest(ctx, id)
}
