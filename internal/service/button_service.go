package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
)

type ButtonInput struct {
	MachineID string
	Action    string
}

type ButtonService struct {
	bus    *bus.Bus[arcade.ButtonEvent]
	logger *slog.Logger
	now    func() time.Time
}

func NewButtonService(b *bus.Bus[arcade.ButtonEvent], logger *slog.Logger) *ButtonService {
	return &ButtonService{bus: b, logger: logger.With("component", "buttons"), now: time.Now}
}

func (s *ButtonService) Press(_ context.Context, in ButtonInput) (arcade.ButtonEvent, error) {
	machineID := trim(in.MachineID)
	if machineID == "" {
		return arcade.ButtonEvent{}, arcade.Required("machineId")
	}
	if trim(in.Action) == "" {
		return arcade.ButtonEvent{}, arcade.Required("action")
	}
	action, err := arcade.ParseButtonAction(in.Action)
	if err != nil {
		return arcade.ButtonEvent{}, err
	}

	ev := arcade.ButtonEvent{MachineID: machineID, Action: action, Timestamp: s.now().UnixMilli()}
	n := s.bus.Publish(TopicButton, ev)
	s.logger.Debug("button pressed", "machine_id", machineID, "action", action, "subscribers", n)
	return ev, nil
}
