// Package service holds the kiosk coordination logic: ingestion, the
// registration workflow, lobby pairing and duels. Components talk to each
// other through the buses built in main.
package service

import (
	"fmt"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/duel"
)

// Bus topics.
const (
	TopicScan       = "scan"
	TopicButton     = "button"
	TopicNewRequest = "new-request"
	TopicResolved   = "resolved"
)

// ResolvedTopic is where the kiosk waiting on request id listens.
func ResolvedTopic(id int64) string {
	return fmt.Sprintf("request-resolved:%d", id)
}

// RegistrationEvent travels on the registration bus. New-request events
// carry Request; resolved events carry both.
type RegistrationEvent struct {
	Type       string                      `json:"type"`
	Request    *arcade.RegistrationRequest `json:"request,omitempty"`
	Resolution *arcade.Resolution          `json:"-"`
}

// Kiosk event types.
const (
	KioskLobby              = "lobby"
	KioskDuel               = "duel"
	KioskVerificationFailed = "verification_failed"
	KioskDismissed          = "dismissed"
)

// KioskEvent is published on the kiosk bus under the machine id.
type KioskEvent struct {
	Type      string      `json:"type"`
	MachineID string      `json:"machineId"`
	Lobby     *LobbyState `json:"lobby,omitempty"`
	Duel      *duel.State `json:"duel,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := trim(*s)
	if v == "" {
		return nil
	}
	return &v
}
