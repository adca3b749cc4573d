// Package arcade defines the core domain types shared by the kiosk services.
// It has zero external dependencies.
package arcade

import (
	"fmt"
	"strings"
	"time"
)

type Identity struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email,omitempty"`
	RFIDTag   *string   `json:"rfidUuid,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdentityRef is the public projection of an Identity sent to kiosks.
type IdentityRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (i Identity) Ref() IdentityRef {
	return IdentityRef{ID: i.ID, Username: i.Username}
}

// Scan is the persisted row behind a badge read. Its ID doubles as the
// short-lived credential a kiosk presents when entering a duel.
type Scan struct {
	ID        int64     `json:"id"`
	RFIDTag   string    `json:"rfidUuid"`
	MachineID *string   `json:"machineId"`
	ScannedAt time.Time `json:"scannedAt"`
	Consumed  bool      `json:"consumed"`
	Revoked   bool      `json:"revoked"`
}

// ScanEvent is published on the scan bus exactly once per ingested scan.
type ScanEvent struct {
	ID        int64     `json:"id"`
	RFIDTag   string    `json:"rfidUuid"`
	MachineID *string   `json:"machineId"`
	Known     bool      `json:"known"`
	Identity  *Identity `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type RegistrationRequest struct {
	ID                int64         `json:"id"`
	RFIDTag           string        `json:"rfidUuid"`
	ScanID            *int64        `json:"scanId"`
	MachineID         *string       `json:"machineId"`
	SlotHint          *int          `json:"slot,omitempty"`
	Status            RequestStatus `json:"status"`
	CreatedIdentityID *string       `json:"createdUserId"`
	CreatedAt         time.Time     `json:"createdAt"`
	ResolvedAt        *time.Time    `json:"resolvedAt"`
}

// Resolution is delivered to the kiosk waiting on a registration request.
type Resolution struct {
	RequestID int64         `json:"-"`
	Status    RequestStatus `json:"status"`
	Identity  *IdentityRef  `json:"identity,omitempty"`
	ScanID    *int64        `json:"scanId,omitempty"`
	MachineID *string       `json:"-"`
	SlotHint  *int          `json:"slot,omitempty"`
}

type ButtonAction string

const (
	IncrementP1 ButtonAction = "increment_p1"
	IncrementP2 ButtonAction = "increment_p2"
	DecrementP1 ButtonAction = "decrement_p1"
	DecrementP2 ButtonAction = "decrement_p2"
	Back        ButtonAction = "back"
)

// ButtonActions lists every accepted action in wire order.
var ButtonActions = []ButtonAction{IncrementP1, IncrementP2, DecrementP1, DecrementP2, Back}

func ParseButtonAction(s string) (ButtonAction, error) {
	switch a := ButtonAction(strings.TrimSpace(s)); a {
	case IncrementP1, IncrementP2, DecrementP1, DecrementP2, Back:
		return a, nil
	}
	names := make([]string, len(ButtonActions))
	for i, a := range ButtonActions {
		names[i] = string(a)
	}
	return "", &ValidationError{
		Field:  "action",
		Reason: fmt.Sprintf("invalid action, valid actions: %s", strings.Join(names, ", ")),
	}
}

type ButtonEvent struct {
	MachineID string       `json:"machineId"`
	Action    ButtonAction `json:"action"`
	Timestamp int64        `json:"timestamp"`
}

// GameSessionRecord is the completed-duel row handed to persistence.
type GameSessionRecord struct {
	ID              int64     `json:"id"`
	Player1ID       string    `json:"player1Id"`
	Player2ID       string    `json:"player2Id"`
	Score1          int       `json:"player1Score"`
	Score2          int       `json:"player2Score"`
	WinnerID        *string   `json:"winnerId"`
	DurationSeconds int       `json:"durationSeconds"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt"`
}
