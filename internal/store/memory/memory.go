// Package memory is a process-local store used by tests and by
// STORE_DRIVER=memory. Every method takes the single store mutex, so
// multi-step operations such as approval are atomic.
package memory

import (
	"context"
	"sync"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	scans      map[int64]arcade.Scan
	nextScanID int64

	identities map[string]arcade.Identity

	requests  map[int64]arcade.RegistrationRequest
	nextReqID int64

	sessions      []arcade.GameSessionRecord
	nextSessionID int64

	admins        map[string]store.Admin // by email
	adminSessions map[string]store.AdminSession
}

func New() *Store {
	return &Store{
		scans:         make(map[int64]arcade.Scan),
		identities:    make(map[string]arcade.Identity),
		requests:      make(map[int64]arcade.RegistrationRequest),
		admins:        make(map[string]store.Admin),
		adminSessions: make(map[string]store.AdminSession),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func ptr[T any](v T) *T { return &v }
