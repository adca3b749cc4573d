// Package storetest holds the behavioural suite every store.Store backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) store.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func Run(t *testing.T, open Opener) {
	t.Run("Scans", func(t *testing.T) { testScans(t, open(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, open(t)) })
	t.Run("IdentityUniqueness", func(t *testing.T) { testIdentityUniqueness(t, open(t)) })
	t.Run("PendingDedup", func(t *testing.T) { testPendingDedup(t, open(t)) })
	t.Run("PendingDedupConcurrent", func(t *testing.T) { testPendingDedupConcurrent(t, open(t)) })
	t.Run("ApproveChecks", func(t *testing.T) { testApproveChecks(t, open(t)) })
	t.Run("Approve", func(t *testing.T) { testApprove(t, open(t)) })
	t.Run("Reject", func(t *testing.T) { testReject(t, open(t)) })
	t.Run("GameSessions", func(t *testing.T) { testGameSessions(t, open(t)) })
	t.Run("Admin", func(t *testing.T) { testAdmin(t, open(t)) })
}

func testScans(t *testing.T, s store.Store) {
	ctx := context.Background()

	a, err := s.InsertScan(ctx, "AA:BB:CC", strp("kiosk-7"), base)
	if err != nil {
		t.Fatalf("InsertScan: %v", err)
	}
	b, err := s.InsertScan(ctx, "U1", nil, base)
	if err != nil {
		t.Fatalf("InsertScan: %v", err)
	}
	if b.ID <= a.ID {
		t.Errorf("scan ids not increasing: %d then %d", a.ID, b.ID)
	}

	got, err := s.GetScan(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.RFIDTag != "AA:BB:CC" || got.MachineID == nil || *got.MachineID != "kiosk-7" {
		t.Errorf("scan = %+v", got)
	}
	if !got.ScannedAt.Equal(base) || got.Consumed || got.Revoked {
		t.Errorf("scan = %+v", got)
	}

	if err := s.MarkConsumed(ctx, a.ID); err != nil {
		t.Fatalf("MarkConsumed: %v", err)
	}
	if err := s.RevokeScan(ctx, a.ID); err != nil {
		t.Fatalf("RevokeScan: %v", err)
	}
	got, _ = s.GetScan(ctx, a.ID)
	if !got.Consumed || !got.Revoked {
		t.Errorf("flags not persisted: %+v", got)
	}

	if _, err := s.GetScan(ctx, 9999); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("GetScan missing: err = %v", err)
	}
	if err := s.RevokeScan(ctx, 9999); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("RevokeScan missing: err = %v", err)
	}
}

func testPrune(t *testing.T, s store.Store) {
	ctx := context.Background()

	old, _ := s.InsertScan(ctx, "OLD", nil, base.Add(-48*time.Hour))
	fresh, _ := s.InsertScan(ctx, "NEW", nil, base)
	req, _, err := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "OLD", ScanID: &old.ID, At: base})
	if err != nil {
		t.Fatalf("CreateOrGetPending: %v", err)
	}

	n, err := s.PruneOlderThan(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := s.GetScan(ctx, old.ID); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("old scan still present: %v", err)
	}
	if _, err := s.GetScan(ctx, fresh.ID); err != nil {
		t.Errorf("fresh scan pruned: %v", err)
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.ScanID != nil {
		t.Errorf("request still references pruned scan %d", *got.ScanID)
	}
}

func testIdentityUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()

	nova := arcade.Identity{ID: "id-nova", Username: "Nova", Email: strp("nova@example.com"), RFIDTag: strp("U1"), CreatedAt: base}
	if _, err := s.CreateIdentity(ctx, nova); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}

	got, err := s.IdentityByRFID(ctx, "U1")
	if err != nil {
		t.Fatalf("IdentityByRFID: %v", err)
	}
	if got.ID != "id-nova" || got.Username != "Nova" {
		t.Errorf("identity = %+v", got)
	}
	if _, err := s.IdentityByID(ctx, "id-nova"); err != nil {
		t.Errorf("IdentityByID: %v", err)
	}
	if _, err := s.IdentityByRFID(ctx, "nope"); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("IdentityByRFID missing: err = %v", err)
	}

	tests := []struct {
		name  string
		ident arcade.Identity
		want  error
	}{
		{"username case-insensitive", arcade.Identity{ID: "x1", Username: "NOVA", RFIDTag: strp("U9")}, arcade.ErrUsernameTaken},
		{"badge", arcade.Identity{ID: "x2", Username: "Rex", RFIDTag: strp("U1")}, arcade.ErrBadgeLinked},
		{"email", arcade.Identity{ID: "x3", Username: "Rex", Email: strp("nova@example.com")}, arcade.ErrEmailTaken},
		{"username checked before badge", arcade.Identity{ID: "x4", Username: "Nova", RFIDTag: strp("U1")}, arcade.ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ident.CreatedAt = base
			_, err := s.CreateIdentity(ctx, tt.ident)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func testPendingDedup(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, created, err := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", MachineID: strp("kiosk-7"), At: base})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !created || first.Status != arcade.RequestPending {
		t.Fatalf("first = %+v created=%v", first, created)
	}

	second, created, err := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", At: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created {
		t.Error("second call created a new request")
	}
	if second.ID != first.ID {
		t.Errorf("second id = %d, want %d", second.ID, first.ID)
	}

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func testPendingDedupConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]bool{}
		creates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, created, err := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "DUP", At: base})
			if err != nil {
				t.Errorf("CreateOrGetPending: %v", err)
				return
			}
			mu.Lock()
			ids[r.ID] = true
			if created {
				creates++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 1 || creates != 1 {
		t.Errorf("distinct ids = %d, creates = %d; want 1 and 1", len(ids), creates)
	}
}

func testApproveChecks(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.CreateIdentity(ctx, arcade.Identity{ID: "id-nova", Username: "Nova", Email: strp("nova@example.com"), RFIDTag: strp("U1"), CreatedAt: base}); err != nil {
		t.Fatal(err)
	}
	req, _, _ := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", At: base})
	linked, _, _ := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "U1", At: base})

	tests := []struct {
		name string
		p    store.ApproveParams
		want error
	}{
		{"missing request", store.ApproveParams{RequestID: 9999, IdentityID: "n1", Username: "Rex"}, arcade.ErrNotFound},
		{"username taken", store.ApproveParams{RequestID: req.ID, IdentityID: "n2", Username: "nova"}, arcade.ErrUsernameTaken},
		{"badge linked", store.ApproveParams{RequestID: linked.ID, IdentityID: "n3", Username: "Rex"}, arcade.ErrBadgeLinked},
		{"email taken", store.ApproveParams{RequestID: req.ID, IdentityID: "n4", Username: "Rex", Email: strp("NOVA@example.com")}, arcade.ErrEmailTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.At = base
			_, err := s.ApproveRequest(ctx, tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != arcade.RequestPending || got.ResolvedAt != nil {
		t.Errorf("request changed after failed approvals: %+v", got)
	}
	if _, err := s.IdentityByID(ctx, "n2"); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("failed approval left an identity behind: %v", err)
	}
}

func testApprove(t *testing.T, s store.Store) {
	ctx := context.Background()
	machine := strp("kiosk-7")

	orig, _ := s.InsertScan(ctx, "AA:BB:CC", machine, base)
	req, _, _ := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", ScanID: &orig.ID, MachineID: machine, At: base})

	at := base.Add(time.Minute)
	a, err := s.ApproveRequest(ctx, store.ApproveParams{RequestID: req.ID, IdentityID: "id-nova", Username: "Nova", At: at})
	if err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	if a.Identity.ID != "id-nova" || a.Identity.RFIDTag == nil || *a.Identity.RFIDTag != "AA:BB:CC" {
		t.Errorf("identity = %+v", a.Identity)
	}
	if a.Scan.ID == orig.ID {
		t.Error("approval reused the original scan")
	}
	if a.Scan.MachineID == nil || *a.Scan.MachineID != "kiosk-7" || !a.Scan.ScannedAt.Equal(at) {
		t.Errorf("fresh scan = %+v", a.Scan)
	}
	if a.Request.Status != arcade.RequestApproved || a.Request.ResolvedAt == nil || !a.Request.ResolvedAt.Equal(at) {
		t.Errorf("request = %+v", a.Request)
	}
	if a.Request.CreatedIdentityID == nil || *a.Request.CreatedIdentityID != "id-nova" {
		t.Errorf("createdIdentityId = %v", a.Request.CreatedIdentityID)
	}

	if ident, err := s.IdentityByRFID(ctx, "AA:BB:CC"); err != nil || ident.Username != "Nova" {
		t.Errorf("IdentityByRFID = %+v, %v", ident, err)
	}

	_, err = s.ApproveRequest(ctx, store.ApproveParams{RequestID: req.ID, IdentityID: "id-2", Username: "Other", At: at})
	if !errors.Is(err, arcade.ErrAlreadyResolved) {
		t.Errorf("second approve err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := s.RejectRequest(ctx, req.ID, at); !errors.Is(err, arcade.ErrAlreadyResolved) {
		t.Errorf("reject after approve err = %v, want ErrAlreadyResolved", err)
	}
}

func testReject(t *testing.T, s store.Store) {
	ctx := context.Background()

	req, _, _ := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", At: base})
	if _, err := s.RejectRequest(ctx, 9999, base); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("reject missing err = %v", err)
	}

	r, err := s.RejectRequest(ctx, req.ID, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if r.Status != arcade.RequestRejected || r.ResolvedAt == nil || r.CreatedIdentityID != nil {
		t.Errorf("rejected = %+v", r)
	}

	// A rejected request does not block the badge.
	again, created, err := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "AA:BB:CC", At: base.Add(2 * time.Minute)})
	if err != nil {
		t.Fatalf("CreateOrGetPending after reject: %v", err)
	}
	if !created || again.ID == req.ID {
		t.Errorf("expected a fresh request, got %+v created=%v", again, created)
	}

	other, _, _ := s.CreateOrGetPending(ctx, store.NewRequest{RFIDTag: "DD:EE", At: base})
	if _, err := s.RejectRequest(ctx, other.ID, base.Add(3*time.Minute)); err != nil {
		t.Fatal(err)
	}

	resolved, err := s.ListResolved(ctx, 10)
	if err != nil {
		t.Fatalf("ListResolved: %v", err)
	}
	if len(resolved) != 2 || resolved[0].ID != other.ID || resolved[1].ID != req.ID {
		t.Errorf("resolved order = %+v", resolved)
	}
	pending, _ := s.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != again.ID {
		t.Errorf("pending = %+v", pending)
	}
}

func testGameSessions(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := arcade.GameSessionRecord{
			Player1ID:       "p1",
			Player2ID:       "p2",
			Score1:          8,
			Score2:          i,
			WinnerID:        strp("p1"),
			DurationSeconds: 30 + i,
			StartedAt:       base.Add(time.Duration(i) * time.Minute),
			EndedAt:         base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		got, err := s.RecordSession(ctx, rec)
		if err != nil {
			t.Fatalf("RecordSession: %v", err)
		}
		if got.ID == 0 {
			t.Error("record id not assigned")
		}
	}

	recent, err := s.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].Score2 != 2 || recent[1].Score2 != 1 {
		t.Errorf("recent order = %+v", recent)
	}
	if recent[0].WinnerID == nil || *recent[0].WinnerID != "p1" {
		t.Errorf("winner = %v", recent[0].WinnerID)
	}
}

func testAdmin(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.EnsureAdmin(ctx, "admin@example.com", "hash-1"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if err := s.EnsureAdmin(ctx, "admin@example.com", "hash-2"); err != nil {
		t.Fatalf("EnsureAdmin again: %v", err)
	}
	a, err := s.AdminByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("AdminByEmail: %v", err)
	}
	if a.PasswordHash != "hash-2" {
		t.Errorf("password hash = %q, want hash-2", a.PasswordHash)
	}
	if _, err := s.AdminByEmail(ctx, "nobody@example.com"); !errors.Is(err, arcade.ErrNotFound) {
		t.Errorf("AdminByEmail missing: err = %v", err)
	}

	sid, err := s.CreateAdminSession(ctx, a.ID, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateAdminSession: %v", err)
	}
	sess, err := s.AdminFromSession(ctx, sid, base)
	if err != nil {
		t.Fatalf("AdminFromSession: %v", err)
	}
	if sess.AdminID != a.ID || sess.Email != "admin@example.com" {
		t.Errorf("session = %+v", sess)
	}
	if _, err := s.AdminFromSession(ctx, sid, base.Add(2*time.Hour)); !errors.Is(err, arcade.ErrUnauthorized) {
		t.Errorf("expired session err = %v", err)
	}

	if err := s.DeleteAdminSession(ctx, sid); err != nil {
		t.Fatalf("DeleteAdminSession: %v", err)
	}
	if _, err := s.AdminFromSession(ctx, sid, base); !errors.Is(err, arcade.ErrUnauthorized) {
		t.Errorf("deleted session err = %v", err)
	}
}
