package memory

import (
	"context"
	"sort"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/store"
)

func (s *Store) CreateOrGetPending(_ context.Context, req store.NewRequest) (arcade.RegistrationRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests {
		if r.RFIDTag == req.RFIDTag && r.Status == arcade.RequestPending {
			return r, false, nil
		}
	}

	s.nextReqID++
	r := arcade.RegistrationRequest{
		ID:        s.nextReqID,
		RFIDTag:   req.RFIDTag,
		ScanID:    req.ScanID,
		MachineID: req.MachineID,
		SlotHint:  req.SlotHint,
		Status:    arcade.RequestPending,
		CreatedAt: req.At.UTC(),
	}
	s.requests[r.ID] = r
	return r, true, nil
}

func (s *Store) GetRequest(_ context.Context, id int64) (arcade.RegistrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return arcade.RegistrationRequest{}, arcade.ErrNotFound
	}
	return r, nil
}

func (s *Store) ApproveRequest(_ context.Context, p store.ApproveParams) (store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[p.RequestID]
	if !ok {
		return store.Approval{}, arcade.ErrNotFound
	}
	if r.Status != arcade.RequestPending {
		return store.Approval{}, arcade.ErrAlreadyResolved
	}
	tag := r.RFIDTag
	if err := s.checkIdentityLocked(p.Username, &tag, p.Email); err != nil {
		return store.Approval{}, err
	}

	at := p.At.UTC()
	ident := arcade.Identity{
		ID:        p.IdentityID,
		Username:  p.Username,
		Email:     p.Email,
		RFIDTag:   &tag,
		CreatedAt: at,
	}
	s.identities[ident.ID] = ident

	sc := s.insertScanLocked(tag, r.MachineID, at)

	r.Status = arcade.RequestApproved
	r.ResolvedAt = &at
	r.CreatedIdentityID = ptr(ident.ID)
	s.requests[r.ID] = r

	return store.Approval{Request: r, Identity: ident, Scan: sc}, nil
}

func (s *Store) RejectRequest(_ context.Context, id int64, at time.Time) (arcade.RegistrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return arcade.RegistrationRequest{}, arcade.ErrNotFound
	}
	if r.Status != arcade.RequestPending {
		return arcade.RegistrationRequest{}, arcade.ErrAlreadyResolved
	}
	at = at.UTC()
	r.Status = arcade.RequestRejected
	r.ResolvedAt = &at
	s.requests[id] = r
	return r, nil
}

func (s *Store) ListPending(context.Context) ([]arcade.RegistrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []arcade.RegistrationRequest
	for _, r := range s.requests {
		if r.Status == arcade.RequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListResolved(_ context.Context, limit int) ([]arcade.RegistrationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []arcade.RegistrationRequest
	for _, r := range s.requests {
		if r.Status != arcade.RequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := *out[i].ResolvedAt, *out[j].ResolvedAt
		if ti.Equal(tj) {
			return out[i].ID > out[j].ID
		}
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
