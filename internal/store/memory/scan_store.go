package memory

import (
	"context"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
)

func (s *Store) InsertScan(_ context.Context, rfidTag string, machineID *string, at time.Time) (arcade.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertScanLocked(rfidTag, machineID, at), nil
}

func (s *Store) insertScanLocked(rfidTag string, machineID *string, at time.Time) arcade.Scan {
	s.nextScanID++
	sc := arcade.Scan{
		ID:        s.nextScanID,
		RFIDTag:   rfidTag,
		MachineID: machineID,
		ScannedAt: at.UTC(),
	}
	s.scans[sc.ID] = sc
	return sc
}

func (s *Store) GetScan(_ context.Context, id int64) (arcade.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[id]
	if !ok {
		return arcade.Scan{}, arcade.ErrNotFound
	}
	return sc, nil
}

func (s *Store) MarkConsumed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[id]
	if !ok {
		return arcade.ErrNotFound
	}
	sc.Consumed = true
	s.scans[id] = sc
	return nil
}

func (s *Store) RevokeScan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[id]
	if !ok {
		return arcade.ErrNotFound
	}
	sc.Revoked = true
	s.scans[id] = sc
	return nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sc := range s.scans {
		if sc.ScannedAt.Before(cutoff) {
			delete(s.scans, id)
			n++
		}
	}
	for id, r := range s.requests {
		if r.ScanID != nil {
			if _, ok := s.scans[*r.ScanID]; !ok {
				r.ScanID = nil
				s.requests[id] = r
			}
		}
	}
	return n, nil
}
