package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/store"
)

func trim(s string) string { return strings.TrimSpace(s) }

type ScanInput struct {
	RFIDTag   string
	MachineID *string
}

type ScanResult struct {
	Success bool  `json:"success"`
	Known   bool  `json:"known"`
	ScanID  int64 `json:"scanId"`
}

// ScanService records hardware badge reads and announces them.
type ScanService struct {
	scans      store.ScanStore
	identities store.IdentityStore
	bus        *bus.Bus[arcade.ScanEvent]
	logger     *slog.Logger
	now        func() time.Time
}

func NewScanService(scans store.ScanStore, identities store.IdentityStore, b *bus.Bus[arcade.ScanEvent], logger *slog.Logger) *ScanService {
	return &ScanService{
		scans:      scans,
		identities: identities,
		bus:        b,
		logger:     logger.With("component", "scan"),
		now:        time.Now,
	}
}

// Ingest persists the scan before publishing it, so subscribers can look
// the scan id up as soon as they see the event.
func (s *ScanService) Ingest(ctx context.Context, in ScanInput) (ScanResult, error) {
	tag := trim(in.RFIDTag)
	if tag == "" {
		return ScanResult{}, arcade.Required("rfidUuid")
	}
	machineID := trimmedPtr(in.MachineID)

	sc, err := s.scans.InsertScan(ctx, tag, machineID, s.now())
	if err != nil {
		return ScanResult{}, fmt.Errorf("recording scan: %w", err)
	}

	ev := arcade.ScanEvent{
		ID:        sc.ID,
		RFIDTag:   sc.RFIDTag,
		MachineID: sc.MachineID,
		Timestamp: sc.ScannedAt,
	}
	ident, err := s.identities.IdentityByRFID(ctx, tag)
	switch {
	case err == nil:
		ev.Known = true
		ev.Identity = &ident
	case !errors.Is(err, arcade.ErrNotFound):
		return ScanResult{}, fmt.Errorf("resolving badge: %w", err)
	}

	n := s.bus.Publish(TopicScan, ev)
	s.logger.Info("scan ingested", "scan_id", sc.ID, "known", ev.Known, "subscribers", n)

	if err := s.scans.MarkConsumed(ctx, sc.ID); err != nil {
		s.logger.Warn("marking scan consumed", "scan_id", sc.ID, "error", err)
	}

	return ScanResult{Success: true, Known: ev.Known, ScanID: sc.ID}, nil
}

// Revoke invalidates a scan credential (kiosk logout).
func (s *ScanService) Revoke(ctx context.Context, scanID int64) error {
	if scanID <= 0 {
		return arcade.Required("scanId")
	}
	if err := s.scans.RevokeScan(ctx, scanID); err != nil {
		return fmt.Errorf("revoking scan: %w", err)
	}
	s.logger.Info("scan revoked", "scan_id", scanID)
	return nil
}
