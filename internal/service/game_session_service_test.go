package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/service"
	"github.com/playperu/riftbound/internal/store/memory"
)

func intp(n int) *int { return &n }

func TestGameSessionRecord(t *testing.T) {
	svc := service.NewGameSessionService(memory.New(), silentLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		in   service.GameSessionInput
		want error
	}{
		{"ok", service.GameSessionInput{Player1ID: "a", Player2ID: "b", Score1: intp(8), Score2: intp(3), WinnerID: strp("a"), DurationSeconds: 42}, nil},
		{"missing player", service.GameSessionInput{Player1ID: "a", Score1: intp(1), Score2: intp(1)}, arcade.ErrValidation},
		{"missing score", service.GameSessionInput{Player1ID: "a", Player2ID: "b", Score1: intp(1)}, arcade.ErrValidation},
		{"negative score", service.GameSessionInput{Player1ID: "a", Player2ID: "b", Score1: intp(-1), Score2: intp(1)}, arcade.ErrValidation},
		{"foreign winner", service.GameSessionInput{Player1ID: "a", Player2ID: "b", Score1: intp(1), Score2: intp(1), WinnerID: strp("c")}, arcade.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := svc.Record(ctx, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if tt.want == nil {
				if rec.ID == 0 || rec.EndedAt.Sub(rec.StartedAt).Seconds() != 42 {
					t.Errorf("record = %+v", rec)
				}
			}
		})
	}
}

func TestGameSessionRecentLimits(t *testing.T) {
	st := memory.New()
	svc := service.NewGameSessionService(st, silentLogger())
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		if _, err := svc.Record(ctx, service.GameSessionInput{Player1ID: "a", Player2ID: "b", Score1: intp(i), Score2: intp(0)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		limit, want int
	}{
		{0, 10},
		{-5, 10},
		{25, 25},
		{500, 100},
	}
	for _, tt := range tests {
		recs, err := svc.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != tt.want {
			t.Errorf("Recent(%d) = %d records, want %d", tt.limit, len(recs), tt.want)
		}
	}

	recs, _ := svc.Recent(ctx, 1)
	if recs[0].Score1 != 119 {
		t.Errorf("newest score1 = %d, want 119", recs[0].Score1)
	}
}
