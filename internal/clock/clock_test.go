package clock_test

import (
	"testing"
	"time"

	"github.com/hickagpt/agenda/internal/clock"
)

func TestSystem_TracksWallClock(t *testing.T) {
	before := time.Now()
	got := clock.System{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("System.Now() = %v, want within [%v, %v]", got, before, after)
	}
}

func TestManual_SetAndAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(base)

	if !clk.Now().Equal(base) {
		t.Fatalf("Now = %v, want %v", clk.Now(), base)
	}

	clk.Advance(90 * time.Minute)
	if !clk.Now().Equal(base.Add(90 * time.Minute)) {
		t.Errorf("Now after Advance = %v, want %v", clk.Now(), base.Add(90*time.Minute))
	}

	clk.Set(base)
	if !clk.Now().Equal(base) {
		t.Errorf("Now after Set = %v, want %v", clk.Now(), base)
	}
}
