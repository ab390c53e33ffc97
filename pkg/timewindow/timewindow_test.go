package timewindow

import (
	"testing"
	"time"
)

func clock(h, m int) *Clock {
	return &Clock{Hour: h, Minute: m}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", Clock{9, 0}, false},
		{"00:00", Clock{0, 0}, false},
		{"23:59", Clock{23, 59}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"12:345", Clock{}, true},
		{"9:30", Clock{}, true},
		{"12:3a", Clock{}, true},
		{"9am", Clock{}, true},
		{"", Clock{}, true},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseClock(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("now"); err != nil || m != ModeNow {
		t.Errorf("ParseMode(now) = %v, %v", m, err)
	}
	if m, err := ParseMode("HISTORY"); err != nil || m != ModeHistory {
		t.Errorf("ParseMode(HISTORY) = %v, %v", m, err)
	}
	if _, err := ParseMode("yesterday"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestResolve(t *testing.T) {
	t.Run("History window with lookback and floor", func(t *testing.T) {
		w, err := Resolve(Spec{
			Mode:            ModeHistory,
			Reference:       time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
			Location:        time.UTC,
			LookbackDays:    2,
			StartOfDayFloor: clock(0, 0),
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		wantStart := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)
		wantEnd := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
		if !w.Start.Equal(wantStart) || !w.End.Equal(wantEnd) {
			t.Errorf("got %v, want [%v, %v]", w, wantStart, wantEnd)
		}
	})

	t.Run("Day shift applies before the threshold", func(t *testing.T) {
		w, err := Resolve(Spec{
			Mode:              ModeNow,
			Reference:         time.Date(2025, 6, 20, 5, 0, 0, 0, time.UTC),
			Location:          time.UTC,
			DayShiftThreshold: clock(9, 0),
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if w.End.Day() != 19 {
			t.Errorf("expected end on 2025-06-19, got %v", w.End)
		}
	})

	t.Run("Day shift does not apply at or after the threshold", func(t *testing.T) {
		w, err := Resolve(Spec{
			Mode:              ModeNow,
			Reference:         time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC),
			Location:          time.UTC,
			DayShiftThreshold: clock(9, 0),
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if w.End.Day() != 20 {
			t.Errorf("expected end on 2025-06-20, got %v", w.End)
		}
	})

	t.Run("Day shift is ignored in history mode", func(t *testing.T) {
		w, err := Resolve(Spec{
			Mode:              ModeHistory,
			Reference:         time.Date(2025, 6, 20, 5, 0, 0, 0, time.UTC),
			Location:          time.UTC,
			DayShiftThreshold: clock(9, 0),
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if w.End.Day() != 20 {
			t.Errorf("expected end on 2025-06-20, got %v", w.End)
		}
	})

	t.Run("Round to hour truncates the end bound", func(t *testing.T) {
		w, err := Resolve(Spec{
			Mode:        ModeNow,
			Reference:   time.Date(2025, 6, 20, 14, 47, 0, 0, time.UTC),
			Location:    time.UTC,
			RoundToHour: true,
		})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		want := time.Date(2025, 6, 20, 14, 0, 0, 0, time.UTC)
		if !w.End.Equal(want) {
			t.Errorf("got end %v, want %v", w.End, want)
		}
	})

	t.Run("Negative lookback is rejected", func(t *testing.T) {
		_, err := Resolve(Spec{
			Mode:         ModeNow,
			Reference:    time.Now(),
			LookbackDays: -1,
		})
		if err == nil {
			t.Fatal("expected an error for negative lookbackDays")
		}
	})

	t.Run("Day shift with rounding is rejected outside UTC", func(t *testing.T) {
		loc, err := time.LoadLocation("Europe/Vienna")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		_, err = Resolve(Spec{
			Mode:              ModeNow,
			Reference:         time.Now(),
			Location:          loc,
			DayShiftThreshold: clock(9, 0),
			RoundToHour:       true,
		})
		if err == nil {
			t.Fatal("expected an error for dayShiftThreshold+roundToHour in a non-UTC zone")
		}
	})
}

func TestWindowContains(t *testing.T) {
	w := Window{
		Start: time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
	}

	// Both bounds are inclusive.
	if !w.Contains(w.Start) {
		t.Error("start bound must be inside the window")
	}
	if !w.Contains(w.End) {
		t.Error("end bound must be inside the window")
	}
	if w.Contains(w.Start.Add(-time.Minute)) {
		t.Error("instant before start must be outside")
	}
	if w.Contains(w.End.Add(time.Minute)) {
		t.Error("instant after end must be outside")
	}
}

func TestWindowDays(t *testing.T) {
	w := Window{
		Start: time.Date(2025, 6, 18, 6, 30, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 20, 1, 0, 0, 0, time.UTC),
	}
	days := w.Days()
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d: %v", len(days), days)
	}
	for i, wantDay := range []int{18, 19, 20} {
		if days[i].Day() != wantDay || days[i].Hour() != 0 {
			t.Errorf("days[%d] = %v, want midnight of day %d", i, days[i], wantDay)
		}
	}
}

func TestWindowCapEnd(t *testing.T) {
	w := Window{
		Start: time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC),
	}
	capAt := time.Date(2025, 6, 20, 6, 0, 0, 0, time.UTC)
	if got := w.CapEnd(capAt); !got.End.Equal(capAt) {
		t.Errorf("expected end capped to %v, got %v", capAt, got.End)
	}
	later := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	if got := w.CapEnd(later); !got.End.Equal(w.End) {
		t.Errorf("a later cap must not raise the end, got %v", got.End)
	}
}
