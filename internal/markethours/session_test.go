package markethours

import (
	"testing"
	"time"
)

func TestTradeDate_CalendarSession(t *testing.T) {
	s := UTCSession()
	ts := time.Date(2025, 5, 30, 23, 59, 0, 0, time.UTC)
	if got := s.TradeDate(ts); got != 20250530 {
		t.Errorf("expected 20250530, got %d", got)
	}
}

func TestTradeDate_EveningRoll(t *testing.T) {
	s, err := NewSession("UTC", "17:00")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	// Tuesday before the roll stays on Tuesday
	if got := s.TradeDate(time.Date(2025, 6, 3, 16, 59, 0, 0, time.UTC)); got != 20250603 {
		t.Errorf("before roll: expected 20250603, got %d", got)
	}
	// Tuesday after the roll belongs to Wednesday
	if got := s.TradeDate(time.Date(2025, 6, 3, 17, 0, 0, 0, time.UTC)); got != 20250604 {
		t.Errorf("after roll: expected 20250604, got %d", got)
	}
	// Sunday evening open belongs to Monday
	if got := s.TradeDate(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)); got != 20250602 {
		t.Errorf("sunday open: expected 20250602, got %d", got)
	}
	// Friday after the roll skips the weekend
	if got := s.TradeDate(time.Date(2025, 6, 6, 17, 30, 0, 0, time.UTC)); got != 20250609 {
		t.Errorf("friday after roll: expected 20250609, got %d", got)
	}
}

func TestTradeDate_Location(t *testing.T) {
	s := Session{Location: IST}
	// 20:00 UTC is 01:30 next day in IST
	ts := time.Date(2026, 1, 14, 20, 0, 0, 0, time.UTC)
	if got := s.TradeDate(ts); got != 20260115 {
		t.Errorf("expected 20260115, got %d", got)
	}
}

func TestNewSession_InvalidRoll(t *testing.T) {
	for _, roll := range []string{"17", "25:00", "10:61", "ab:cd"} {
		if _, err := NewSession("UTC", roll); err == nil {
			t.Errorf("roll %q: expected error", roll)
		}
	}
}

func TestLastDayOfMonth(t *testing.T) {
	cases := []struct {
		in   time.Time
		want int
		wd   time.Weekday
	}{
		{time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC), 31, time.Saturday},
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 29, time.Thursday},
		{time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), 31, time.Sunday},
	}
	for _, c := range cases {
		ld := LastDayOfMonth(c.in)
		if ld.Day() != c.want {
			t.Errorf("%s: expected day %d, got %d", c.in.Format("2006-01"), c.want, ld.Day())
		}
		if ld.Weekday() != c.wd {
			t.Errorf("%s: expected %v, got %v", c.in.Format("2006-01"), c.wd, ld.Weekday())
		}
	}
}

func TestIsWeekend(t *testing.T) {
	if !IsWeekend(time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)) {
		t.Error("2025-05-31 is a Saturday")
	}
	if IsWeekend(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
		t.Error("2025-06-02 is a Monday")
	}
}
