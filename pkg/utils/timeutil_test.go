package utils

import (
	"testing"
	"time"
)

func TestNowEastern(t *testing.T) {
	now := NowEastern()
	loc := now.Location().String()
	if loc != "America/New_York" && loc != "EST" {
		t.Errorf("NowEastern() location = %s, want America/New_York or EST", loc)
	}
}

func TestMarketOpenClose(t *testing.T) {
	date := time.Date(2026, 2, 18, 12, 0, 0, 0, Eastern)

	open := MarketOpenTime(date)
	if open.Hour() != 9 || open.Minute() != 30 {
		t.Errorf("MarketOpenTime = %v, want 09:30", open)
	}

	close := MarketCloseTime(date)
	if close.Hour() != 16 || close.Minute() != 0 {
		t.Errorf("MarketCloseTime = %v, want 16:00", close)
	}
}

func TestIsMarketOpenAt(t *testing.T) {
	// Wednesday at 10:00 AM ET — should be open
	weekday := time.Date(2026, 2, 18, 10, 0, 0, 0, Eastern)
	if !IsMarketOpenAt(weekday) {
		t.Error("Expected market to be open on Wednesday 10:00 AM")
	}

	// Saturday — should be closed
	saturday := time.Date(2026, 2, 21, 10, 0, 0, 0, Eastern)
	if IsMarketOpenAt(saturday) {
		t.Error("Expected market to be closed on Saturday")
	}

	// Wednesday at 8:00 AM — before market open
	earlyMorning := time.Date(2026, 2, 18, 8, 0, 0, 0, Eastern)
	if IsMarketOpenAt(earlyMorning) {
		t.Error("Expected market to be closed at 8:00 AM")
	}

	// Wednesday at 4:30 PM — after market close
	afterHours := time.Date(2026, 2, 18, 16, 30, 0, 0, Eastern)
	if IsMarketOpenAt(afterHours) {
		t.Error("Expected market to be closed at 4:30 PM")
	}
}

func TestIsTradingHoliday(t *testing.T) {
	// Thanksgiving 2026
	thanksgiving := time.Date(2026, 11, 26, 10, 0, 0, 0, Eastern)
	if !IsTradingHoliday(thanksgiving) {
		t.Error("Expected Thanksgiving to be a trading holiday")
	}

	// Regular trading day
	normalDay := time.Date(2026, 2, 18, 10, 0, 0, 0, Eastern)
	if IsTradingHoliday(normalDay) {
		t.Error("Expected Feb 18 to NOT be a trading holiday")
	}
}

func TestIsTradingDay(t *testing.T) {
	// Wednesday — trading day
	if !IsTradingDay(time.Date(2026, 2, 18, 0, 0, 0, 0, Eastern)) {
		t.Error("Expected Wednesday to be a trading day")
	}

	// Saturday — not a trading day
	if IsTradingDay(time.Date(2026, 2, 21, 0, 0, 0, 0, Eastern)) {
		t.Error("Expected Saturday to not be a trading day")
	}

	// Holiday — not a trading day
	if IsTradingDay(time.Date(2026, 12, 25, 0, 0, 0, 0, Eastern)) {
		t.Error("Expected Christmas to not be a trading day")
	}
}

func TestPrevTradingDay(t *testing.T) {
	// Monday → prev trading day should be Friday
	monday := time.Date(2026, 2, 23, 0, 0, 0, 0, Eastern)
	prev := PrevTradingDay(monday)
	if prev.Weekday() != time.Friday || prev.Day() != 20 {
		t.Errorf("PrevTradingDay(Monday Feb 23) = %v, want Friday Feb 20", prev)
	}
}

func TestMarketStatusAt(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"weekend", time.Date(2026, 2, 21, 10, 0, 0, 0, Eastern), "CLOSED (Weekend)"},
		{"holiday", time.Date(2026, 12, 25, 10, 0, 0, 0, Eastern), "CLOSED (Christmas Day)"},
		{"pre-market", time.Date(2026, 2, 18, 7, 0, 0, 0, Eastern), "PRE-MARKET"},
		{"open", time.Date(2026, 2, 18, 11, 0, 0, 0, Eastern), "OPEN"},
		{"after-hours", time.Date(2026, 2, 18, 17, 0, 0, 0, Eastern), "AFTER-HOURS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarketStatusAt(tt.at); got != tt.want {
				t.Errorf("MarketStatusAt(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestParseFormatDate(t *testing.T) {
	d, err := ParseDate("2026-02-19")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.Year() != 2026 || d.Month() != 2 || d.Day() != 19 {
		t.Errorf("ParseDate = %v, want 2026-02-19", d)
	}
	if got := FormatDate(d); got != "2026-02-19" {
		t.Errorf("FormatDate = %s, want 2026-02-19", got)
	}
}
