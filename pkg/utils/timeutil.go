package utils

import (
	"time"
)

// Eastern is the US market time zone.
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		Eastern = time.FixedZone("EST", -5*60*60)
	}
}

// NowEastern returns the current time in US Eastern time.
func NowEastern() time.Time {
	return time.Now().In(Eastern)
}

// MarketOpenTime returns the NYSE opening time (9:30 AM ET) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, Eastern)
}

// MarketCloseTime returns the NYSE closing time (4:00 PM ET) for a given date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(Eastern)
	return time.Date(d.Year(), d.Month(), d.Day(), 16, 0, 0, 0, Eastern)
}

// IsMarketOpen checks if the US equity market is currently open.
func IsMarketOpen() bool {
	return IsMarketOpenAt(NowEastern())
}

// IsMarketOpenAt checks if the US equity market would be open at the given time.
func IsMarketOpenAt(t time.Time) bool {
	t = t.In(Eastern)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}

	if IsTradingHoliday(t) {
		return false
	}

	open := MarketOpenTime(t)
	close := MarketCloseTime(t)

	return !t.Before(open) && t.Before(close)
}

// IsTradingDay checks if the given date is a trading day (not weekend, not holiday).
func IsTradingDay(t time.Time) bool {
	t = t.In(Eastern)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsTradingHoliday(t)
}

// PrevTradingDay returns the previous trading day from the given date.
func PrevTradingDay(from time.Time) time.Time {
	prev := from.In(Eastern).AddDate(0, 0, -1)
	for !IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// IsTradingHoliday checks if the given date is a US exchange holiday.
// This list should be updated annually.
func IsTradingHoliday(t time.Time) bool {
	t = t.In(Eastern)
	dateStr := t.Format("2006-01-02")

	_, isHoliday := nyseHolidays2026[dateStr]
	return isHoliday
}

// NYSE trading holidays for 2026 (update annually).
var nyseHolidays2026 = map[string]string{
	"2026-01-01": "New Year's Day",
	"2026-01-19": "Martin Luther King Jr. Day",
	"2026-02-16": "Washington's Birthday",
	"2026-04-03": "Good Friday",
	"2026-05-25": "Memorial Day",
	"2026-06-19": "Juneteenth",
	"2026-07-03": "Independence Day (observed)",
	"2026-09-07": "Labor Day",
	"2026-11-26": "Thanksgiving Day",
	"2026-12-25": "Christmas Day",
}

// MarketStatus returns the current market status string.
func MarketStatus() string {
	return MarketStatusAt(NowEastern())
}

// MarketStatusAt returns the market status string for the given time.
func MarketStatusAt(t time.Time) string {
	t = t.In(Eastern)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}

	if IsTradingHoliday(t) {
		holiday := nyseHolidays2026[t.Format("2006-01-02")]
		return "CLOSED (" + holiday + ")"
	}

	open := MarketOpenTime(t)
	close := MarketCloseTime(t)

	switch {
	case t.Before(open):
		return "PRE-MARKET"
	case t.Before(close):
		return "OPEN"
	default:
		return "AFTER-HOURS"
	}
}

// ParseDate parses a date string in "2006-01-02" format in Eastern time.
func ParseDate(dateStr string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", dateStr, Eastern)
}

// FormatDate formats a time.Time to "2006-01-02" in Eastern time.
func FormatDate(t time.Time) string {
	return t.In(Eastern).Format("2006-01-02")
}
