// Package calendar decides which days the exchange trades and when the
// end-of-day data for a session becomes available.
//
// Holidays are not modelled: every Monday to Friday counts as a trading day.
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for dates in cache files and API payloads.
const DateLayout = "2006-01-02"

// Default cutoff after which the current session's bars are published (13:30 local).
const (
	DefaultCutoffHour   = 13
	DefaultCutoffMinute = 30
)

// DefaultTimezone is the exchange's IANA zone.
const DefaultTimezone = "Asia/Taipei"

// Location is the exchange time zone all date arithmetic happens in.
var Location = loadLocation(DefaultTimezone)

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// SetLocation switches the exchange time zone.
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load location %q: %w", name, err)
	}
	Location = loc
	return nil
}

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// First returns midnight of the first day of the month.
func (ym YearMonth) First() time.Time {
	return Date(ym.Year, ym.Month, 1)
}

// Date returns midnight of the given day in the exchange time zone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location)
}

// Truncate drops the clock part of t after converting it to the exchange time zone.
func Truncate(t time.Time) time.Time {
	lt := t.In(Location)
	return Date(lt.Year(), lt.Month(), lt.Day())
}

// ParseDate parses a YYYY-MM-DD string as an exchange-local date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD in the exchange time zone.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Location).Format(DateLayout)
}

// IsTradingDay returns true if t falls on Monday through Friday.
func IsTradingDay(t time.Time) bool {
	wd := t.In(Location).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// PreviousTradingDay returns the closest trading day strictly before t.
func PreviousTradingDay(t time.Time) time.Time {
	d := Truncate(t).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LatestAvailableDate returns the most recent session whose bars should already
// be published at now. Today counts only on a trading day at or after the cutoff.
func LatestAvailableDate(now time.Time, cutoffHour, cutoffMinute int) time.Time {
	lt := now.In(Location)
	today := Truncate(lt)
	cutoff := time.Date(lt.Year(), lt.Month(), lt.Day(), cutoffHour, cutoffMinute, 0, 0, Location)
	if IsTradingDay(today) && !lt.Before(cutoff) {
		return today
	}
	return PreviousTradingDay(today)
}

// MonthsBetween lists every month touched by [start, end], ascending.
func MonthsBetween(start, end time.Time) []YearMonth {
	s, e := start.In(Location), end.In(Location)
	y, m := s.Year(), s.Month()
	var months []YearMonth
	for y < e.Year() || (y == e.Year() && m <= e.Month()) {
		months = append(months, YearMonth{Year: y, Month: m})
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return months
}

// TradingDaysBetween lists the trading days in [start, end], ascending.
func TradingDaysBetween(start, end time.Time) []time.Time {
	last := Truncate(end)
	var days []time.Time
	for d := Truncate(start); !d.After(last); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}
