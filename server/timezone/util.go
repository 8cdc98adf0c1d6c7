// Package timezone provides the local-day helpers used for budget pacing
// and the daily report schedule.
//
// Ad accounts report spend per local calendar day, so every "how far into the
// day are we" question must be answered in the account's zone, never in UTC.
package timezone

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Common timezone identifiers.
const (
	// TimezoneUTC is the UTC timezone identifier
	TimezoneUTC = "UTC"

	// TimezoneAsiaTokyo is the Japan Standard Time timezone
	TimezoneAsiaTokyo = "Asia/Tokyo"
)

// LocationAsiaTokyo is the pre-loaded default location.
var LocationAsiaTokyo = MustParseTimezone(TimezoneAsiaTokyo)

// ParseTimezone parses an IANA timezone identifier (e.g., "Asia/Tokyo").
// An empty identifier resolves to the default zone, Asia/Tokyo.
// If the timezone is invalid, returns the default zone and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	switch tz {
	case "":
		return LocationAsiaTokyo, nil
	case TimezoneUTC:
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return LocationAsiaTokyo, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// MustParseTimezone parses a timezone or panics if invalid.
// Use this for constants that are known to be valid at compile time.
func MustParseTimezone(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	if tz == "" || tz == TimezoneUTC {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = LocationAsiaTokyo
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// HoursElapsed returns the fractional hours since local midnight, e.g. 13.5 at 13:30.
func HoursElapsed(t time.Time, tz *time.Location) float64 {
	if tz == nil {
		tz = LocationAsiaTokyo
	}
	local := t.In(tz)
	return float64(local.Hour()) + float64(local.Minute())/60
}

// DayFraction returns the elapsed share of the local day in [0, 1).
func DayFraction(t time.Time, tz *time.Location) float64 {
	return HoursElapsed(t, tz) / 24
}

// FormatClock formats t as "15:04 MST" in the given zone.
func FormatClock(t time.Time, tz *time.Location) string {
	if tz == nil {
		tz = LocationAsiaTokyo
	}
	return t.In(tz).Format("15:04 MST")
}

// FormatDateTime formats t as "2006-01-02 15:04 MST" in the given zone.
func FormatDateTime(t time.Time, tz *time.Location) string {
	if tz == nil {
		tz = LocationAsiaTokyo
	}
	return t.In(tz).Format("2006-01-02 15:04 MST")
}

// NowInTimezone returns the current time in the given timezone.
func NowInTimezone(tz *time.Location) time.Time {
	if tz == nil {
		tz = LocationAsiaTokyo
	}
	return time.Now().In(tz)
}
