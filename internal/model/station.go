package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Station is a physical resource (chair, room, cabinet) with its own schedule.
type Station struct {
	ID                       int64     `json:"id"`
	Name                     string    `json:"name"`
	IsActive                 bool      `json:"is_active"`
	BreakBetweenAppointments int       `json:"break_between_appointments"` // minutes
	SlotIntervalMinutes      int       `json:"slot_interval_minutes"`
	DisplayOrder             int       `json:"display_order"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Break returns the buffer enforced around every booking.
func (s *Station) Break() time.Duration {
	if s.BreakBetweenAppointments <= 0 {
		return 0
	}
	return time.Duration(s.BreakBetweenAppointments) * time.Minute
}

// SlotInterval returns the candidate start granularity; 30 minutes when unset.
func (s *Station) SlotInterval() time.Duration {
	if s.SlotIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.SlotIntervalMinutes) * time.Minute
}

// WorkingShift is a recurring weekly opening of a station.
type WorkingShift struct {
	ID         int64  `json:"id"`
	StationID  int64  `json:"station_id"`
	DayOfWeek  int    `json:"day_of_week"` // 1-7 (Monday-Sunday)
	OpenTime   string `json:"open_time"`   // "09:00"
	CloseTime  string `json:"close_time"`  // "18:00"
	ShiftOrder int    `json:"shift_order"`
}

// BusinessHour is the global opening ceiling for a weekday.
type BusinessHour struct {
	DayOfWeek int    `json:"day_of_week"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// StationUnavailability is an ad-hoc block (maintenance, holiday, training).
type StationUnavailability struct {
	ID        int64     `json:"id"`
	StationID int64     `json:"station_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	IsActive  bool      `json:"is_active"`
}

// Weekday converts a date to the 1=Mon..7=Sun convention used by schedules.
func Weekday(date time.Time) int {
	day := int(date.Weekday())
	if day == 0 {
		day = 7 // Sunday = 7
	}
	return day
}

// StartOfDay returns midnight of date in loc.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// DayRange returns [startOfDay, endOfDay) of date in loc.
func DayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	start := StartOfDay(date, loc)
	return start, start.AddDate(0, 0, 1)
}

// TimeOnDate places an "HH:MM" clock time on the calendar day of date.
// "24:00" resolves to the following midnight.
func TimeOnDate(date time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// ParseClock parses "HH:MM" in the range 00:00..24:00.
func ParseClock(clock string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %q", clock)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour: %w", err)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute: %w", err)
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("time out of range: %q", clock)
	}
	return hour, minute, nil
}
