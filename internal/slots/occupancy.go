package slots

import (
	"fmt"
	"sort"
	"time"

	"stationbook/internal/interval"
	"stationbook/internal/model"
)

// InvariantViolation reports corrupt occupancy data for a single station.
type InvariantViolation struct {
	StationID int64
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("station %d: %s", e.StationID, e.Detail)
}

// Occupancy is the projected busy time of a station on one day.
type Occupancy struct {
	// Busy holds coalesced appointment and unavailability runs.
	Busy []interval.Interval
	// Exclusion holds Busy padded by the station break on both sides.
	Exclusion []interval.Interval
}

// ProjectOccupancy merges bookings and blocks overlapping day into busy runs.
// Overlapping occupying appointments on the station return *InvariantViolation.
func ProjectOccupancy(
	stationID int64,
	day interval.Interval,
	appointments []model.Appointment,
	blocks []model.StationUnavailability,
	brk time.Duration,
) (Occupancy, error) {
	var booked []model.Appointment
	for i := range appointments {
		a := appointments[i]
		if a.StationID != stationID || !a.Occupies() {
			continue
		}
		if !a.EndAt.After(a.StartAt) {
			if a.StartAt.Before(day.Start) || !a.StartAt.Before(day.End) {
				continue
			}
			return Occupancy{}, &InvariantViolation{
				StationID: stationID,
				Detail:    fmt.Sprintf("appointment %s ends before it starts", a.ID),
			}
		}
		if !day.Overlaps(interval.Interval{Start: a.StartAt, End: a.EndAt}) {
			continue
		}
		booked = append(booked, a)
	}

	if err := checkNoDoubleBooking(stationID, booked); err != nil {
		return Occupancy{}, err
	}

	busy := make([]interval.Interval, 0, len(booked)+len(blocks))
	for _, a := range booked {
		busy = append(busy, interval.Interval{Start: a.StartAt, End: a.EndAt})
	}
	for _, b := range blocks {
		if b.StationID != stationID || !b.IsActive {
			continue
		}
		iv := interval.Interval{Start: b.StartTime, End: b.EndTime}
		if iv.Empty() || !day.Overlaps(iv) {
			continue
		}
		busy = append(busy, iv)
	}

	runs := interval.Coalesce(busy)
	padded := make([]interval.Interval, 0, len(runs))
	for _, r := range runs {
		padded = append(padded, r.Pad(brk))
	}

	return Occupancy{Busy: runs, Exclusion: interval.Coalesce(padded)}, nil
}

func checkNoDoubleBooking(stationID int64, booked []model.Appointment) error {
	if len(booked) < 2 {
		return nil
	}
	sorted := append([]model.Appointment(nil), booked...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartAt.Before(sorted[j].StartAt)
	})

	latest := sorted[0]
	for _, a := range sorted[1:] {
		if a.StartAt.Before(latest.EndAt) {
			return &InvariantViolation{
				StationID: stationID,
				Detail:    fmt.Sprintf("appointments %s and %s overlap", latest.ID, a.ID),
			}
		}
		if a.EndAt.After(latest.EndAt) {
			latest = a
		}
	}
	return nil
}
