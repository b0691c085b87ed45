package availability

import (
	"sort"
	"time"

	"stationbook/internal/slots"
)

// mergeSlots flattens per-station results into one list ordered by start,
// then station display position, then station ID.
func mergeSlots(perStation [][]slots.Slot, order map[int64]int) []slots.Slot {
	var n int
	for _, list := range perStation {
		n += len(list)
	}
	merged := make([]slots.Slot, 0, n)
	for _, list := range perStation {
		merged = append(merged, list...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if order[a.StationID] != order[b.StationID] {
			return order[a.StationID] < order[b.StationID]
		}
		return a.StationID < b.StationID
	})
	return merged
}

func timeView(p *plan, list []slots.Slot, loc *time.Location) []TimeSlot {
	out := make([]TimeSlot, 0, len(list))
	for _, s := range list {
		idx, ok := p.order[s.StationID]
		if !ok {
			continue
		}
		c := p.candidates[idx]
		start := s.Start.In(loc)
		out = append(out, TimeSlot{
			StationID:        c.Station.ID,
			StationName:      c.Station.Name,
			Time:             start.Format("15:04"),
			StartsAt:         start,
			DurationMinutes:  int(s.Duration / time.Minute),
			RequiresApproval: c.RequiresStaffApproval,
			Price:            c.Price,
		})
	}
	return out
}
