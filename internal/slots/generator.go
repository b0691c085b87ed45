package slots

import (
	"time"

	"stationbook/internal/interval"
)

// Stride selects how far apart consecutive candidates inside one free gap are.
type Stride string

const (
	// StridePacked spaces candidates by duration+break rounded up to the grid,
	// so any two offered slots of a station can both be booked.
	StridePacked Stride = "packed"
	// StrideGrid offers every grid point that fits.
	StrideGrid Stride = "grid"
)

// ParseStride maps a config value to a Stride, defaulting to packed.
func ParseStride(s string) Stride {
	if Stride(s) == StrideGrid {
		return StrideGrid
	}
	return StridePacked
}

// Slot is a bookable start time of fixed duration at a station.
type Slot struct {
	StationID int64
	Start     time.Time
	Duration  time.Duration
}

// End returns Start + Duration.
func (s Slot) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Params holds the inputs of one station's slot generation.
type Params struct {
	StationID int64
	Open      []interval.Interval // working windows, sorted and disjoint
	Exclusion []interval.Interval // padded busy zones
	Duration  time.Duration
	Step      time.Duration // slot grid
	Break     time.Duration
	Cutoff    time.Time // candidates must start strictly after this instant
	Stride    Stride
}

// Generate emits valid start times for one station, ordered by start.
func Generate(p Params) []Slot {
	if p.Duration <= 0 {
		return nil
	}
	step := p.Step
	if step <= 0 {
		step = 30 * time.Minute
	}

	stride := step
	if p.Stride != StrideGrid {
		stride = ceilTo(p.Duration+p.Break, step)
	}

	var out []Slot
	for _, open := range p.Open {
		origin := open.Start
		for _, free := range interval.Subtract(open, p.Exclusion) {
			for start := gridCeil(origin, free.Start, step); !start.Add(p.Duration).After(free.End); start = start.Add(stride) {
				if !start.After(p.Cutoff) {
					continue
				}
				out = append(out, Slot{StationID: p.StationID, Start: start, Duration: p.Duration})
			}
		}
	}
	return out
}

// gridCeil returns the first origin + k*step (k >= 0) not before t.
func gridCeil(origin, t time.Time, step time.Duration) time.Time {
	if !t.After(origin) {
		return origin
	}
	offset := t.Sub(origin)
	k := offset / step
	if offset%step != 0 {
		k++
	}
	return origin.Add(k * step)
}

func ceilTo(d, step time.Duration) time.Duration {
	if d <= step {
		return step
	}
	if d%step == 0 {
		return d
	}
	return (d/step + 1) * step
}
