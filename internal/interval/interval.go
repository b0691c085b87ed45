// Package interval implements half-open [Start, End) time interval arithmetic
// used by the working window, occupancy and slot layers.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the interval contains no instant.
func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Duration returns End - Start, or 0 for empty intervals.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two half-open intervals share an instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Intersect returns the common part of i and o; ok is false when they do not overlap.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	start := i.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := i.End
	if o.End.Before(end) {
		end = o.End
	}
	res := Interval{Start: start, End: end}
	return res, !res.Empty()
}

// Pad widens the interval by d on both sides.
func (i Interval) Pad(d time.Duration) Interval {
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

// Sort orders intervals by start, then end.
func Sort(list []Interval) {
	sort.SliceStable(list, func(a, b int) bool {
		if list[a].Start.Equal(list[b].Start) {
			return list[a].End.Before(list[b].End)
		}
		return list[a].Start.Before(list[b].Start)
	})
}

// Coalesce merges overlapping or adjacent intervals into maximal disjoint runs.
// Empty intervals are dropped. The input slice is not modified.
func Coalesce(list []Interval) []Interval {
	if len(list) == 0 {
		return nil
	}

	sorted := make([]Interval, 0, len(list))
	for _, iv := range list {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	Sort(sorted)

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// ClipAll intersects every interval with bound and drops what falls outside.
func ClipAll(list []Interval, bound Interval) []Interval {
	var out []Interval
	for _, iv := range list {
		if clipped, ok := iv.Intersect(bound); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// Subtract removes every interval in holes from base and returns what is left,
// sorted and disjoint. holes need not be sorted or disjoint.
func Subtract(base Interval, holes []Interval) []Interval {
	if base.Empty() {
		return nil
	}

	var free []Interval
	cursor := base.Start
	for _, h := range Coalesce(holes) {
		if !h.End.After(cursor) {
			continue
		}
		if !h.Start.Before(base.End) {
			break
		}
		if h.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: h.Start})
		}
		cursor = h.End
		if !cursor.Before(base.End) {
			return free
		}
	}
	if cursor.Before(base.End) {
		free = append(free, Interval{Start: cursor, End: base.End})
	}
	return free
}

// OverlapsAny reports whether iv overlaps any interval of the list.
func OverlapsAny(iv Interval, list []Interval) bool {
	for _, o := range list {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}
