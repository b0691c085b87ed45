package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationbook/internal/interval"
	"stationbook/internal/model"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func span(h1, m1, h2, m2 int) interval.Interval {
	return interval.Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func starts(list []Slot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func TestResolveDuration(t *testing.T) {
	station := &model.Station{SlotIntervalMinutes: 30}

	tests := []struct {
		name     string
		base     int
		modifier int
		want     time.Duration
		wantErr  error
	}{
		{name: "base only stays unrounded", base: 45, want: 45 * time.Minute},
		{name: "modifier on grid", base: 45, modifier: 15, want: 60 * time.Minute},
		{name: "modifier off grid rounds up", base: 45, modifier: 10, want: 60 * time.Minute},
		{name: "negative modifier off grid rounds up", base: 60, modifier: -20, want: 60 * time.Minute},
		{name: "negative modifier on grid", base: 60, modifier: -30, want: 30 * time.Minute},
		{name: "clamps to zero", base: 30, modifier: -45, wantErr: ErrDegenerateDuration},
		{name: "zero base", base: 0, wantErr: ErrDegenerateDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDuration(tt.base, tt.modifier, station)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowBuilder_Build(t *testing.T) {
	b := NewWindowBuilder(nil)
	hours := &model.BusinessHour{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "20:00"}

	tests := []struct {
		name   string
		shifts []model.WorkingShift
		hours  *model.BusinessHour
		want   []interval.Interval
	}{
		{
			name:   "single shift inside hours",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 1, OpenTime: "10:00", CloseTime: "18:00"}},
			hours:  hours,
			want:   []interval.Interval{span(10, 0, 18, 0)},
		},
		{
			name:   "shift clipped to business hours",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 1, OpenTime: "07:00", CloseTime: "22:00"}},
			hours:  hours,
			want:   []interval.Interval{span(9, 0, 20, 0)},
		},
		{
			name: "morning and evening shifts",
			shifts: []model.WorkingShift{
				{StationID: 1, DayOfWeek: 1, OpenTime: "15:00", CloseTime: "19:00", ShiftOrder: 2},
				{StationID: 1, DayOfWeek: 1, OpenTime: "09:07", CloseTime: "13:00", ShiftOrder: 1},
			},
			hours: hours,
			want:  []interval.Interval{span(9, 7, 13, 0), span(15, 0, 19, 0)},
		},
		{
			name: "overlapping shifts are unioned",
			shifts: []model.WorkingShift{
				{StationID: 1, DayOfWeek: 1, OpenTime: "09:00", CloseTime: "13:00"},
				{StationID: 1, DayOfWeek: 1, OpenTime: "12:00", CloseTime: "16:00"},
			},
			hours: hours,
			want:  []interval.Interval{span(9, 0, 16, 0)},
		},
		{
			name:   "shift entirely outside hours",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 1, OpenTime: "20:00", CloseTime: "23:00"}},
			hours:  hours,
			want:   nil,
		},
		{
			name:   "other weekday ignored",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 2, OpenTime: "10:00", CloseTime: "18:00"}},
			hours:  hours,
			want:   nil,
		},
		{
			name:   "no business hours means closed",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 1, OpenTime: "10:00", CloseTime: "18:00"}},
			hours:  nil,
			want:   nil,
		},
		{
			name:   "invalid shift skipped",
			shifts: []model.WorkingShift{{StationID: 1, DayOfWeek: 1, OpenTime: "18:00", CloseTime: "10:00"}},
			hours:  hours,
			want:   nil,
		},
		{
			name:   "no shifts",
			shifts: nil,
			hours:  hours,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Build(1, monday, tt.shifts, tt.hours))
		})
	}
}

func TestProjectOccupancy(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}
	brk := 10 * time.Minute

	appts := []model.Appointment{
		{ID: "a1", StationID: 1, StartAt: at(10, 0), EndAt: at(10, 45), Status: model.StatusConfirmed},
		{ID: "a2", StationID: 1, StartAt: at(10, 45), EndAt: at(11, 30), Status: model.StatusPending},
		{ID: "a3", StationID: 1, StartAt: at(14, 0), EndAt: at(15, 0), Status: model.StatusCancelled},
		{ID: "a4", StationID: 2, StartAt: at(9, 0), EndAt: at(18, 0), Status: model.StatusConfirmed},
		{ID: "a5", StationID: 1, StartAt: at(-24, 0), EndAt: at(-23, 0), Status: model.StatusConfirmed},
	}
	blocks := []model.StationUnavailability{
		{StationID: 1, StartTime: at(16, 0), EndTime: at(17, 0), IsActive: true},
		{StationID: 1, StartTime: at(12, 0), EndTime: at(13, 0), IsActive: false},
	}

	occ, err := ProjectOccupancy(1, day, appts, blocks, brk)
	require.NoError(t, err)

	assert.Equal(t, []interval.Interval{span(10, 0, 11, 30), span(16, 0, 17, 0)}, occ.Busy)
	assert.Equal(t, []interval.Interval{span(9, 50, 11, 40), span(15, 50, 17, 10)}, occ.Exclusion)

	for i := 1; i < len(occ.Exclusion); i++ {
		assert.False(t, occ.Exclusion[i-1].Overlaps(occ.Exclusion[i]))
	}
	for _, b := range occ.Busy {
		covered := false
		for _, z := range occ.Exclusion {
			if z.Contains(b.Pad(brk)) {
				covered = true
			}
		}
		assert.True(t, covered, "busy run %v not padded", b)
	}
}

func TestProjectOccupancy_PaddingMergesCloseRuns(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}
	appts := []model.Appointment{
		{ID: "a1", StationID: 1, StartAt: at(10, 0), EndAt: at(10, 30), Status: model.StatusConfirmed},
		{ID: "a2", StationID: 1, StartAt: at(10, 45), EndAt: at(11, 0), Status: model.StatusConfirmed},
	}

	occ, err := ProjectOccupancy(1, day, appts, nil, 10*time.Minute)
	require.NoError(t, err)
	assert.Len(t, occ.Busy, 2)
	assert.Equal(t, []interval.Interval{span(9, 50, 11, 10)}, occ.Exclusion)
}

func TestProjectOccupancy_InvariantViolation(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}

	tests := []struct {
		name  string
		appts []model.Appointment
	}{
		{
			name: "overlapping bookings",
			appts: []model.Appointment{
				{ID: "a1", StationID: 1, StartAt: at(10, 0), EndAt: at(11, 0), Status: model.StatusConfirmed},
				{ID: "a2", StationID: 1, StartAt: at(10, 30), EndAt: at(11, 30), Status: model.StatusPending},
			},
		},
		{
			name: "nested booking",
			appts: []model.Appointment{
				{ID: "a1", StationID: 1, StartAt: at(9, 0), EndAt: at(12, 0), Status: model.StatusConfirmed},
				{ID: "a2", StationID: 1, StartAt: at(10, 0), EndAt: at(10, 30), Status: model.StatusConfirmed},
				{ID: "a3", StationID: 1, StartAt: at(11, 0), EndAt: at(11, 30), Status: model.StatusConfirmed},
			},
		},
		{
			name: "inverted booking",
			appts: []model.Appointment{
				{ID: "a1", StationID: 1, StartAt: at(11, 0), EndAt: at(10, 0), Status: model.StatusConfirmed},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProjectOccupancy(1, day, tt.appts, nil, 0)
			var violation *InvariantViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, int64(1), violation.StationID)
		})
	}
}

func TestProjectOccupancy_CancelledOverlapIsFine(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}
	appts := []model.Appointment{
		{ID: "a1", StationID: 1, StartAt: at(10, 0), EndAt: at(11, 0), Status: model.StatusConfirmed},
		{ID: "a2", StationID: 1, StartAt: at(10, 30), EndAt: at(11, 30), Status: model.StatusCancelled},
	}
	_, err := ProjectOccupancy(1, day, appts, nil, 0)
	assert.NoError(t, err)
}

func TestGenerate_ScenarioA_PackedStride(t *testing.T) {
	got := Generate(Params{
		StationID: 1,
		Open:      []interval.Interval{span(9, 0, 17, 0)},
		Duration:  45 * time.Minute,
		Step:      30 * time.Minute,
		Break:     10 * time.Minute,
		Cutoff:    monday.Add(-time.Hour),
		Stride:    StridePacked,
	})

	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, starts(got))
	for _, s := range got {
		assert.Equal(t, 45*time.Minute, s.Duration)
		assert.Equal(t, int64(1), s.StationID)
	}
}

func TestGenerate_GridStride(t *testing.T) {
	got := Generate(Params{
		Open:     []interval.Interval{span(9, 0, 11, 0)},
		Duration: 45 * time.Minute,
		Step:     30 * time.Minute,
		Break:    10 * time.Minute,
		Cutoff:   monday,
		Stride:   StrideGrid,
	})
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, starts(got))
}

func TestGenerate_ScenarioB_BreakAroundBooking(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}
	appts := []model.Appointment{
		{ID: "a1", StationID: 1, StartAt: at(10, 0), EndAt: at(10, 45), Status: model.StatusConfirmed},
	}
	occ, err := ProjectOccupancy(1, day, appts, nil, 10*time.Minute)
	require.NoError(t, err)

	for _, stride := range []Stride{StridePacked, StrideGrid} {
		got := Generate(Params{
			StationID: 1,
			Open:      []interval.Interval{span(9, 0, 17, 0)},
			Exclusion: occ.Exclusion,
			Duration:  30 * time.Minute,
			Step:      30 * time.Minute,
			Break:     10 * time.Minute,
			Cutoff:    monday,
			Stride:    stride,
		})
		require.NotEmpty(t, got)

		forbidden := span(9, 50, 10, 55)
		for _, s := range got {
			slot := interval.Interval{Start: s.Start, End: s.End()}
			assert.False(t, slot.Overlaps(forbidden), "stride %s: slot %s overlaps break zone", stride, s.Start.Format("15:04"))
		}
		assert.Equal(t, "09:00", got[0].Start.Format("15:04"))
		assert.Equal(t, "11:00", got[1].Start.Format("15:04"), "grid resumes aligned to the opening")
	}
}

func TestGenerate_GridAlignedToOpening(t *testing.T) {
	got := Generate(Params{
		Open:      []interval.Interval{span(9, 7, 11, 10)},
		Exclusion: []interval.Interval{span(9, 10, 9, 40)},
		Duration:  30 * time.Minute,
		Step:      30 * time.Minute,
		Cutoff:    monday,
		Stride:    StrideGrid,
	})
	// Free gaps: 09:07-09:10 (too short) and 09:40-11:10; grid runs 09:07, 09:37, 10:07...
	assert.Equal(t, []string{"10:07", "10:37"}, starts(got))
}

func TestGenerate_ExcludesPastAndNow(t *testing.T) {
	got := Generate(Params{
		Open:     []interval.Interval{span(9, 0, 12, 0)},
		Duration: 30 * time.Minute,
		Step:     30 * time.Minute,
		Cutoff:   at(10, 0),
		Stride:   StrideGrid,
	})
	assert.Equal(t, []string{"10:30", "11:00", "11:30"}, starts(got))
}

func TestGenerate_NoSlotOverlapsExclusionOrLeavesWindow(t *testing.T) {
	open := []interval.Interval{span(9, 0, 13, 0), span(14, 0, 18, 0)}
	exclusion := []interval.Interval{span(9, 50, 10, 55), span(12, 20, 14, 40), span(17, 15, 17, 35)}

	for _, stride := range []Stride{StridePacked, StrideGrid} {
		got := Generate(Params{
			Open:      open,
			Exclusion: exclusion,
			Duration:  40 * time.Minute,
			Step:      15 * time.Minute,
			Break:     5 * time.Minute,
			Cutoff:    monday,
			Stride:    stride,
		})
		require.NotEmpty(t, got)
		for _, s := range got {
			slot := interval.Interval{Start: s.Start, End: s.End()}
			assert.False(t, interval.OverlapsAny(slot, exclusion))
			inside := false
			for _, o := range open {
				if o.Contains(slot) {
					inside = true
				}
			}
			assert.True(t, inside, "slot %s outside working window", s.Start.Format("15:04"))
		}
	}
}

func TestGenerate_MoreBookingsNeverMoreSlots(t *testing.T) {
	day := interval.Interval{Start: monday, End: monday.AddDate(0, 0, 1)}
	base := []model.Appointment{
		{ID: "a1", StationID: 1, StartAt: at(11, 0), EndAt: at(11, 45), Status: model.StatusConfirmed},
	}
	extra := append(append([]model.Appointment(nil), base...),
		model.Appointment{ID: "a2", StationID: 1, StartAt: at(14, 0), EndAt: at(14, 30), Status: model.StatusConfirmed})

	count := func(appts []model.Appointment) int {
		occ, err := ProjectOccupancy(1, day, appts, nil, 10*time.Minute)
		require.NoError(t, err)
		return len(Generate(Params{
			Open:      []interval.Interval{span(9, 0, 17, 0)},
			Exclusion: occ.Exclusion,
			Duration:  30 * time.Minute,
			Step:      15 * time.Minute,
			Break:     10 * time.Minute,
			Cutoff:    monday,
			Stride:    StrideGrid,
		}))
	}

	assert.LessOrEqual(t, count(extra), count(base))
}

func TestGenerate_DegenerateInputs(t *testing.T) {
	assert.Empty(t, Generate(Params{Open: []interval.Interval{span(9, 0, 10, 0)}, Duration: 0}))
	assert.Empty(t, Generate(Params{Duration: 30 * time.Minute}))
	assert.Empty(t, Generate(Params{
		Open:     []interval.Interval{span(9, 0, 9, 20)},
		Duration: 30 * time.Minute,
		Cutoff:   monday,
	}))
}
