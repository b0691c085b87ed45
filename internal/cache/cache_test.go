package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationbook/internal/availability"
	"stationbook/internal/clock"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type countingSource struct {
	times []availability.TimeSlot
	dates []availability.DateAvailability
	err   error
	calls int
}

func (s *countingSource) GetAvailableDates(_ context.Context, _ availability.DatesQuery) ([]availability.DateAvailability, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.dates, nil
}

func (s *countingSource) GetAvailableTimes(_ context.Context, _ availability.TimesQuery) ([]availability.TimeSlot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.times, nil
}

func slotAt(hour int) availability.TimeSlot {
	start := day.Add(time.Duration(hour) * time.Hour)
	return availability.TimeSlot{StationID: 1, StationName: "Chair 1", Time: start.Format("15:04"), StartsAt: start, DurationMinutes: 45}
}

func setup(t *testing.T, src Source, clk clock.Clock) (*Availability, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(src, rdb, Options{TTL: time.Minute, Clock: clk}, nil), mr
}

func times(list []availability.TimeSlot) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Time)
	}
	return out
}

func TestGetAvailableTimes_ReadThrough(t *testing.T) {
	src := &countingSource{times: []availability.TimeSlot{slotAt(9), slotAt(10), slotAt(11)}}
	c, mr := setup(t, src, clock.Fixed(day))
	ctx := context.Background()
	q := availability.TimesQuery{ServiceID: 10, Date: day}

	first, err := c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)
	second, err := c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, times(first), times(second))
	assert.True(t, mr.Exists("stationbook:times:10:2026-03-02:-"))

	customer := int64(4)
	_, err = c.GetAvailableTimes(ctx, availability.TimesQuery{ServiceID: 10, Date: day, CustomerTypeID: &customer})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "customer type is part of the key")
}

func TestGetAvailableTimes_DropsSlotsThatBecamePast(t *testing.T) {
	src := &countingSource{times: []availability.TimeSlot{slotAt(9), slotAt(10), slotAt(11)}}
	clk := clock.Fixed(day)
	c, _ := setup(t, src, clk)
	ctx := context.Background()
	q := availability.TimesQuery{ServiceID: 10, Date: day}

	_, err := c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)

	c.clock = clock.Fixed(day.Add(10 * time.Hour))
	got, err := c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, times(got))
	assert.Equal(t, 1, src.calls)
}

func TestFailuresAreNotCached(t *testing.T) {
	src := &countingSource{err: availability.ErrTimeout}
	c, mr := setup(t, src, clock.Fixed(day))
	ctx := context.Background()

	_, err := c.GetAvailableDates(ctx, availability.DatesQuery{ServiceID: 10, From: day, To: day})
	assert.True(t, errors.Is(err, availability.ErrTimeout))
	assert.Empty(t, mr.Keys())

	src.err = nil
	src.dates = []availability.DateAvailability{{Date: "2026-03-02", Available: true}}
	got, err := c.GetAvailableDates(ctx, availability.DatesQuery{ServiceID: 10, From: day, To: day})
	require.NoError(t, err)
	assert.Equal(t, src.dates, got)
	assert.Equal(t, 2, src.calls)
}

func TestEntriesExpire(t *testing.T) {
	src := &countingSource{dates: []availability.DateAvailability{{Date: "2026-03-02", Available: true}}}
	c, mr := setup(t, src, clock.Fixed(day))
	ctx := context.Background()
	q := availability.DatesQuery{ServiceID: 10, From: day, To: day.AddDate(0, 0, 1)}

	_, err := c.GetAvailableDates(ctx, q)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.GetAvailableDates(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
}

func TestPurge(t *testing.T) {
	src := &countingSource{times: []availability.TimeSlot{slotAt(12)}}
	c, mr := setup(t, src, clock.Fixed(day))
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "keep"))

	_, err := c.GetAvailableTimes(ctx, availability.TimesQuery{ServiceID: 10, Date: day})
	require.NoError(t, err)
	_, err = c.GetAvailableTimes(ctx, availability.TimesQuery{ServiceID: 11, Date: day})
	require.NoError(t, err)

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestDisabledCachePassesThrough(t *testing.T) {
	src := &countingSource{times: []availability.TimeSlot{slotAt(12)}}
	c := New(src, nil, Options{TTL: time.Minute}, nil)
	ctx := context.Background()
	q := availability.TimesQuery{ServiceID: 10, Date: day}

	_, err := c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)
	_, err = c.GetAvailableTimes(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls)
	assert.NoError(t, c.Purge(ctx))
}

func TestRedisDownFallsBackToSource(t *testing.T) {
	src := &countingSource{times: []availability.TimeSlot{slotAt(12)}}
	c, mr := setup(t, src, clock.Fixed(day))
	mr.Close()

	got, err := c.GetAvailableTimes(context.Background(), availability.TimesQuery{ServiceID: 10, Date: day})
	require.NoError(t, err)
	assert.Equal(t, []string{"12:00"}, times(got))
}
