// Package capacity applies category-wide booking ceilings on top of
// station-level availability.
package capacity

import (
	"context"
	"fmt"
	"time"

	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// Request scopes a limiter call to one service category and one day.
type Request struct {
	Category string
	Day      time.Time // midnight in the business timezone
}

// Limiter removes slots that would exceed a capacity ceiling.
type Limiter interface {
	Apply(ctx context.Context, req Request, list []slots.Slot) ([]slots.Slot, error)
}

// LimitSource returns the most recent limit effective on or before a date.
// A nil limit means no ceiling is configured.
type LimitSource interface {
	FetchCapacityLimits(ctx context.Context, category string, effectiveDate time.Time) (*model.CapacityLimit, error)
}

// UsageSource lists bookings of a category across all stations.
type UsageSource interface {
	FetchCategoryAppointments(ctx context.Context, category string, from, to time.Time) ([]model.Appointment, error)
}

// Unbounded never removes anything.
type Unbounded struct{}

// Apply implements Limiter.
func (Unbounded) Apply(_ context.Context, _ Request, list []slots.Slot) ([]slots.Slot, error) {
	return list, nil
}

// HourlyDailyLimiter caps bookings per clock hour and per day for a category.
type HourlyDailyLimiter struct {
	limits LimitSource
	usage  UsageSource
}

// NewHourlyDailyLimiter creates the default limiter.
func NewHourlyDailyLimiter(limits LimitSource, usage UsageSource) *HourlyDailyLimiter {
	return &HourlyDailyLimiter{limits: limits, usage: usage}
}

// Apply implements Limiter. Services without a category and categories
// without a limit row are left untouched.
func (l *HourlyDailyLimiter) Apply(ctx context.Context, req Request, list []slots.Slot) ([]slots.Slot, error) {
	if req.Category == "" || len(list) == 0 {
		return list, nil
	}

	limit, err := l.limits.FetchCapacityLimits(ctx, req.Category, req.Day)
	if err != nil {
		return nil, fmt.Errorf("fetch capacity limits: %w", err)
	}
	if limit == nil || (limit.HourlyLimit <= 0 && limit.DailyLimit <= 0) {
		return list, nil
	}

	loc := req.Day.Location()
	from, to := model.DayRange(req.Day, loc)
	booked, err := l.usage.FetchCategoryAppointments(ctx, req.Category, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch capacity usage: %w", err)
	}

	u := countUsage(booked, from, to, loc)
	if limit.DailyLimit > 0 && u.daily >= limit.DailyLimit {
		return []slots.Slot{}, nil
	}
	if limit.HourlyLimit <= 0 {
		return list, nil
	}

	kept := make([]slots.Slot, 0, len(list))
	for _, s := range list {
		if u.hourly[hourBucket(s.Start, loc)] >= limit.HourlyLimit {
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

type usage struct {
	daily  int
	hourly map[int64]int
}

func countUsage(booked []model.Appointment, from, to time.Time, loc *time.Location) usage {
	u := usage{hourly: make(map[int64]int)}
	for i := range booked {
		a := &booked[i]
		if !a.Occupies() || a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		u.daily++
		u.hourly[hourBucket(a.StartAt, loc)]++
	}
	return u
}

func hourBucket(t time.Time, loc *time.Location) int64 {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), 0, 0, 0, loc).Unix()
}
