package slots

import (
	"time"

	"github.com/rs/zerolog"

	"stationbook/internal/interval"
	"stationbook/internal/model"
)

// WindowBuilder turns weekly shifts into the open intervals of one day.
type WindowBuilder struct {
	logger *zerolog.Logger
}

// NewWindowBuilder creates a builder. A nil logger disables logging.
func NewWindowBuilder(logger *zerolog.Logger) *WindowBuilder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WindowBuilder{logger: logger}
}

// Build returns the sorted, disjoint open intervals of a station on day.
// day must be midnight in the business timezone. Shifts are clipped to the
// global business hours; without business hours the day is closed.
func (b *WindowBuilder) Build(stationID int64, day time.Time, shifts []model.WorkingShift, hours *model.BusinessHour) []interval.Interval {
	if hours == nil {
		return nil
	}

	weekday := model.Weekday(day)
	ceiling, err := clockRange(day, hours.OpenTime, hours.CloseTime)
	if err != nil {
		b.logger.Error().Err(err).Int("day_of_week", weekday).Msg("invalid business hours, day treated as closed")
		return nil
	}

	var open []interval.Interval
	for _, sh := range shifts {
		if sh.StationID != stationID || sh.DayOfWeek != weekday {
			continue
		}
		window, err := clockRange(day, sh.OpenTime, sh.CloseTime)
		if err != nil {
			b.logger.Warn().Err(err).
				Int64("station_id", stationID).
				Int64("shift_id", sh.ID).
				Msg("skipping invalid shift")
			continue
		}
		if clipped, ok := window.Intersect(ceiling); ok {
			open = append(open, clipped)
		}
	}

	return interval.Coalesce(open)
}

func clockRange(day time.Time, openClock, closeClock string) (interval.Interval, error) {
	start, err := model.TimeOnDate(day, openClock)
	if err != nil {
		return interval.Interval{}, err
	}
	end, err := model.TimeOnDate(day, closeClock)
	if err != nil {
		return interval.Interval{}, err
	}
	iv := interval.Interval{Start: start, End: end}
	if iv.Empty() {
		return interval.Interval{}, &invalidRangeError{open: openClock, close: closeClock}
	}
	return iv, nil
}

type invalidRangeError struct {
	open, close string
}

func (e *invalidRangeError) Error() string {
	return "close time " + e.close + " is not after open time " + e.open
}
