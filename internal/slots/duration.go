package slots

import (
	"errors"
	"time"

	"stationbook/internal/model"
)

// ErrDegenerateDuration marks a station whose resolved service duration is zero.
var ErrDegenerateDuration = errors.New("resolved service duration is zero")

// ResolveDuration computes the effective service length at a station.
// Negative sums clamp to zero. A non-zero modifier that leaves the sum off the
// station's slot grid is rounded up to the next grid multiple.
func ResolveDuration(baseMinutes, modifierMinutes int, station *model.Station) (time.Duration, error) {
	total := baseMinutes + modifierMinutes
	if total <= 0 {
		return 0, ErrDegenerateDuration
	}

	step := int(station.SlotInterval() / time.Minute)
	if modifierMinutes != 0 && total%step != 0 {
		total = (total/step + 1) * step
	}
	return time.Duration(total) * time.Minute, nil
}
