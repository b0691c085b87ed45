package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stationbook/internal/availability"
)

func TestWriteAvailability(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	days := []Day{
		{Date: "2026-03-02", Slots: []availability.TimeSlot{
			{StationID: 1, StationName: "Chair 1", Time: "09:00", StartsAt: start, DurationMinutes: 45, Price: 4500},
			{StationID: 2, StationName: "Chair 2", Time: "09:00", StartsAt: start, DurationMinutes: 60, RequiresApproval: true},
		}},
		{Date: "2026-03-03"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAvailability(&buf, "Cleaning", days))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Slots"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 4)
	assert.Equal(t, []string{"Service", "Cleaning"}, summary[0])
	assert.Equal(t, []string{"Date", "Available", "Slots"}, summary[1])
	assert.Equal(t, []string{"2026-03-02", "TRUE", "2"}, summary[2])
	assert.Equal(t, []string{"2026-03-03", "FALSE", "0"}, summary[3])

	slots, err := f.GetRows("Slots")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "Station", slots[0][3])
	assert.Equal(t, []string{"2026-03-02", "09:00", "1", "Chair 1", "45", "FALSE", "4500"}, slots[1])
	assert.Equal(t, "Chair 2", slots[2][3])
	assert.Equal(t, "TRUE", slots[2][5])
}

func TestWriter_RequiresSheet(t *testing.T) {
	w := NewWriter()
	defer w.Close()

	assert.Error(t, w.WriteRow([]interface{}{"x"}))
	require.NoError(t, w.AddSheet("A sheet name that is far longer than Excel allows"))
	assert.NoError(t, w.WriteRow([]interface{}{"x"}))
}
