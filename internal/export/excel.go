// Package export renders availability as spreadsheets for back-office use.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"stationbook/internal/availability"
)

// Writer is a sequential sheet writer on top of excelize.
type Writer struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewWriter creates a new Excel writer.
func NewWriter() *Writer {
	return &Writer{
		file: excelize.NewFile(),
	}
}

// AddSheet adds a new sheet with the given name and makes it current.
func (w *Writer) AddSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *Writer) WriteHeader(columns []string) error {
	if err := w.WriteRow(toRow(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

// WriteRow writes a data row to the current sheet.
func (w *Writer) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

// Save writes the workbook to wr.
func (w *Writer) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *Writer) Close() error {
	return w.file.Close()
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

// Day is the availability of one calendar day.
type Day struct {
	Date  string
	Slots []availability.TimeSlot
}

// WriteAvailability renders a summary sheet and a slot sheet for a service.
func WriteAvailability(out io.Writer, serviceName string, days []Day) error {
	w := NewWriter()
	defer w.Close()

	if err := w.AddSheet("Summary"); err != nil {
		return err
	}
	if err := w.WriteRow([]interface{}{"Service", serviceName}); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Date", "Available", "Slots"}); err != nil {
		return err
	}
	for _, d := range days {
		if err := w.WriteRow([]interface{}{d.Date, len(d.Slots) > 0, len(d.Slots)}); err != nil {
			return err
		}
	}

	if err := w.AddSheet("Slots"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{
		"Date", "Time", "Station ID", "Station", "Duration (min)", "Requires approval", "Price",
	}); err != nil {
		return err
	}
	for _, d := range days {
		for _, s := range d.Slots {
			if err := w.WriteRow([]interface{}{
				d.Date, s.Time, s.StationID, s.StationName, s.DurationMinutes, s.RequiresApproval, s.Price,
			}); err != nil {
				return err
			}
		}
	}

	return w.Save(out)
}
