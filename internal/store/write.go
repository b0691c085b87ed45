package store

import (
	"context"
	"fmt"

	"stationbook/internal/events"
	"stationbook/internal/model"
)

// SaveAppointment inserts or replaces an appointment row.
func (s *Store) SaveAppointment(ctx context.Context, a *model.Appointment) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO appointments (id, station_id, service_id, start_at, end_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			station_id = excluded.station_id,
			service_id = excluded.service_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			status = excluded.status`,
		a.ID, a.StationID, a.ServiceID, utc(a.StartAt), utc(a.EndAt), string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("save appointment %s: %w", a.ID, err)
	}
	s.events.Publish(ctx, events.Event{Type: events.AppointmentSaved, StationID: a.StationID})
	return nil
}

// AddUnavailability stores a manual block and sets its ID.
func (s *Store) AddUnavailability(ctx context.Context, u *model.StationUnavailability) error {
	res, err := s.ExecContext(ctx, `
		INSERT INTO station_unavailability (station_id, start_time, end_time, reason, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		u.StationID, utc(u.StartTime), utc(u.EndTime), u.Reason, boolInt(u.IsActive),
	)
	if err != nil {
		return fmt.Errorf("add unavailability for station %d: %w", u.StationID, err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	s.events.Publish(ctx, events.Event{Type: events.UnavailabilityAdded, StationID: u.StationID})
	return nil
}
