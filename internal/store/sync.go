package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stationbook/internal/config"
	"stationbook/internal/events"
)

const holidaySource = "holiday"

// SyncStationsFromConfig applies stations.yaml to the database.
// It upserts stations, replaces their shifts and rules, rewrites the service
// matrix, business hours and capacity limits, marks missing stations inactive
// and turns holidays into full-day unavailability blocks in loc.
func (s *Store) SyncStationsFromConfig(ctx context.Context, cfg *config.StationsConfig, loc *time.Location) error {
	if cfg == nil {
		return fmt.Errorf("stations config is nil")
	}
	if loc == nil {
		loc = time.UTC
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	seen := make(map[int64]struct{}, len(cfg.Stations))

	for i := range cfg.Stations {
		st := &cfg.Stations[i]
		if err := syncStation(ctx, tx, st, now); err != nil {
			return fmt.Errorf("sync station %d: %w", st.ID, err)
		}
		seen[st.ID] = struct{}{}
	}

	if err := deactivateMissing(ctx, tx, seen, now); err != nil {
		return err
	}
	if err := syncServices(ctx, tx, cfg.Services); err != nil {
		return err
	}
	if err := syncBusinessHours(ctx, tx, cfg.BusinessHours); err != nil {
		return err
	}
	if err := syncCapacityLimits(ctx, tx, cfg.CapacityLimits); err != nil {
		return err
	}
	if err := syncHolidays(ctx, tx, cfg.Holidays, seen, loc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}

	s.logger.Info().
		Int("stations", len(cfg.Stations)).
		Int("services", len(cfg.Services)).
		Int("holidays", len(cfg.Holidays)).
		Msg("stations config applied")
	s.events.Publish(ctx, events.Event{Type: events.CatalogueSynced})
	return nil
}

func syncStation(ctx context.Context, tx *sql.Tx, st *config.StationConfig, now time.Time) error {
	brk := 0
	if st.BreakMinutes != nil {
		brk = *st.BreakMinutes
	}

	// Preserve created_at if the station already exists.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stations (id, name, is_active, break_between_appointments, slot_interval_minutes,
		                      display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM stations WHERE id = ?), ?), ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			break_between_appointments = excluded.break_between_appointments,
			slot_interval_minutes = excluded.slot_interval_minutes,
			display_order = excluded.display_order,
			updated_at = excluded.updated_at`,
		st.ID, st.Name, boolInt(st.IsActive), brk, st.SlotIntervalMinutes,
		st.DisplayOrder, st.ID, now, now,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM station_working_shifts WHERE station_id = ?`, st.ID); err != nil {
		return err
	}
	for order, sh := range st.Shifts {
		for _, day := range sh.Days {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO station_working_shifts (station_id, day_of_week, open_time, close_time, shift_order)
				VALUES (?, ?, ?, ?, ?)`,
				st.ID, day, sh.Open, sh.Close, order,
			); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM station_treatment_rules WHERE station_id = ?`, st.ID); err != nil {
		return err
	}
	for _, tr := range st.Treatments {
		active := tr.IsActive == nil || *tr.IsActive
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO station_treatment_rules (station_id, treatment_type_id, is_active, remote_booking_allowed,
			                                     requires_staff_approval, duration_modifier_minutes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			st.ID, tr.TreatmentTypeID, boolInt(active), boolInt(tr.RemoteBooking),
			boolInt(tr.RequiresApproval), tr.DurationModifierMinutes,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM station_allowed_customer_types WHERE station_id = ?`, st.ID); err != nil {
		return err
	}
	for _, ct := range st.AllowedCustomerTypes {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO station_allowed_customer_types (station_id, customer_type_id)
			VALUES (?, ?)`,
			st.ID, ct,
		); err != nil {
			return err
		}
	}
	return nil
}

// deactivateMissing marks stations that disappeared from config inactive.
func deactivateMissing(ctx context.Context, tx *sql.Tx, seen map[int64]struct{}, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM stations WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `UPDATE stations SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate station %d: %w", id, err)
		}
	}
	return nil
}

// syncServices upserts services and rewrites the whole matrix. Services
// missing from config lose their matrix rows and become unbookable.
func syncServices(ctx context.Context, tx *sql.Tx, services []config.ServiceConfig) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM service_station_matrix`); err != nil {
		return fmt.Errorf("clear matrix: %w", err)
	}
	for _, svc := range services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, name, treatment_type_id, category)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				treatment_type_id = excluded.treatment_type_id,
				category = excluded.category`,
			svc.ID, svc.Name, svc.TreatmentTypeID, svc.Category,
		); err != nil {
			return fmt.Errorf("sync service %d: %w", svc.ID, err)
		}
		for _, cell := range svc.Stations {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO service_station_matrix (service_id, station_id, base_time_minutes, price)
				VALUES (?, ?, ?, ?)`,
				svc.ID, cell.StationID, cell.BaseTimeMinutes, cell.Price,
			); err != nil {
				return fmt.Errorf("sync service %d station %d: %w", svc.ID, cell.StationID, err)
			}
		}
	}
	return nil
}

func syncBusinessHours(ctx context.Context, tx *sql.Tx, hours []config.BusinessHoursConfig) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM business_hours`); err != nil {
		return fmt.Errorf("clear business hours: %w", err)
	}
	for _, bh := range hours {
		for _, day := range bh.Days {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO business_hours (day_of_week, open_time, close_time)
				VALUES (?, ?, ?)`,
				day, bh.Open, bh.Close,
			); err != nil {
				return fmt.Errorf("sync business hours day %d: %w", day, err)
			}
		}
	}
	return nil
}

func syncCapacityLimits(ctx context.Context, tx *sql.Tx, limits []config.CapacityLimitConfig) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM capacity_limits`); err != nil {
		return fmt.Errorf("clear capacity limits: %w", err)
	}
	for _, cl := range limits {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO capacity_limits (category, effective_date, hourly_limit, daily_limit)
			VALUES (?, ?, ?, ?)`,
			cl.Category, cl.EffectiveDate, cl.HourlyLimit, cl.DailyLimit,
		); err != nil {
			return fmt.Errorf("sync capacity limit %s: %w", cl.Category, err)
		}
	}
	return nil
}

// syncHolidays replaces config-sourced blocks; manual blocks are untouched.
func syncHolidays(ctx context.Context, tx *sql.Tx, holidays []config.HolidayConfig, stations map[int64]struct{}, loc *time.Location) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM station_unavailability WHERE source = ?`, holidaySource); err != nil {
		return fmt.Errorf("clear holidays: %w", err)
	}
	for _, h := range holidays {
		day, err := time.ParseInLocation(time.DateOnly, h.Date, loc)
		if err != nil {
			return fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		start, end := utc(day), utc(day.AddDate(0, 0, 1))
		for id := range stations {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO station_unavailability (station_id, start_time, end_time, reason, source, is_active)
				VALUES (?, ?, ?, ?, ?, 1)`,
				id, start, end, h.Name, holidaySource,
			); err != nil {
				return fmt.Errorf("set holiday %s for station %d: %w", h.Date, id, err)
			}
		}
	}
	return nil
}
