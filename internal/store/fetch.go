package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stationbook/internal/eligibility"
	"stationbook/internal/model"
)

const occupyingStatus = `status NOT IN ('cancelled', 'rejected')`

// FetchService returns nil, nil for an unknown service.
func (s *Store) FetchService(ctx context.Context, serviceID int64) (*model.Service, error) {
	var svc model.Service
	err := s.QueryRowContext(ctx, `
		SELECT id, name, treatment_type_id, category
		FROM services
		WHERE id = ?`,
		serviceID,
	).Scan(&svc.ID, &svc.Name, &svc.TreatmentTypeID, &svc.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query service %d: %w", serviceID, err)
	}
	return &svc, nil
}

// FetchEligibilityInputs loads every row the eligibility filter needs for a
// service: the stations it maps to, its matrix, the treatment rules and the
// customer allow-lists of those stations.
func (s *Store) FetchEligibilityInputs(ctx context.Context, serviceID, treatmentTypeID int64) (eligibility.Inputs, error) {
	var in eligibility.Inputs

	rows, err := s.QueryContext(ctx, `
		SELECT service_id, station_id, base_time_minutes, price
		FROM service_station_matrix
		WHERE service_id = ?`,
		serviceID,
	)
	if err != nil {
		return in, fmt.Errorf("query matrix: %w", err)
	}
	for rows.Next() {
		var m model.ServiceStationMatrix
		if err := rows.Scan(&m.ServiceID, &m.StationID, &m.BaseTimeMinutes, &m.Price); err != nil {
			rows.Close()
			return in, err
		}
		in.Matrix = append(in.Matrix, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return in, err
	}
	if len(in.Matrix) == 0 {
		return in, nil
	}

	ids := make([]int64, len(in.Matrix))
	for i, m := range in.Matrix {
		ids[i] = m.StationID
	}
	if in.Stations, err = s.fetchStations(ctx, ids); err != nil {
		return in, err
	}

	placeholders, args := inClause(ids)
	ruleRows, err := s.QueryContext(ctx, `
		SELECT station_id, treatment_type_id, is_active, remote_booking_allowed,
		       requires_staff_approval, duration_modifier_minutes
		FROM station_treatment_rules
		WHERE treatment_type_id = ? AND station_id IN (`+placeholders+`)`,
		append([]any{treatmentTypeID}, args...)...,
	)
	if err != nil {
		return in, fmt.Errorf("query treatment rules: %w", err)
	}
	for ruleRows.Next() {
		var r model.StationTreatmentTypeRule
		if err := ruleRows.Scan(
			&r.StationID, &r.TreatmentTypeID, &r.IsActive, &r.RemoteBookingAllowed,
			&r.RequiresStaffApproval, &r.DurationModifierMinutes,
		); err != nil {
			ruleRows.Close()
			return in, err
		}
		in.TreatmentRules = append(in.TreatmentRules, r)
	}
	ruleRows.Close()
	if err := ruleRows.Err(); err != nil {
		return in, err
	}

	allowRows, err := s.QueryContext(ctx, `
		SELECT station_id, customer_type_id
		FROM station_allowed_customer_types
		WHERE station_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return in, fmt.Errorf("query allowed customer types: %w", err)
	}
	defer allowRows.Close()
	for allowRows.Next() {
		var a model.StationAllowedCustomerType
		if err := allowRows.Scan(&a.StationID, &a.CustomerTypeID); err != nil {
			return in, err
		}
		in.AllowedCustomers = append(in.AllowedCustomers, a)
	}
	return in, allowRows.Err()
}

func (s *Store) fetchStations(ctx context.Context, ids []int64) ([]model.Station, error) {
	placeholders, args := inClause(ids)
	rows, err := s.QueryContext(ctx, `
		SELECT id, name, is_active, break_between_appointments, slot_interval_minutes,
		       display_order, created_at, updated_at
		FROM stations
		WHERE id IN (`+placeholders+`)
		ORDER BY display_order, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(
			&st.ID, &st.Name, &st.IsActive, &st.BreakBetweenAppointments, &st.SlotIntervalMinutes,
			&st.DisplayOrder, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListActiveStations returns active stations in display order.
func (s *Store) ListActiveStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, name, is_active, break_between_appointments, slot_interval_minutes,
		       display_order, created_at, updated_at
		FROM stations
		WHERE is_active = 1
		ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(
			&st.ID, &st.Name, &st.IsActive, &st.BreakBetweenAppointments, &st.SlotIntervalMinutes,
			&st.DisplayOrder, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// FetchWorkingShifts returns the shifts of stations on an ISO weekday.
func (s *Store) FetchWorkingShifts(ctx context.Context, stationIDs []int64, weekday int) ([]model.WorkingShift, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(stationIDs)
	rows, err := s.QueryContext(ctx, `
		SELECT id, station_id, day_of_week, open_time, close_time, shift_order
		FROM station_working_shifts
		WHERE day_of_week = ? AND station_id IN (`+placeholders+`)
		ORDER BY station_id, shift_order, open_time`,
		append([]any{weekday}, args...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query working shifts: %w", err)
	}
	defer rows.Close()

	var out []model.WorkingShift
	for rows.Next() {
		var sh model.WorkingShift
		if err := rows.Scan(&sh.ID, &sh.StationID, &sh.DayOfWeek, &sh.OpenTime, &sh.CloseTime, &sh.ShiftOrder); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// FetchBusinessHours returns nil, nil for a weekday without hours.
func (s *Store) FetchBusinessHours(ctx context.Context, weekday int) (*model.BusinessHour, error) {
	var bh model.BusinessHour
	err := s.QueryRowContext(ctx, `
		SELECT day_of_week, open_time, close_time
		FROM business_hours
		WHERE day_of_week = ?`,
		weekday,
	).Scan(&bh.DayOfWeek, &bh.OpenTime, &bh.CloseTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query business hours: %w", err)
	}
	return &bh, nil
}

// FetchAppointments returns occupying appointments of stations overlapping
// [from, to). Rows ending before they start are returned too when they start
// inside the range so the engine can flag them.
func (s *Store) FetchAppointments(ctx context.Context, stationIDs []int64, from, to time.Time) ([]model.Appointment, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(stationIDs)
	args = append(args, utc(to), utc(from), utc(from))
	rows, err := s.QueryContext(ctx, `
		SELECT id, station_id, service_id, start_at, end_at, status
		FROM appointments
		WHERE station_id IN (`+placeholders+`)
		  AND `+occupyingStatus+`
		  AND start_at < ?
		  AND (end_at > ? OR (end_at <= start_at AND start_at >= ?))
		ORDER BY station_id, start_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return scanAppointments(rows)
}

// FetchCategoryAppointments returns occupying appointments of every station
// whose service belongs to category and that overlap [from, to).
func (s *Store) FetchCategoryAppointments(ctx context.Context, category string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT a.id, a.station_id, a.service_id, a.start_at, a.end_at, a.status
		FROM appointments a
		JOIN services sv ON sv.id = a.service_id
		WHERE sv.category = ?
		  AND a.status NOT IN ('cancelled', 'rejected')
		  AND a.start_at < ? AND a.end_at > ?
		ORDER BY a.start_at`,
		category, utc(to), utc(from),
	)
	if err != nil {
		return nil, fmt.Errorf("query category appointments: %w", err)
	}
	return scanAppointments(rows)
}

func scanAppointments(rows *sql.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var status string
		if err := rows.Scan(&a.ID, &a.StationID, &a.ServiceID, &a.StartAt, &a.EndAt, &status); err != nil {
			return nil, err
		}
		a.Status = model.AppointmentStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// FetchUnavailability returns active blocks of stations overlapping [from, to).
func (s *Store) FetchUnavailability(ctx context.Context, stationIDs []int64, from, to time.Time) ([]model.StationUnavailability, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(stationIDs)
	args = append(args, utc(to), utc(from))
	rows, err := s.QueryContext(ctx, `
		SELECT id, station_id, start_time, end_time, reason, is_active
		FROM station_unavailability
		WHERE station_id IN (`+placeholders+`)
		  AND is_active = 1
		  AND start_time < ? AND end_time > ?
		ORDER BY station_id, start_time`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query unavailability: %w", err)
	}
	defer rows.Close()

	var out []model.StationUnavailability
	for rows.Next() {
		var u model.StationUnavailability
		if err := rows.Scan(&u.ID, &u.StationID, &u.StartTime, &u.EndTime, &u.Reason, &u.IsActive); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// FetchCapacityLimits returns the most recent limit of category effective on
// date, or nil when none applies.
func (s *Store) FetchCapacityLimits(ctx context.Context, category string, date time.Time) (*model.CapacityLimit, error) {
	var (
		cl        model.CapacityLimit
		effective string
	)
	err := s.QueryRowContext(ctx, `
		SELECT id, category, effective_date, hourly_limit, daily_limit
		FROM capacity_limits
		WHERE category = ? AND effective_date <= ?
		ORDER BY effective_date DESC, id DESC
		LIMIT 1`,
		category, date.Format(time.DateOnly),
	).Scan(&cl.ID, &cl.Category, &effective, &cl.HourlyLimit, &cl.DailyLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query capacity limits: %w", err)
	}
	cl.EffectiveDate, err = time.ParseInLocation(time.DateOnly, effective, date.Location())
	if err != nil {
		return nil, fmt.Errorf("parse effective date %q: %w", effective, err)
	}
	return &cl, nil
}
