package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stationbook/internal/model"
)

// StationConfig describes one bookable station.
type StationConfig struct {
	ID                   int64                 `yaml:"id"`
	Name                 string                `yaml:"name"`
	IsActive             bool                  `yaml:"is_active"`
	DisplayOrder         int                   `yaml:"display_order"`
	BreakMinutes         *int                  `yaml:"break_minutes,omitempty"`
	SlotIntervalMinutes  int                   `yaml:"slot_interval_minutes,omitempty"`
	Shifts               []ShiftConfig         `yaml:"shifts,omitempty"`
	Treatments           []TreatmentRuleConfig `yaml:"treatments"`
	AllowedCustomerTypes []int64               `yaml:"allowed_customer_types,omitempty"`
}

// ShiftConfig is a working shift repeated on the listed weekdays.
type ShiftConfig struct {
	Days  []int  `yaml:"days"`  // 1=Mon, 7=Sun
	Open  string `yaml:"open"`  // "09:00"
	Close string `yaml:"close"` // "13:00", "24:00" for midnight
}

// TreatmentRuleConfig enables a treatment type on a station.
type TreatmentRuleConfig struct {
	TreatmentTypeID         int64 `yaml:"treatment_type_id"`
	IsActive                *bool `yaml:"is_active,omitempty"`
	RemoteBooking           bool  `yaml:"remote_booking"`
	RequiresApproval        bool  `yaml:"requires_approval"`
	DurationModifierMinutes int   `yaml:"duration_modifier_minutes"`
}

// ServiceConfig describes a service and where it can be performed.
type ServiceConfig struct {
	ID              int64                  `yaml:"id"`
	Name            string                 `yaml:"name"`
	TreatmentTypeID int64                  `yaml:"treatment_type_id"`
	Category        string                 `yaml:"category,omitempty"`
	Stations        []ServiceStationConfig `yaml:"stations"`
}

// ServiceStationConfig is one cell of the service/station matrix.
type ServiceStationConfig struct {
	StationID       int64 `yaml:"station_id"`
	BaseTimeMinutes int   `yaml:"base_time_minutes"`
	Price           int64 `yaml:"price"`
}

// BusinessHoursConfig is the global opening ceiling for the listed weekdays.
type BusinessHoursConfig struct {
	Days  []int  `yaml:"days"`
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// CapacityLimitConfig caps bookings of a service category.
type CapacityLimitConfig struct {
	Category      string `yaml:"category"`
	EffectiveDate string `yaml:"effective_date"` // "2026-01-01"
	HourlyLimit   int    `yaml:"hourly_limit"`
	DailyLimit    int    `yaml:"daily_limit"`
}

// HolidayConfig closes every station for a calendar day.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// DefaultsConfig holds values applied to stations that omit them.
type DefaultsConfig struct {
	BreakMinutes        int           `yaml:"break_minutes"`
	SlotIntervalMinutes int           `yaml:"slot_interval_minutes"`
	Shifts              []ShiftConfig `yaml:"shifts"`
}

// StationsConfig is the root configuration for stations.yaml.
type StationsConfig struct {
	Stations       []StationConfig       `yaml:"stations"`
	Services       []ServiceConfig       `yaml:"services"`
	BusinessHours  []BusinessHoursConfig `yaml:"business_hours"`
	CapacityLimits []CapacityLimitConfig `yaml:"capacity_limits"`
	Holidays       []HolidayConfig       `yaml:"holidays"`
	Defaults       DefaultsConfig        `yaml:"defaults"`
}

const defaultSlotIntervalMinutes = 30

// LoadStationsConfig loads and validates the station catalogue.
func LoadStationsConfig(path string) (*StationsConfig, error) {
	if path == "" {
		path = "configs/stations.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations config: %w", err)
	}
	return ParseStationsConfig(data)
}

// ParseStationsConfig decodes, validates and completes a catalogue.
func ParseStationsConfig(data []byte) (*StationsConfig, error) {
	var cfg StationsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse stations config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate stations config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *StationsConfig) Validate() error {
	if len(c.Stations) == 0 {
		return fmt.Errorf("no stations defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)

	for i, st := range c.Stations {
		if st.ID <= 0 {
			return fmt.Errorf("station[%d]: id must be positive, got %d", i, st.ID)
		}
		if ids[st.ID] {
			return fmt.Errorf("station[%d]: duplicate id %d", i, st.ID)
		}
		ids[st.ID] = true

		if st.Name == "" {
			return fmt.Errorf("station[%d]: name is required", i)
		}
		if names[st.Name] {
			return fmt.Errorf("station[%d]: duplicate name '%s'", i, st.Name)
		}
		names[st.Name] = true

		if st.BreakMinutes != nil && *st.BreakMinutes < 0 {
			return fmt.Errorf("station[%d]: break_minutes cannot be negative", i)
		}
		if st.SlotIntervalMinutes < 0 {
			return fmt.Errorf("station[%d]: slot_interval_minutes cannot be negative", i)
		}
		for j, sh := range st.Shifts {
			if err := validateRange(sh.Days, sh.Open, sh.Close, fmt.Sprintf("station[%d].shifts[%d]", i, j)); err != nil {
				return err
			}
		}
		treatments := make(map[int64]bool)
		for j, tr := range st.Treatments {
			if tr.TreatmentTypeID <= 0 {
				return fmt.Errorf("station[%d].treatments[%d]: treatment_type_id must be positive", i, j)
			}
			if treatments[tr.TreatmentTypeID] {
				return fmt.Errorf("station[%d].treatments[%d]: duplicate treatment_type_id %d", i, j, tr.TreatmentTypeID)
			}
			treatments[tr.TreatmentTypeID] = true
		}
	}

	for i, sh := range c.Defaults.Shifts {
		if err := validateRange(sh.Days, sh.Open, sh.Close, fmt.Sprintf("defaults.shifts[%d]", i)); err != nil {
			return err
		}
	}
	if c.Defaults.BreakMinutes < 0 {
		return fmt.Errorf("defaults.break_minutes cannot be negative")
	}

	services := make(map[int64]bool)
	for i, svc := range c.Services {
		if svc.ID <= 0 {
			return fmt.Errorf("service[%d]: id must be positive, got %d", i, svc.ID)
		}
		if services[svc.ID] {
			return fmt.Errorf("service[%d]: duplicate id %d", i, svc.ID)
		}
		services[svc.ID] = true
		if svc.TreatmentTypeID <= 0 {
			return fmt.Errorf("service[%d]: treatment_type_id must be positive", i)
		}
		for j, cell := range svc.Stations {
			if !ids[cell.StationID] {
				return fmt.Errorf("service[%d].stations[%d]: unknown station %d", i, j, cell.StationID)
			}
			if cell.BaseTimeMinutes <= 0 {
				return fmt.Errorf("service[%d].stations[%d]: base_time_minutes must be positive", i, j)
			}
		}
	}

	weekdays := make(map[int]bool)
	for i, bh := range c.BusinessHours {
		prefix := fmt.Sprintf("business_hours[%d]", i)
		if err := validateRange(bh.Days, bh.Open, bh.Close, prefix); err != nil {
			return err
		}
		for _, d := range bh.Days {
			if weekdays[d] {
				return fmt.Errorf("%s: day %d already has business hours", prefix, d)
			}
			weekdays[d] = true
		}
	}

	for i, cl := range c.CapacityLimits {
		if cl.Category == "" {
			return fmt.Errorf("capacity_limits[%d]: category is required", i)
		}
		if _, err := time.Parse(time.DateOnly, cl.EffectiveDate); err != nil {
			return fmt.Errorf("capacity_limits[%d]: invalid effective_date '%s', expected YYYY-MM-DD", i, cl.EffectiveDate)
		}
		if cl.HourlyLimit < 0 || cl.DailyLimit < 0 {
			return fmt.Errorf("capacity_limits[%d]: limits cannot be negative", i)
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(time.DateOnly, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

// validateRange checks weekday numbers and an HH:MM range.
func validateRange(days []int, open, closeAt, prefix string) error {
	if len(days) == 0 {
		return fmt.Errorf("%s.days is required", prefix)
	}
	for _, d := range days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%s.days: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, d)
		}
	}

	oh, om, err := model.ParseClock(open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, open)
	}
	ch, cm, err := model.ParseClock(closeAt)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, closeAt)
	}
	if ch*60+cm <= oh*60+om {
		return fmt.Errorf("%s: close must be after open", prefix)
	}
	return nil
}

// applyDefaults fills station fields left out of the file.
func (c *StationsConfig) applyDefaults() {
	for i := range c.Stations {
		st := &c.Stations[i]
		if len(st.Shifts) == 0 {
			st.Shifts = c.Defaults.Shifts
		}
		if st.BreakMinutes == nil {
			brk := c.Defaults.BreakMinutes
			st.BreakMinutes = &brk
		}
		if st.SlotIntervalMinutes == 0 {
			st.SlotIntervalMinutes = c.Defaults.SlotIntervalMinutes
		}
		if st.SlotIntervalMinutes == 0 {
			st.SlotIntervalMinutes = defaultSlotIntervalMinutes
		}
		for j := range st.Treatments {
			if st.Treatments[j].IsActive == nil {
				active := true
				st.Treatments[j].IsActive = &active
			}
		}
	}
}

// GetStationByID returns station config by ID.
func (c *StationsConfig) GetStationByID(id int64) *StationConfig {
	for i := range c.Stations {
		if c.Stations[i].ID == id {
			return &c.Stations[i]
		}
	}
	return nil
}

// IsHoliday checks if a date is a holiday.
func (c *StationsConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(time.DateOnly)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the configuration.
func (c *StationsConfig) String() string {
	active := 0
	for _, st := range c.Stations {
		if st.IsActive {
			active++
		}
	}
	return fmt.Sprintf("StationsConfig: %d stations (%d active), %d services, %d holidays",
		len(c.Stations), active, len(c.Services), len(c.Holidays))
}
