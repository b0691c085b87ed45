package model

import "time"

// Service is a bookable offering.
type Service struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	TreatmentTypeID int64  `json:"treatment_type_id"`
	Category        string `json:"category,omitempty"` // "trial", "regular"; empty means not capacity-bounded
}

// ServiceStationMatrix defines whether a station performs a service and for how long.
type ServiceStationMatrix struct {
	ServiceID       int64 `json:"service_id"`
	StationID       int64 `json:"station_id"`
	BaseTimeMinutes int   `json:"base_time_minutes"`
	Price           int64 `json:"price"` // minor units
}

// StationTreatmentTypeRule refines eligibility per treatment type.
type StationTreatmentTypeRule struct {
	StationID               int64 `json:"station_id"`
	TreatmentTypeID         int64 `json:"treatment_type_id"`
	IsActive                bool  `json:"is_active"`
	RemoteBookingAllowed    bool  `json:"remote_booking_allowed"`
	RequiresStaffApproval   bool  `json:"requires_staff_approval"`
	DurationModifierMinutes int   `json:"duration_modifier_minutes"`
}

// StationAllowedCustomerType is one allow-list row.
type StationAllowedCustomerType struct {
	StationID      int64 `json:"station_id"`
	CustomerTypeID int64 `json:"customer_type_id"`
}

// CapacityLimit is a category ceiling effective from a date on.
type CapacityLimit struct {
	ID            int64     `json:"id"`
	Category      string    `json:"category"`
	EffectiveDate time.Time `json:"effective_date"`
	HourlyLimit   int       `json:"hourly_limit"` // 0 = no ceiling
	DailyLimit    int       `json:"daily_limit"`  // 0 = no ceiling
}
