package model

import "time"

// AppointmentStatus represents booking status.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusRejected  AppointmentStatus = "rejected"
)

// Appointment is an existing booking on a station.
type Appointment struct {
	ID        string            `json:"id"`
	StationID int64             `json:"station_id"`
	ServiceID int64             `json:"service_id"`
	StartAt   time.Time         `json:"start_at"`
	EndAt     time.Time         `json:"end_at"`
	Status    AppointmentStatus `json:"status"`
}

// Occupies reports whether the appointment still holds its station.
func (a *Appointment) Occupies() bool {
	return a.Status != StatusCancelled && a.Status != StatusRejected
}

// Duration returns the length of the appointment.
func (a *Appointment) Duration() time.Duration {
	return a.EndAt.Sub(a.StartAt)
}

// OverlapsWith checks half-open overlap with another appointment.
func (a *Appointment) OverlapsWith(other *Appointment) bool {
	return a.StartAt.Before(other.EndAt) && other.StartAt.Before(a.EndAt)
}

// ContainsTime reports whether t falls within [StartAt, EndAt).
func (a *Appointment) ContainsTime(t time.Time) bool {
	return !t.Before(a.StartAt) && t.Before(a.EndAt)
}
