package types

import (
	"time"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
)

// AppointmentStatus represents appointment lifecycle states
type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// IsActive reports whether an appointment in this status still occupies its
// window. Cancelled and no-show appointments release the slot.
func (s AppointmentStatus) IsActive() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// IsValid reports whether the value is a known status.
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// BookingChannel identifies where a booking originated
type BookingChannel string

const (
	ChannelPatientApp  BookingChannel = "patient_app"
	ChannelProviderApp BookingChannel = "provider_app"
	ChannelWeb         BookingChannel = "web"
	ChannelPhone       BookingChannel = "phone"
)

// ScheduleRule is one recurring weekly working block for a (provider,
// location) pair. A provider may have several rules on the same weekday,
// e.g. a morning and an evening block; each is resolved independently.
type ScheduleRule struct {
	ID          string             `json:"id" db:"id"`
	ProviderID  string             `json:"provider_id" db:"provider_id"`
	LocationID  string             `json:"location_id" db:"location_id"`
	DayOfWeek   int                `json:"day_of_week" db:"day_of_week"` // 0 = Sunday
	StartTime   timeutil.ClockTime `json:"start_time" db:"start_time"`
	EndTime     timeutil.ClockTime `json:"end_time" db:"end_time"`
	SlotMinutes int                `json:"slot_minutes" db:"slot_minutes"`
	IsActive    bool               `json:"is_active" db:"is_active"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// ScheduleRuleUpdates carries partial updates to a schedule rule
type ScheduleRuleUpdates struct {
	StartTime   *timeutil.ClockTime `json:"start_time,omitempty"`
	EndTime     *timeutil.ClockTime `json:"end_time,omitempty"`
	SlotMinutes *int                `json:"slot_minutes,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

// ScheduleOverride replaces or blacks out the weekly rules of a (provider,
// location) pair on one specific calendar date. When IsAvailable is false the
// whole date yields no bookable windows. When IsAvailable is true and both
// times are set, the override window replaces the weekly rules' windows.
type ScheduleOverride struct {
	ID          string              `json:"id" db:"id"`
	ProviderID  string              `json:"provider_id" db:"provider_id"`
	LocationID  string              `json:"location_id" db:"location_id"`
	Date        timeutil.Date       `json:"date" db:"date"`
	IsAvailable bool                `json:"is_available" db:"is_available"`
	StartTime   *timeutil.ClockTime `json:"start_time,omitempty" db:"start_time"`
	EndTime     *timeutil.ClockTime `json:"end_time,omitempty" db:"end_time"`
	Reason      string              `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// Appointment is one booked [start, end) window for a provider on a date.
// Date and times never change outside an explicit reschedule.
type Appointment struct {
	ID          string             `json:"id" db:"id"`
	PatientID   string             `json:"patient_id" db:"patient_id"`
	ProviderID  string             `json:"provider_id" db:"provider_id"`
	LocationID  string             `json:"location_id" db:"location_id"`
	ServiceID   string             `json:"service_id,omitempty" db:"service_id"`
	Date        timeutil.Date      `json:"date" db:"date"`
	StartTime   timeutil.ClockTime `json:"start_time" db:"start_time"`
	EndTime     timeutil.ClockTime `json:"end_time" db:"end_time"`
	Status      AppointmentStatus  `json:"status" db:"status"`
	Channel     BookingChannel     `json:"channel" db:"channel"`
	Notes       string             `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// CandidateWindow is one bookable or blocked [start, end) window computed by
// the slot resolver. It is derived on every call and never persisted.
type CandidateWindow struct {
	Start     timeutil.ClockTime `json:"start"`
	End       timeutil.ClockTime `json:"end"`
	Available bool               `json:"available"`
	BlockedBy string             `json:"blocked_by,omitempty"`
}

// ReservationRequest is the input to the booking write path
type ReservationRequest struct {
	ProviderID string             `json:"provider_id"`
	LocationID string             `json:"location_id"`
	PatientID  string             `json:"patient_id"`
	ServiceID  string             `json:"service_id,omitempty"`
	Date       timeutil.Date      `json:"date"`
	StartTime  timeutil.ClockTime `json:"start_time"`
	EndTime    timeutil.ClockTime `json:"end_time"`
	Channel    BookingChannel     `json:"channel,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// WindowChange is the desired new window of a reschedule request
type WindowChange struct {
	Date      timeutil.Date      `json:"date"`
	StartTime timeutil.ClockTime `json:"start_time"`
	EndTime   timeutil.ClockTime `json:"end_time"`
}

// AppointmentFilters represents filters for appointment queries
type AppointmentFilters struct {
	PatientID  string            `json:"patient_id,omitempty"`
	ProviderID string            `json:"provider_id,omitempty"`
	LocationID string            `json:"location_id,omitempty"`
	Status     AppointmentStatus `json:"status,omitempty"`
	FromDate   timeutil.Date     `json:"from_date,omitempty"`
	ToDate     timeutil.Date     `json:"to_date,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Actor identifies the authenticated user performing a booking operation
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Actor roles
const (
	RolePatient  = "patient"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)
