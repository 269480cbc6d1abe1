package interfaces

import (
	"time"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// BookingService defines the interface for slot resolution and booking
type BookingService interface {
	// Availability
	ResolveSlots(providerID, locationID string, date timeutil.Date, slotMinutes int) ([]*types.CandidateWindow, error)

	// Booking write path
	Reserve(req *types.ReservationRequest, actor types.Actor) (*types.Appointment, error)
	Reschedule(appointmentID string, change *types.WindowChange, actor types.Actor) (*types.Appointment, error)
	Cancel(appointmentID string, actor types.Actor) error
	UpdateStatus(appointmentID string, next types.AppointmentStatus, actor types.Actor) error

	// Appointment queries
	GetAppointment(appointmentID string) (*types.Appointment, error)
	ListAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error)
	AuditTrail(appointmentID string) ([]*types.AuditEntry, error)

	// Schedule configuration (provider side)
	CreateRule(rule *types.ScheduleRule, actor types.Actor) (*types.ScheduleRule, error)
	UpdateRule(ruleID string, updates *types.ScheduleRuleUpdates, actor types.Actor) error
	DeactivateRule(ruleID string, actor types.Actor) error
	ListRules(providerID, locationID string) ([]*types.ScheduleRule, error)
	CreateOverride(ov *types.ScheduleOverride, actor types.Actor) (*types.ScheduleOverride, error)
	DeleteOverride(overrideID string, actor types.Actor) error
	ListOverrides(providerID, locationID string, from, to timeutil.Date) ([]*types.ScheduleOverride, error)

	// Service management
	Start(addr string) error
	Stop() error
}

// BookingRepository defines the interface for booking data persistence.
// Implementations must translate the store's uniqueness-violation signal on
// the active-window constraint into a slot-conflict error; that translation
// is the system's only race-safe write guard.
type BookingRepository interface {
	// Schedule rules
	CreateRule(rule *types.ScheduleRule) error
	GetRuleByID(id string) (*types.ScheduleRule, error)
	UpdateRule(id string, updates *types.ScheduleRuleUpdates) error
	DeactivateRule(id string) error
	GetActiveRules(providerID, locationID string, dayOfWeek int) ([]*types.ScheduleRule, error)
	ListRules(providerID, locationID string) ([]*types.ScheduleRule, error)

	// Schedule overrides
	CreateOverride(ov *types.ScheduleOverride) error
	DeleteOverride(id string) error
	GetOverride(providerID, locationID string, date timeutil.Date) (*types.ScheduleOverride, error)
	ListOverrides(providerID, locationID string, from, to timeutil.Date) ([]*types.ScheduleOverride, error)

	// Appointments
	CreateAppointment(apt *types.Appointment) error
	GetAppointmentByID(id string) (*types.Appointment, error)
	GetActiveAppointments(providerID string, date timeutil.Date) ([]*types.Appointment, error)
	ListAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error)
	UpdateAppointmentWindow(id string, date timeutil.Date, start, end timeutil.ClockTime) error
	UpdateAppointmentStatus(id string, status types.AppointmentStatus, cancelledAt *time.Time) error

	// Audit log (append-only)
	CreateAuditEntry(entry *types.AuditEntry) error
	GetAuditEntries(appointmentID string) ([]*types.AuditEntry, error)
}

// SlotCache caches resolved candidate windows for a short period. Cached
// results are advisory: a miss or a cache failure always falls through to the
// store, and writes invalidate the affected provider/date.
type SlotCache interface {
	Get(providerID, locationID string, date timeutil.Date, slotMinutes int) ([]*types.CandidateWindow, bool)
	Put(providerID, locationID string, date timeutil.Date, slotMinutes int, windows []*types.CandidateWindow)
	Invalidate(providerID string, date timeutil.Date)
}
