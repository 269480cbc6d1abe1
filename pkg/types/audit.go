package types

import "time"

// Audit actions recorded for appointment writes
const (
	AuditActionBooked        = "booked"
	AuditActionRescheduled   = "rescheduled"
	AuditActionCancelled     = "cancelled"
	AuditActionStatusChanged = "status_changed"
)

// AuditEntry is one immutable record of a booking write. Entries are
// append-only; nothing in the system updates or deletes them.
type AuditEntry struct {
	ID            string                 `json:"id" db:"id"`
	AppointmentID string                 `json:"appointment_id" db:"appointment_id"`
	ActorID       string                 `json:"actor_id" db:"actor_id"`
	ActorRole     string                 `json:"actor_role" db:"actor_role"`
	Action        string                 `json:"action" db:"action"`
	Detail        map[string]interface{} `json:"detail,omitempty" db:"detail"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
