package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/interfaces"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/monitoring"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// auditRecorder appends immutable audit entries for every appointment write.
// Audit failures are logged but never fail the write they describe; the
// appointment change has already committed by the time the entry is written.
type auditRecorder struct {
	repository interfaces.BookingRepository
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
}

func newAuditRecorder(repo interfaces.BookingRepository, log *logger.Logger, metrics *monitoring.MetricsCollector) *auditRecorder {
	return &auditRecorder{
		repository: repo,
		logger:     log,
		metrics:    metrics,
	}
}

func (a *auditRecorder) record(appointmentID string, actor types.Actor, action string, detail map[string]interface{}) {
	entry := &types.AuditEntry{
		ID:            uuid.New().String(),
		AppointmentID: appointmentID,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Action:        action,
		Detail:        detail,
		CreatedAt:     time.Now(),
	}

	err := a.repository.CreateAuditEntry(entry)
	if a.metrics != nil {
		a.metrics.RecordAuditEvent(action, err == nil)
	}
	if err != nil {
		a.logger.WithError(err).WithFields(map[string]interface{}{
			"appointment_id": appointmentID,
			"action":         action,
		}).Error("Failed to write audit entry")
		return
	}

	a.logger.Audit(actor.ID, action, "appointment:"+appointmentID, true, detail)
}

// windowDetail captures an appointment's window for before/after audit diffs
func windowDetail(apt *types.Appointment) map[string]interface{} {
	return map[string]interface{}{
		"date":       apt.Date.String(),
		"start_time": apt.StartTime.String(),
		"end_time":   apt.EndTime.String(),
	}
}
