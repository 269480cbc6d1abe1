package booking

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/database"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/interfaces"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// uniqueViolation is the Postgres SQLSTATE raised when an insert or update
// hits the active-window unique index.
const uniqueViolation = "23505"

// Repository implements the BookingRepository interface
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new booking repository
func NewRepository(db *database.DB, log *logger.Logger) interfaces.BookingRepository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// isUniqueViolation reports whether err is the store's uniqueness signal.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateRule creates a new weekly schedule rule
func (r *Repository) CreateRule(rule *types.ScheduleRule) error {
	query := `
		INSERT INTO schedule_rules (
			id, provider_id, location_id, day_of_week, start_time, end_time,
			slot_minutes, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(query,
		rule.ID,
		rule.ProviderID,
		rule.LocationID,
		rule.DayOfWeek,
		rule.StartTime,
		rule.EndTime,
		rule.SlotMinutes,
		rule.IsActive,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create schedule rule")
		return types.NewStorageError("failed to create schedule rule", err)
	}

	r.logger.WithField("rule_id", rule.ID).Info("Created schedule rule")
	return nil
}

// GetRuleByID retrieves a schedule rule by ID
func (r *Repository) GetRuleByID(id string) (*types.ScheduleRule, error) {
	query := `
		SELECT id, provider_id, location_id, day_of_week, start_time, end_time,
		       slot_minutes, is_active, created_at, updated_at
		FROM schedule_rules
		WHERE id = $1`

	rule := &types.ScheduleRule{}
	err := r.db.QueryRow(query, id).Scan(
		&rule.ID,
		&rule.ProviderID,
		&rule.LocationID,
		&rule.DayOfWeek,
		&rule.StartTime,
		&rule.EndTime,
		&rule.SlotMinutes,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(fmt.Sprintf("schedule rule not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get schedule rule")
		return nil, types.NewStorageError("failed to get schedule rule", err)
	}

	return rule, nil
}

// UpdateRule updates an existing schedule rule
func (r *Repository) UpdateRule(id string, updates *types.ScheduleRuleUpdates) error {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if updates.StartTime != nil {
		setParts = append(setParts, fmt.Sprintf("start_time = $%d", argIndex))
		args = append(args, *updates.StartTime)
		argIndex++
	}

	if updates.EndTime != nil {
		setParts = append(setParts, fmt.Sprintf("end_time = $%d", argIndex))
		args = append(args, *updates.EndTime)
		argIndex++
	}

	if updates.SlotMinutes != nil {
		setParts = append(setParts, fmt.Sprintf("slot_minutes = $%d", argIndex))
		args = append(args, *updates.SlotMinutes)
		argIndex++
	}

	if updates.IsActive != nil {
		setParts = append(setParts, fmt.Sprintf("is_active = $%d", argIndex))
		args = append(args, *updates.IsActive)
		argIndex++
	}

	if len(setParts) == 0 {
		return types.NewInvalidRequestError("no updates provided", nil)
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now())
	argIndex++

	query := fmt.Sprintf("UPDATE schedule_rules SET %s WHERE id = $%d", strings.Join(setParts, ", "), argIndex)
	args = append(args, id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to update schedule rule")
		return types.NewStorageError("failed to update schedule rule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(fmt.Sprintf("schedule rule not found: %s", id))
	}

	r.logger.WithField("rule_id", id).Info("Updated schedule rule")
	return nil
}

// DeactivateRule soft deletes a schedule rule
func (r *Repository) DeactivateRule(id string) error {
	query := `UPDATE schedule_rules SET is_active = FALSE, updated_at = $1 WHERE id = $2`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to deactivate schedule rule")
		return types.NewStorageError("failed to deactivate schedule rule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(fmt.Sprintf("schedule rule not found: %s", id))
	}

	r.logger.WithField("rule_id", id).Info("Deactivated schedule rule")
	return nil
}

// GetActiveRules retrieves all active weekly rules for a provider, location
// and day of week, ordered by start time
func (r *Repository) GetActiveRules(providerID, locationID string, dayOfWeek int) ([]*types.ScheduleRule, error) {
	query := `
		SELECT id, provider_id, location_id, day_of_week, start_time, end_time,
		       slot_minutes, is_active, created_at, updated_at
		FROM schedule_rules
		WHERE provider_id = $1
		  AND location_id = $2
		  AND day_of_week = $3
		  AND is_active
		ORDER BY start_time ASC`

	rows, err := r.db.Query(query, providerID, locationID, dayOfWeek)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get active schedule rules")
		return nil, types.NewStorageError("failed to get active schedule rules", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRules retrieves all rules for a provider and location
func (r *Repository) ListRules(providerID, locationID string) ([]*types.ScheduleRule, error) {
	query := `
		SELECT id, provider_id, location_id, day_of_week, start_time, end_time,
		       slot_minutes, is_active, created_at, updated_at
		FROM schedule_rules
		WHERE provider_id = $1
		  AND location_id = $2
		ORDER BY day_of_week ASC, start_time ASC`

	rows, err := r.db.Query(query, providerID, locationID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list schedule rules")
		return nil, types.NewStorageError("failed to list schedule rules", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

func scanRules(rows *sql.Rows) ([]*types.ScheduleRule, error) {
	var rules []*types.ScheduleRule
	for rows.Next() {
		rule := &types.ScheduleRule{}
		err := rows.Scan(
			&rule.ID,
			&rule.ProviderID,
			&rule.LocationID,
			&rule.DayOfWeek,
			&rule.StartTime,
			&rule.EndTime,
			&rule.SlotMinutes,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, types.NewStorageError("failed to scan schedule rule", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("error iterating schedule rules", err)
	}

	return rules, nil
}

// CreateOverride creates a date-specific schedule override
func (r *Repository) CreateOverride(ov *types.ScheduleOverride) error {
	query := `
		INSERT INTO schedule_overrides (
			id, provider_id, location_id, date, is_available, start_time,
			end_time, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(query,
		ov.ID,
		ov.ProviderID,
		ov.LocationID,
		ov.Date,
		ov.IsAvailable,
		ov.StartTime,
		ov.EndTime,
		ov.Reason,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create schedule override")
		return types.NewStorageError("failed to create schedule override", err)
	}

	r.logger.WithField("override_id", ov.ID).Info("Created schedule override")
	return nil
}

// DeleteOverride removes a schedule override
func (r *Repository) DeleteOverride(id string) error {
	result, err := r.db.Exec(`DELETE FROM schedule_overrides WHERE id = $1`, id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to delete schedule override")
		return types.NewStorageError("failed to delete schedule override", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(fmt.Sprintf("schedule override not found: %s", id))
	}

	r.logger.WithField("override_id", id).Info("Deleted schedule override")
	return nil
}

// GetOverride retrieves the effective override for a provider, location and
// date. Several rows may exist for the same tuple; the earliest created wins,
// deterministically.
func (r *Repository) GetOverride(providerID, locationID string, date timeutil.Date) (*types.ScheduleOverride, error) {
	query := `
		SELECT id, provider_id, location_id, date, is_available, start_time,
		       end_time, reason, created_at
		FROM schedule_overrides
		WHERE provider_id = $1
		  AND location_id = $2
		  AND date = $3
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	ov, err := scanOverride(r.db.QueryRow(query, providerID, locationID, date))
	if err != nil {
		if err == sql.ErrNoRows {
			// No override is a normal state, not an error.
			return nil, nil
		}
		r.logger.WithError(err).Error("Failed to get schedule override")
		return nil, types.NewStorageError("failed to get schedule override", err)
	}

	return ov, nil
}

// ListOverrides retrieves overrides for a provider and location in a date range
func (r *Repository) ListOverrides(providerID, locationID string, from, to timeutil.Date) ([]*types.ScheduleOverride, error) {
	query := `
		SELECT id, provider_id, location_id, date, is_available, start_time,
		       end_time, reason, created_at
		FROM schedule_overrides
		WHERE provider_id = $1
		  AND location_id = $2
		  AND date >= $3
		  AND date <= $4
		ORDER BY date ASC, created_at ASC`

	rows, err := r.db.Query(query, providerID, locationID, from, to)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list schedule overrides")
		return nil, types.NewStorageError("failed to list schedule overrides", err)
	}
	defer rows.Close()

	var overrides []*types.ScheduleOverride
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, types.NewStorageError("failed to scan schedule override", err)
		}
		overrides = append(overrides, ov)
	}

	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("error iterating schedule overrides", err)
	}

	return overrides, nil
}

// CreateAppointment inserts a new appointment. The store's partial unique
// index on (provider_id, date, start_time) over active statuses is the
// binding conflict guard; its violation surfaces as a slot conflict.
func (r *Repository) CreateAppointment(apt *types.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, provider_id, location_id, service_id, date,
			start_time, end_time, status, channel, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(query,
		apt.ID,
		apt.PatientID,
		apt.ProviderID,
		apt.LocationID,
		nullableID(apt.ServiceID),
		apt.Date,
		apt.StartTime,
		apt.EndTime,
		apt.Status,
		apt.Channel,
		apt.Notes,
	)

	if err != nil {
		if isUniqueViolation(err) {
			r.logger.WithFields(map[string]interface{}{
				"provider_id": apt.ProviderID,
				"date":        apt.Date.String(),
				"start_time":  apt.StartTime.String(),
			}).Warn("Appointment insert lost the slot race")
			return types.NewSlotConflictError("slot already booked", map[string]interface{}{
				"provider_id": apt.ProviderID,
				"date":        apt.Date.String(),
				"start_time":  apt.StartTime.String(),
			})
		}
		r.logger.WithError(err).Error("Failed to create appointment")
		return types.NewStorageError("failed to create appointment", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"appointment_id": apt.ID,
		"provider_id":    apt.ProviderID,
		"patient_id":     apt.PatientID,
	}).Info("Created appointment")
	return nil
}

// GetAppointmentByID retrieves an appointment by ID
func (r *Repository) GetAppointmentByID(id string) (*types.Appointment, error) {
	query := `
		SELECT id, patient_id, provider_id, location_id, service_id, date,
		       start_time, end_time, status, channel, notes, created_at,
		       updated_at, cancelled_at
		FROM appointments
		WHERE id = $1`

	apt, err := scanAppointment(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(fmt.Sprintf("appointment not found: %s", id))
		}
		r.logger.WithError(err).Error("Failed to get appointment")
		return nil, types.NewStorageError("failed to get appointment", err)
	}

	return apt, nil
}

// GetActiveAppointments retrieves the appointments that still occupy windows
// for a provider on a date (everything except cancelled and no-show)
func (r *Repository) GetActiveAppointments(providerID string, date timeutil.Date) ([]*types.Appointment, error) {
	query := `
		SELECT id, patient_id, provider_id, location_id, service_id, date,
		       start_time, end_time, status, channel, notes, created_at,
		       updated_at, cancelled_at
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND status NOT IN ('cancelled', 'no_show')
		ORDER BY start_time ASC`

	rows, err := r.db.Query(query, providerID, date)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get active appointments")
		return nil, types.NewStorageError("failed to get active appointments", err)
	}
	defer rows.Close()

	return scanAppointments(rows)
}

// ListAppointments retrieves appointments based on filters
func (r *Repository) ListAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	query := `
		SELECT id, patient_id, provider_id, location_id, service_id, date,
		       start_time, end_time, status, channel, notes, created_at,
		       updated_at, cancelled_at
		FROM appointments
		WHERE 1=1`

	args := []interface{}{}
	argIndex := 1

	if filters.PatientID != "" {
		query += fmt.Sprintf(" AND patient_id = $%d", argIndex)
		args = append(args, filters.PatientID)
		argIndex++
	}

	if filters.ProviderID != "" {
		query += fmt.Sprintf(" AND provider_id = $%d", argIndex)
		args = append(args, filters.ProviderID)
		argIndex++
	}

	if filters.LocationID != "" {
		query += fmt.Sprintf(" AND location_id = $%d", argIndex)
		args = append(args, filters.LocationID)
		argIndex++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(filters.Status))
		argIndex++
	}

	if !filters.FromDate.IsZero() {
		query += fmt.Sprintf(" AND date >= $%d", argIndex)
		args = append(args, filters.FromDate)
		argIndex++
	}

	if !filters.ToDate.IsZero() {
		query += fmt.Sprintf(" AND date <= $%d", argIndex)
		args = append(args, filters.ToDate)
		argIndex++
	}

	query += " ORDER BY date ASC, start_time ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filters.Limit)
		argIndex++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list appointments")
		return nil, types.NewStorageError("failed to list appointments", err)
	}
	defer rows.Close()

	return scanAppointments(rows)
}

// UpdateAppointmentWindow moves an appointment to a new date and window. The
// same unique index that guards inserts rejects a move into an occupied slot.
func (r *Repository) UpdateAppointmentWindow(id string, date timeutil.Date, start, end timeutil.ClockTime) error {
	query := `
		UPDATE appointments
		SET date = $1, start_time = $2, end_time = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(query, date, start, end, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewSlotConflictError("target slot already booked", map[string]interface{}{
				"appointment_id": id,
				"date":           date.String(),
				"start_time":     start.String(),
			})
		}
		r.logger.WithError(err).Error("Failed to update appointment window")
		return types.NewStorageError("failed to update appointment window", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(fmt.Sprintf("appointment not found: %s", id))
	}

	r.logger.WithField("appointment_id", id).Info("Updated appointment window")
	return nil
}

// UpdateAppointmentStatus transitions an appointment's status
func (r *Repository) UpdateAppointmentStatus(id string, status types.AppointmentStatus, cancelledAt *time.Time) error {
	query := `
		UPDATE appointments
		SET status = $1, cancelled_at = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, string(status), cancelledAt, time.Now(), id)
	if err != nil {
		r.logger.WithError(err).Error("Failed to update appointment status")
		return types.NewStorageError("failed to update appointment status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.NewStorageError("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(fmt.Sprintf("appointment not found: %s", id))
	}

	r.logger.WithFields(map[string]interface{}{
		"appointment_id": id,
		"status":         string(status),
	}).Info("Updated appointment status")
	return nil
}

// CreateAuditEntry appends an audit record. The table is insert-only; nothing
// updates or deletes rows.
func (r *Repository) CreateAuditEntry(entry *types.AuditEntry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return types.NewStorageError("failed to encode audit detail", err)
	}

	query := `
		INSERT INTO booking_audit_log (
			id, appointment_id, actor_id, actor_role, action, detail
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(query,
		entry.ID,
		entry.AppointmentID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		detail,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create audit entry")
		return types.NewStorageError("failed to create audit entry", err)
	}

	return nil
}

// GetAuditEntries retrieves the audit trail for an appointment in creation order
func (r *Repository) GetAuditEntries(appointmentID string) ([]*types.AuditEntry, error) {
	query := `
		SELECT id, appointment_id, actor_id, actor_role, action, detail, created_at
		FROM booking_audit_log
		WHERE appointment_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, appointmentID)
	if err != nil {
		r.logger.WithError(err).Error("Failed to get audit entries")
		return nil, types.NewStorageError("failed to get audit entries", err)
	}
	defer rows.Close()

	var entries []*types.AuditEntry
	for rows.Next() {
		entry := &types.AuditEntry{}
		var detail []byte
		err := rows.Scan(
			&entry.ID,
			&entry.AppointmentID,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Action,
			&detail,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, types.NewStorageError("failed to scan audit entry", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, types.NewStorageError("failed to decode audit detail", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("error iterating audit entries", err)
	}

	return entries, nil
}

// scanner abstracts *sql.Row and *sql.Rows for row scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

// nullClockTime scans nullable TIME columns
type nullClockTime struct {
	clock timeutil.ClockTime
	valid bool
}

func (n *nullClockTime) Scan(src interface{}) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.clock.Scan(src)
}

func (n *nullClockTime) ptr() *timeutil.ClockTime {
	if !n.valid {
		return nil
	}
	c := n.clock
	return &c
}

func scanOverride(row scanner) (*types.ScheduleOverride, error) {
	ov := &types.ScheduleOverride{}
	var start, end nullClockTime
	var reason sql.NullString

	err := row.Scan(
		&ov.ID,
		&ov.ProviderID,
		&ov.LocationID,
		&ov.Date,
		&ov.IsAvailable,
		&start,
		&end,
		&reason,
		&ov.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	ov.StartTime = start.ptr()
	ov.EndTime = end.ptr()
	ov.Reason = reason.String
	return ov, nil
}

func scanAppointment(row scanner) (*types.Appointment, error) {
	apt := &types.Appointment{}
	var serviceID, notes sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&apt.ID,
		&apt.PatientID,
		&apt.ProviderID,
		&apt.LocationID,
		&serviceID,
		&apt.Date,
		&apt.StartTime,
		&apt.EndTime,
		&apt.Status,
		&apt.Channel,
		&notes,
		&apt.CreatedAt,
		&apt.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	apt.ServiceID = serviceID.String
	apt.Notes = notes.String
	if cancelledAt.Valid {
		t := cancelledAt.Time
		apt.CancelledAt = &t
	}

	return apt, nil
}

func scanAppointments(rows *sql.Rows) ([]*types.Appointment, error) {
	var appointments []*types.Appointment
	for rows.Next() {
		apt, err := scanAppointment(rows)
		if err != nil {
			return nil, types.NewStorageError("failed to scan appointment", err)
		}
		appointments = append(appointments, apt)
	}

	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("error iterating appointments", err)
	}

	return appointments, nil
}

// nullableID maps an empty string to NULL for optional UUID columns
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
