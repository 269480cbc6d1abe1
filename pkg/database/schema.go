package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the booking schema: schedule configuration,
// appointments and the append-only audit log.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createScheduleRulesTable,
		createScheduleOverridesTable,
		createAppointmentsTable,
		createBookingAuditLogTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createScheduleRulesIndexes,
		createScheduleOverridesIndexes,
		createAppointmentsIndexes,
		createAppointmentsActiveWindowIndex,
		createBookingAuditLogIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	return nil
}

// SQL DDL statements for table creation
const (
	createScheduleRulesTable = `
		CREATE TABLE IF NOT EXISTS schedule_rules (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			provider_id UUID NOT NULL,
			location_id UUID NOT NULL,
			day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			slot_minutes INTEGER NOT NULL CHECK (slot_minutes > 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			CHECK (start_time < end_time)
		);`

	createScheduleOverridesTable = `
		CREATE TABLE IF NOT EXISTS schedule_overrides (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			provider_id UUID NOT NULL,
			location_id UUID NOT NULL,
			date DATE NOT NULL,
			is_available BOOLEAN NOT NULL,
			start_time TIME,
			end_time TIME,
			reason VARCHAR(500),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createAppointmentsTable = `
		CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			patient_id UUID NOT NULL,
			provider_id UUID NOT NULL,
			location_id UUID NOT NULL,
			service_id UUID,
			date DATE NOT NULL,
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			channel VARCHAR(20) NOT NULL DEFAULT 'patient_app',
			notes VARCHAR(2000),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			cancelled_at TIMESTAMP WITH TIME ZONE,
			CHECK (start_time < end_time)
		);`

	createBookingAuditLogTable = `
		CREATE TABLE IF NOT EXISTS booking_audit_log (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			appointment_id UUID NOT NULL,
			actor_id VARCHAR(100) NOT NULL,
			actor_role VARCHAR(20) NOT NULL,
			action VARCHAR(30) NOT NULL,
			detail JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`
)

// SQL DDL statements for indexes
const (
	createScheduleRulesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_schedule_rules_provider_day
		ON schedule_rules (provider_id, location_id, day_of_week)
		WHERE is_active;`

	createScheduleOverridesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_schedule_overrides_provider_date
		ON schedule_overrides (provider_id, location_id, date);`

	createAppointmentsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_appointments_provider_date
		ON appointments (provider_id, date);`

	// The binding conflict guard: at most one active appointment may hold a
	// (provider, date, start_time) tuple. Cancelled and no-show rows fall
	// outside the partial index, so the slot can be booked again.
	createAppointmentsActiveWindowIndex = `
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_appointments_active_window
		ON appointments (provider_id, date, start_time)
		WHERE status NOT IN ('cancelled', 'no_show');`

	createBookingAuditLogIndexes = `
		CREATE INDEX IF NOT EXISTS idx_booking_audit_log_appointment
		ON booking_audit_log (appointment_id, created_at);`
)
