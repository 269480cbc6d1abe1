package booking

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/database"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &Repository{
		db:     &database.DB{DB: sqlDB},
		logger: logger.New("debug"),
	}

	cleanup := func() {
		sqlDB.Close()
	}

	return repo, mock, cleanup
}

func testAppointment() *types.Appointment {
	return &types.Appointment{
		ID:         "apt-1",
		PatientID:  "patient-123",
		ProviderID: "provider-1",
		LocationID: "location-1",
		Date:       timeutil.MustDate("2026-03-16"),
		StartTime:  timeutil.MustClock("10:00"),
		EndTime:    timeutil.MustClock("10:30"),
		Status:     types.StatusPending,
		Channel:    types.ChannelWeb,
	}
}

func TestRepository_CreateAppointment(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	apt := testAppointment()

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(
			apt.ID,
			apt.PatientID,
			apt.ProviderID,
			apt.LocationID,
			nil, // service_id
			apt.Date,
			apt.StartTime,
			apt.EndTime,
			apt.Status,
			apt.Channel,
			apt.Notes,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateAppointment(apt)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_UniqueViolationIsSlotConflict(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Constraint: "uniq_appointments_active_window",
		})

	err := repo.CreateAppointment(testAppointment())

	require.Error(t, err)
	assert.True(t, types.IsSlotConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_OtherErrorIsStorage(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO appointments").
		WillReturnError(&pq.Error{Code: "53300"}) // too_many_connections

	err := repo.CreateAppointment(testAppointment())

	require.Error(t, err)
	assert.True(t, types.IsStorageError(err))
	assert.False(t, types.IsSlotConflict(err))
}

func TestRepository_UpdateAppointmentWindow_UniqueViolationIsSlotConflict(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE appointments").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Constraint: "uniq_appointments_active_window",
		})

	err := repo.UpdateAppointmentWindow("apt-1", timeutil.MustDate("2026-03-16"),
		timeutil.MustClock("10:00"), timeutil.MustClock("10:30"))

	require.Error(t, err)
	assert.True(t, types.IsSlotConflict(err))
}

func TestRepository_UpdateAppointmentWindow_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE appointments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAppointmentWindow("missing", timeutil.MustDate("2026-03-16"),
		timeutil.MustClock("10:00"), timeutil.MustClock("10:30"))

	assert.True(t, types.IsNotFound(err))
}

func TestRepository_GetAppointmentByID(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "patient_id", "provider_id", "location_id", "service_id", "date",
		"start_time", "end_time", "status", "channel", "notes", "created_at",
		"updated_at", "cancelled_at",
	}).AddRow(
		"apt-1", "patient-123", "provider-1", "location-1", nil, "2026-03-16",
		"10:00:00", "10:30:00", "confirmed", "web", nil, now, now, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("apt-1").
		WillReturnRows(rows)

	apt, err := repo.GetAppointmentByID("apt-1")

	require.NoError(t, err)
	assert.Equal(t, "apt-1", apt.ID)
	assert.Equal(t, timeutil.MustClock("10:00"), apt.StartTime)
	assert.Equal(t, types.StatusConfirmed, apt.Status)
	assert.Empty(t, apt.ServiceID)
	assert.Nil(t, apt.CancelledAt)
}

func TestRepository_GetAppointmentByID_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetAppointmentByID("missing")

	assert.True(t, types.IsNotFound(err))
}

func TestRepository_GetActiveAppointments_ExcludesReleasedStatuses(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	// The exclusion happens in SQL; assert the query carries it.
	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE provider_id = \$1 AND date = \$2 AND status NOT IN \('cancelled', 'no_show'\)`).
		WithArgs("provider-1", timeutil.MustDate("2026-03-16")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "provider_id", "location_id", "service_id", "date",
			"start_time", "end_time", "status", "channel", "notes", "created_at",
			"updated_at", "cancelled_at",
		}))

	appointments, err := repo.GetActiveAppointments("provider-1", timeutil.MustDate("2026-03-16"))

	require.NoError(t, err)
	assert.Empty(t, appointments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetOverride_EarliestCreatedWins(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM schedule_overrides (.+) ORDER BY created_at ASC, id ASC\s+LIMIT 1`).
		WithArgs("provider-1", "location-1", timeutil.MustDate("2026-03-16")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "provider_id", "location_id", "date", "is_available",
			"start_time", "end_time", "reason", "created_at",
		}).AddRow(
			"ov-1", "provider-1", "location-1", "2026-03-16", false,
			nil, nil, "public holiday", time.Now(),
		))

	ov, err := repo.GetOverride("provider-1", "location-1", timeutil.MustDate("2026-03-16"))

	require.NoError(t, err)
	require.NotNil(t, ov)
	assert.False(t, ov.IsAvailable)
	assert.Equal(t, "public holiday", ov.Reason)
	assert.Nil(t, ov.StartTime)
}

func TestRepository_GetOverride_NoneIsNotAnError(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM schedule_overrides").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ov, err := repo.GetOverride("provider-1", "location-1", timeutil.MustDate("2026-03-16"))

	assert.NoError(t, err)
	assert.Nil(t, ov)
}

func TestRepository_GetActiveRules(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM schedule_rules`).
		WithArgs("provider-1", "location-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "provider_id", "location_id", "day_of_week", "start_time",
			"end_time", "slot_minutes", "is_active", "created_at", "updated_at",
		}).
			AddRow("rule-1", "provider-1", "location-1", 1, "09:00:00", "12:00:00", 30, true, now, now).
			AddRow("rule-2", "provider-1", "location-1", 1, "14:00:00", "17:00:00", 30, true, now, now))

	rules, err := repo.GetActiveRules("provider-1", "location-1", 1)

	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, timeutil.MustClock("09:00"), rules[0].StartTime)
	assert.Equal(t, timeutil.MustClock("14:00"), rules[1].StartTime)
}

func TestRepository_UpdateRule_NoFields(t *testing.T) {
	repo, _, cleanup := setupTestRepository(t)
	defer cleanup()

	err := repo.UpdateRule("rule-1", &types.ScheduleRuleUpdates{})

	assert.True(t, types.IsInvalidRequest(err))
}

func TestRepository_UpdateRule_PartialUpdate(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	slotMinutes := 20
	mock.ExpectExec(`UPDATE schedule_rules SET slot_minutes = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(slotMinutes, sqlmock.AnyArg(), "rule-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateRule("rule-1", &types.ScheduleRuleUpdates{SlotMinutes: &slotMinutes})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeactivateRule_NotFound(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("UPDATE schedule_rules").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivateRule("missing")

	assert.True(t, types.IsNotFound(err))
}

func TestRepository_CreateAuditEntry_EncodesDetail(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO booking_audit_log").
		WithArgs("audit-1", "apt-1", "patient-123", "patient", "booked", []byte(`{"channel":"web"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateAuditEntry(&types.AuditEntry{
		ID:            "audit-1",
		AppointmentID: "apt-1",
		ActorID:       "patient-123",
		ActorRole:     "patient",
		Action:        "booked",
		Detail:        map[string]interface{}{"channel": "web"},
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListAppointments_BuildsFilterQuery(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE 1=1 AND patient_id = \$1 AND status = \$2 (.+) LIMIT \$3`).
		WithArgs("patient-123", "confirmed", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "provider_id", "location_id", "service_id", "date",
			"start_time", "end_time", "status", "channel", "notes", "created_at",
			"updated_at", "cancelled_at",
		}))

	_, err := repo.ListAppointments(&types.AppointmentFilters{
		PatientID: "patient-123",
		Status:    types.StatusConfirmed,
		Limit:     10,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
