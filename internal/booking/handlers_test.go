package booking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

func setupTestRouter() (*mux.Router, *MockBookingRepository) {
	service, mockRepo := setupTestService()
	router := mux.NewRouter()
	service.setupRoutes(router)
	return router, mockRepo
}

func doRequest(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", "patient-123")
	req.Header.Set("X-User-Role", types.RolePatient)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestResolveSlotsHandler(t *testing.T) {
	router, mockRepo := setupTestRouter()

	mockRepo.On("GetActiveRules", "provider-1", "location-1", 1).Return([]*types.ScheduleRule{rule("09:00", "10:00", 30)}, nil)
	mockRepo.On("GetOverride", "provider-1", "location-1", testDate).Return(nil, nil)
	mockRepo.On("GetActiveAppointments", "provider-1", testDate).Return([]*types.Appointment{}, nil)

	rec := doRequest(router, "GET", "/api/v1/providers/provider-1/slots?location_id=location-1&date=2026-03-16", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Windows []*types.CandidateWindow `json:"windows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Windows, 2)
}

func TestResolveSlotsHandler_BadDate(t *testing.T) {
	router, _ := setupTestRouter()

	rec := doRequest(router, "GET", "/api/v1/providers/provider-1/slots?location_id=location-1&date=tomorrow", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveHandler_Created(t *testing.T) {
	router, mockRepo := setupTestRouter()

	mockRepo.On("GetActiveAppointments", "provider-1", testDate).Return([]*types.Appointment{}, nil)
	mockRepo.On("CreateAppointment", mock.AnythingOfType("*types.Appointment")).Return(nil)
	mockRepo.On("CreateAuditEntry", mock.AnythingOfType("*types.AuditEntry")).Return(nil)

	rec := doRequest(router, "POST", "/api/v1/appointments", validReservation())

	require.Equal(t, http.StatusCreated, rec.Code)

	var apt types.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apt))
	assert.NotEmpty(t, apt.ID)
	assert.Equal(t, types.StatusPending, apt.Status)
}

func TestReserveHandler_ConflictMapsTo409(t *testing.T) {
	router, mockRepo := setupTestRouter()

	existing := bookedAppointment("apt-1", "10:00", "10:30", types.StatusConfirmed)
	mockRepo.On("GetActiveAppointments", "provider-1", testDate).Return([]*types.Appointment{existing}, nil)

	rec := doRequest(router, "POST", "/api/v1/appointments", validReservation())

	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ErrCodeSlotConflict, body["code"])
}

func TestReserveHandler_ValidationMapsTo400(t *testing.T) {
	router, _ := setupTestRouter()

	req := validReservation()
	req.ProviderID = ""

	rec := doRequest(router, "POST", "/api/v1/appointments", req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAppointmentHandler_NotFoundMapsTo404(t *testing.T) {
	router, mockRepo := setupTestRouter()

	mockRepo.On("GetAppointmentByID", "missing").Return(nil, types.NewNotFoundError("appointment not found: missing"))

	rec := doRequest(router, "GET", "/api/v1/appointments/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReserveHandler_StorageMapsTo503(t *testing.T) {
	router, mockRepo := setupTestRouter()

	mockRepo.On("GetActiveAppointments", "provider-1", testDate).
		Return(nil, types.NewStorageError("connection refused", nil))

	rec := doRequest(router, "POST", "/api/v1/appointments", validReservation())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCancelHandler(t *testing.T) {
	router, mockRepo := setupTestRouter()

	apt := &types.Appointment{
		ID:        "apt-1",
		PatientID: "patient-123",
		Date:      testDate,
		Status:    types.StatusConfirmed,
	}
	mockRepo.On("GetAppointmentByID", "apt-1").Return(apt, nil)
	mockRepo.On("UpdateAppointmentStatus", "apt-1", types.StatusCancelled, mock.AnythingOfType("*time.Time")).Return(nil)
	mockRepo.On("CreateAuditEntry", mock.AnythingOfType("*types.AuditEntry")).Return(nil)

	rec := doRequest(router, "DELETE", "/api/v1/appointments/apt-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockRepo.AssertExpectations(t)
}

func TestListAppointmentsHandler_FilterParsing(t *testing.T) {
	router, mockRepo := setupTestRouter()

	mockRepo.On("ListAppointments", mock.MatchedBy(func(f *types.AppointmentFilters) bool {
		return f.PatientID == "patient-123" && f.Status == types.StatusConfirmed && f.Limit == 5
	})).Return([]*types.Appointment{}, nil)

	rec := doRequest(router, "GET", "/api/v1/appointments?patient_id=patient-123&status=confirmed&limit=5", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockRepo.AssertExpectations(t)
}
