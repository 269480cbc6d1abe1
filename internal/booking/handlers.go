package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// setupRoutes configures HTTP routes for the booking service
func (s *Service) setupRoutes(router *mux.Router) {
	if s.metrics != nil {
		router.Use(s.metrics.HTTPMiddleware)
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Slot resolution
	api.HandleFunc("/providers/{providerId}/slots", s.resolveSlotsHandler).Methods("GET")

	// Appointment routes
	api.HandleFunc("/appointments", s.reserveHandler).Methods("POST")
	api.HandleFunc("/appointments", s.listAppointmentsHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}", s.getAppointmentHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}", s.cancelHandler).Methods("DELETE")
	api.HandleFunc("/appointments/{id}/reschedule", s.rescheduleHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/status", s.updateStatusHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/audit", s.auditTrailHandler).Methods("GET")

	// Schedule configuration
	api.HandleFunc("/providers/{providerId}/schedule-rules", s.createRuleHandler).Methods("POST")
	api.HandleFunc("/providers/{providerId}/schedule-rules", s.listRulesHandler).Methods("GET")
	api.HandleFunc("/schedule-rules/{id}", s.updateRuleHandler).Methods("PUT")
	api.HandleFunc("/schedule-rules/{id}", s.deactivateRuleHandler).Methods("DELETE")
	api.HandleFunc("/providers/{providerId}/overrides", s.createOverrideHandler).Methods("POST")
	api.HandleFunc("/providers/{providerId}/overrides", s.listOverridesHandler).Methods("GET")
	api.HandleFunc("/overrides/{id}", s.deleteOverrideHandler).Methods("DELETE")

	// Health check
	if s.health != nil {
		api.HandleFunc("/health", s.health.HTTPHandler()).Methods("GET")
	}

	s.logger.Info("Booking service routes configured")
}

// resolveSlotsHandler handles candidate window resolution
func (s *Service) resolveSlotsHandler(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["providerId"]
	locationID := r.URL.Query().Get("location_id")

	date, err := timeutil.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid date, expected YYYY-MM-DD", nil))
		return
	}

	slotMinutes := 0
	if raw := r.URL.Query().Get("slot_minutes"); raw != "" {
		slotMinutes, err = strconv.Atoi(raw)
		if err != nil {
			s.writeErrorResponse(w, types.NewInvalidRequestError("invalid slot_minutes", nil))
			return
		}
	}

	windows, err := s.ResolveSlots(providerID, locationID, date, slotMinutes)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"provider_id": providerID,
		"location_id": locationID,
		"date":        date,
		"windows":     windows,
	})
}

// reserveHandler handles booking a window
func (s *Service) reserveHandler(w http.ResponseWriter, r *http.Request) {
	var req types.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}

	apt, err := s.Reserve(&req, s.actorFromRequest(r))
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, apt)
}

// listAppointmentsHandler handles filtered appointment queries
func (s *Service) listAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	filters, err := parseAppointmentFilters(r)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	appointments, err := s.ListAppointments(filters)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"appointments": appointments,
		"count":        len(appointments),
	})
}

// getAppointmentHandler handles appointment retrieval
func (s *Service) getAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.GetAppointment(mux.Vars(r)["id"])
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

// rescheduleHandler handles moving an appointment to a new window
func (s *Service) rescheduleHandler(w http.ResponseWriter, r *http.Request) {
	var change types.WindowChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}

	apt, err := s.Reschedule(mux.Vars(r)["id"], &change, s.actorFromRequest(r))
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, apt)
}

// cancelHandler handles appointment cancellation
func (s *Service) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Cancel(mux.Vars(r)["id"], s.actorFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// updateStatusHandler handles lifecycle transitions
func (s *Service) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status types.AppointmentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}

	if err := s.UpdateStatus(mux.Vars(r)["id"], body.Status, s.actorFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": string(body.Status)})
}

// auditTrailHandler handles audit history retrieval
func (s *Service) auditTrailHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.AuditTrail(mux.Vars(r)["id"])
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// createRuleHandler handles weekly rule creation
func (s *Service) createRuleHandler(w http.ResponseWriter, r *http.Request) {
	var rule types.ScheduleRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}
	rule.ProviderID = mux.Vars(r)["providerId"]

	created, err := s.CreateRule(&rule, s.actorFromRequest(r))
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

// listRulesHandler handles rule listing for a provider and location
func (s *Service) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := s.ListRules(mux.Vars(r)["providerId"], r.URL.Query().Get("location_id"))
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// updateRuleHandler handles partial rule updates
func (s *Service) updateRuleHandler(w http.ResponseWriter, r *http.Request) {
	var updates types.ScheduleRuleUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}

	if err := s.UpdateRule(mux.Vars(r)["id"], &updates, s.actorFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "updated"})
}

// deactivateRuleHandler handles rule soft deletion
func (s *Service) deactivateRuleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.DeactivateRule(mux.Vars(r)["id"], s.actorFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// createOverrideHandler handles date-specific override creation
func (s *Service) createOverrideHandler(w http.ResponseWriter, r *http.Request) {
	var ov types.ScheduleOverride
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid request body", nil))
		return
	}
	ov.ProviderID = mux.Vars(r)["providerId"]

	created, err := s.CreateOverride(&ov, s.actorFromRequest(r))
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, created)
}

// listOverridesHandler handles override listing in a date range
func (s *Service) listOverridesHandler(w http.ResponseWriter, r *http.Request) {
	from, err := timeutil.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid from date, expected YYYY-MM-DD", nil))
		return
	}
	to, err := timeutil.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		s.writeErrorResponse(w, types.NewInvalidRequestError("invalid to date, expected YYYY-MM-DD", nil))
		return
	}

	overrides, err := s.ListOverrides(mux.Vars(r)["providerId"], r.URL.Query().Get("location_id"), from, to)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// deleteOverrideHandler handles override removal
func (s *Service) deleteOverrideHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteOverride(mux.Vars(r)["id"], s.actorFromRequest(r)); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Helper methods

// actorFromRequest extracts the authenticated actor from a bearer token.
// Gateways that terminate auth upstream may pass identity headers instead.
func (s *Service) actorFromRequest(r *http.Request) types.Actor {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if actor, ok := s.actorFromToken(strings.TrimPrefix(auth, "Bearer ")); ok {
			return actor
		}
	}

	return types.Actor{
		ID:   r.Header.Get("X-User-ID"),
		Role: r.Header.Get("X-User-Role"),
	}
}

func (s *Service) actorFromToken(tokenString string) (types.Actor, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.config.JWT.SecretKey), nil
	})
	if err != nil || !token.Valid {
		s.logger.WithError(err).Warn("Rejected bearer token")
		return types.Actor{}, false
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return types.Actor{}, false
	}

	return types.Actor{ID: sub, Role: role}, true
}

// parseAppointmentFilters parses query parameters into appointment filters
func parseAppointmentFilters(r *http.Request) (*types.AppointmentFilters, error) {
	filters := &types.AppointmentFilters{}
	q := r.URL.Query()

	filters.PatientID = q.Get("patient_id")
	filters.ProviderID = q.Get("provider_id")
	filters.LocationID = q.Get("location_id")
	filters.Status = types.AppointmentStatus(q.Get("status"))

	if raw := q.Get("from"); raw != "" {
		from, err := timeutil.ParseDate(raw)
		if err != nil {
			return nil, types.NewInvalidRequestError("invalid from date, expected YYYY-MM-DD", nil)
		}
		filters.FromDate = from
	}

	if raw := q.Get("to"); raw != "" {
		to, err := timeutil.ParseDate(raw)
		if err != nil {
			return nil, types.NewInvalidRequestError("invalid to date, expected YYYY-MM-DD", nil)
		}
		filters.ToDate = to
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, types.NewInvalidRequestError("invalid limit", nil)
		}
		filters.Limit = limit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, types.NewInvalidRequestError("invalid offset", nil)
		}
		filters.Offset = offset
	}

	return filters, nil
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse maps a booking error onto an HTTP status and body. Slot
// conflicts surface as 409 with the SLOT_CONFLICT code so clients re-resolve
// and reprompt instead of retrying blindly.
func (s *Service) writeErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{
		"error": err.Error(),
	}

	var be *types.BookingError
	if errors.As(err, &be) {
		body["code"] = be.Code
		body["error"] = be.Message
		if be.Details != nil {
			body["details"] = be.Details
		}

		switch be.Type {
		case types.ErrorTypeConflict:
			status = http.StatusConflict
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeStorage:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}

	s.writeJSONResponse(w, status, body)
}
