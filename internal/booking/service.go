package booking

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/config"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/database"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/interfaces"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/logger"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/monitoring"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

// Service implements the BookingService interface
type Service struct {
	config     *config.Config
	logger     *logger.Logger
	repository interfaces.BookingRepository
	cache      interfaces.SlotCache
	db         *database.DB
	metrics    *monitoring.MetricsCollector
	health     *monitoring.HealthManager
	audit      *auditRecorder
	server     *http.Server
}

// New creates a new booking service
func New(cfg *config.Config, log *logger.Logger) interfaces.BookingService {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		panic(err)
	}

	// Schema creation is idempotent; running it at startup keeps fresh
	// environments usable without a separate migration step.
	if err := db.CreateSchema(context.Background()); err != nil {
		log.WithError(err).Error("Failed to ensure database schema")
		panic(err)
	}

	repository := NewRepository(db, log)

	var cache interfaces.SlotCache = NewNoopSlotCache()
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		cache = NewSlotCache(redisClient, time.Duration(cfg.Redis.SlotCacheTTL)*time.Second, log)
	}

	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector("booking-service")
	}

	health := monitoring.NewHealthManager("booking-service", "1.0.0")
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	if redisClient != nil {
		health.RegisterChecker("redis", monitoring.NewRedisHealthChecker(redisClient))
	}

	return &Service{
		config:     cfg,
		logger:     log,
		repository: repository,
		cache:      cache,
		db:         db,
		metrics:    metrics,
		health:     health,
		audit:      newAuditRecorder(repository, log, metrics),
	}
}

// NewWithDependencies wires a service onto explicit collaborators; used by tests
func NewWithDependencies(cfg *config.Config, log *logger.Logger, repo interfaces.BookingRepository, cache interfaces.SlotCache) *Service {
	return &Service{
		config:     cfg,
		logger:     log,
		repository: repo,
		cache:      cache,
		audit:      newAuditRecorder(repo, log, nil),
	}
}

// ResolveSlots computes the ordered candidate windows for a provider,
// location and date. The result is derived on every call from the current
// rules, overrides and active appointments; briefly cached copies are
// advisory and never consulted for the booking decision itself.
func (s *Service) ResolveSlots(providerID, locationID string, date timeutil.Date, slotMinutes int) ([]*types.CandidateWindow, error) {
	if providerID == "" {
		return nil, types.NewInvalidRequestError("provider ID is required", nil)
	}
	if locationID == "" {
		return nil, types.NewInvalidRequestError("location ID is required", nil)
	}
	if date.IsZero() {
		return nil, types.NewInvalidRequestError("date is required", nil)
	}
	if slotMinutes <= 0 {
		slotMinutes = s.config.Booking.DefaultSlotMinutes
	}

	started := time.Now()
	if windows, ok := s.cache.Get(providerID, locationID, date, slotMinutes); ok {
		s.recordResolution(true, started)
		return windows, nil
	}

	rules, err := s.repository.GetActiveRules(providerID, locationID, date.Weekday())
	if err != nil {
		return nil, err
	}

	override, err := s.repository.GetOverride(providerID, locationID, date)
	if err != nil {
		return nil, err
	}

	booked, err := s.repository.GetActiveAppointments(providerID, date)
	if err != nil {
		return nil, err
	}

	windows := buildCandidates(rules, override, booked, slotMinutes)

	s.cache.Put(providerID, locationID, date, slotMinutes, windows)
	s.recordResolution(false, started)

	s.logger.WithFields(map[string]interface{}{
		"provider_id": providerID,
		"location_id": locationID,
		"date":        date.String(),
		"windows":     len(windows),
	}).Debug("Resolved candidate windows")

	return windows, nil
}

// Reserve books a window for a patient. The store's unique index is the only
// binding conflict guard; the advisory overlap pre-check merely produces a
// friendlier error for windows that are already visibly taken.
func (s *Service) Reserve(req *types.ReservationRequest, actor types.Actor) (*types.Appointment, error) {
	if err := validateReservation(req); err != nil {
		return nil, err
	}

	if actor.Role == types.RolePatient && actor.ID != req.PatientID {
		return nil, types.NewInvalidRequestError("patients may only book for themselves", nil)
	}

	// Advisory pre-check. A pass here guarantees nothing: a concurrent
	// reservation can still win the slot between this read and our insert.
	booked, err := s.repository.GetActiveAppointments(req.ProviderID, req.Date)
	if err != nil {
		return nil, err
	}
	if blocking := findBlocking(booked, req.StartTime, req.EndTime); blocking != nil {
		s.recordConflict("reserve")
		return nil, types.NewSlotConflictError("slot already booked", map[string]interface{}{
			"provider_id": req.ProviderID,
			"date":        req.Date.String(),
			"start_time":  req.StartTime.String(),
		})
	}

	channel := req.Channel
	if channel == "" {
		channel = types.ChannelWeb
	}

	now := time.Now()
	apt := &types.Appointment{
		ID:         uuid.New().String(),
		PatientID:  req.PatientID,
		ProviderID: req.ProviderID,
		LocationID: req.LocationID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     types.StatusPending,
		Channel:    channel,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repository.CreateAppointment(apt); err != nil {
		if types.IsSlotConflict(err) {
			s.recordConflict("reserve")
		}
		return nil, err
	}

	s.cache.Invalidate(apt.ProviderID, apt.Date)
	s.audit.record(apt.ID, actor, types.AuditActionBooked, map[string]interface{}{
		"patient_id": apt.PatientID,
		"window":     windowDetail(apt),
		"channel":    string(channel),
	})
	if s.metrics != nil {
		s.metrics.RecordBooking(string(channel), string(apt.Status))
	}

	return apt, nil
}

// Reschedule moves an existing appointment to a new window. Completed,
// cancelled and no-show appointments cannot move.
func (s *Service) Reschedule(appointmentID string, change *types.WindowChange, actor types.Actor) (*types.Appointment, error) {
	if appointmentID == "" {
		return nil, types.NewInvalidRequestError("appointment ID is required", nil)
	}
	if err := validateWindow(change.Date, change.StartTime, change.EndTime); err != nil {
		return nil, err
	}

	apt, err := s.repository.GetAppointmentByID(appointmentID)
	if err != nil {
		return nil, err
	}

	if err := authorizeWrite(apt, actor); err != nil {
		return nil, err
	}

	switch apt.Status {
	case types.StatusCompleted, types.StatusCancelled, types.StatusNoShow:
		return nil, types.NewInvalidRequestError(
			fmt.Sprintf("cannot reschedule a %s appointment", apt.Status), nil)
	}

	before := windowDetail(apt)

	// Same advisory pre-check as Reserve; the unique index still decides.
	booked, err := s.repository.GetActiveAppointments(apt.ProviderID, change.Date)
	if err != nil {
		return nil, err
	}
	for _, other := range booked {
		if other.ID == apt.ID {
			continue
		}
		if other.Status.IsActive() && timeutil.Overlaps(change.StartTime, change.EndTime, other.StartTime, other.EndTime) {
			s.recordConflict("reschedule")
			return nil, types.NewSlotConflictError("target slot already booked", map[string]interface{}{
				"appointment_id": appointmentID,
				"date":           change.Date.String(),
				"start_time":     change.StartTime.String(),
			})
		}
	}

	if err := s.repository.UpdateAppointmentWindow(apt.ID, change.Date, change.StartTime, change.EndTime); err != nil {
		if types.IsSlotConflict(err) {
			s.recordConflict("reschedule")
		}
		return nil, err
	}

	oldDate := apt.Date
	apt.Date = change.Date
	apt.StartTime = change.StartTime
	apt.EndTime = change.EndTime
	apt.UpdatedAt = time.Now()

	s.cache.Invalidate(apt.ProviderID, oldDate)
	s.cache.Invalidate(apt.ProviderID, change.Date)
	s.audit.record(apt.ID, actor, types.AuditActionRescheduled, map[string]interface{}{
		"before": before,
		"after":  windowDetail(apt),
	})

	return apt, nil
}

// Cancel cancels an appointment and releases its window
func (s *Service) Cancel(appointmentID string, actor types.Actor) error {
	return s.UpdateStatus(appointmentID, types.StatusCancelled, actor)
}

// UpdateStatus transitions an appointment through its lifecycle. Patients may
// only cancel; providers and admins may perform any permitted transition.
func (s *Service) UpdateStatus(appointmentID string, next types.AppointmentStatus, actor types.Actor) error {
	if appointmentID == "" {
		return types.NewInvalidRequestError("appointment ID is required", nil)
	}
	if !next.IsValid() {
		return types.NewInvalidRequestError(fmt.Sprintf("unknown status: %s", next), nil)
	}

	apt, err := s.repository.GetAppointmentByID(appointmentID)
	if err != nil {
		return err
	}

	if err := authorizeWrite(apt, actor); err != nil {
		return err
	}
	if actor.Role == types.RolePatient && next != types.StatusCancelled {
		return types.NewInvalidRequestError("patients may only cancel appointments", nil)
	}

	if !transitionAllowed(apt.Status, next) {
		return types.NewInvalidRequestError(
			fmt.Sprintf("cannot transition from %s to %s", apt.Status, next), map[string]interface{}{
				"current": string(apt.Status),
				"next":    string(next),
			})
	}

	var cancelledAt *time.Time
	if next == types.StatusCancelled {
		now := time.Now()
		cancelledAt = &now
	}

	if err := s.repository.UpdateAppointmentStatus(apt.ID, next, cancelledAt); err != nil {
		return err
	}

	// Leaving an active status frees the window for new bookings.
	if apt.Status.IsActive() && !next.IsActive() {
		s.cache.Invalidate(apt.ProviderID, apt.Date)
	}

	action := types.AuditActionStatusChanged
	if next == types.StatusCancelled {
		action = types.AuditActionCancelled
	}
	s.audit.record(apt.ID, actor, action, map[string]interface{}{
		"from": string(apt.Status),
		"to":   string(next),
	})
	if s.metrics != nil {
		s.metrics.RecordBooking(string(apt.Channel), string(next))
	}

	return nil
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(appointmentID string) (*types.Appointment, error) {
	if appointmentID == "" {
		return nil, types.NewInvalidRequestError("appointment ID is required", nil)
	}
	return s.repository.GetAppointmentByID(appointmentID)
}

// ListAppointments retrieves appointments matching the filters
func (s *Service) ListAppointments(filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	if filters == nil {
		filters = &types.AppointmentFilters{}
	}
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, types.NewInvalidRequestError(fmt.Sprintf("unknown status: %s", filters.Status), nil)
	}
	return s.repository.ListAppointments(filters)
}

// AuditTrail retrieves the append-only audit history of an appointment
func (s *Service) AuditTrail(appointmentID string) ([]*types.AuditEntry, error) {
	if appointmentID == "" {
		return nil, types.NewInvalidRequestError("appointment ID is required", nil)
	}
	if _, err := s.repository.GetAppointmentByID(appointmentID); err != nil {
		return nil, err
	}
	return s.repository.GetAuditEntries(appointmentID)
}

// CreateRule creates a weekly schedule rule for a provider
func (s *Service) CreateRule(rule *types.ScheduleRule, actor types.Actor) (*types.ScheduleRule, error) {
	if err := authorizeScheduleWrite(rule.ProviderID, actor); err != nil {
		return nil, err
	}
	if rule.ProviderID == "" || rule.LocationID == "" {
		return nil, types.NewInvalidRequestError("provider ID and location ID are required", nil)
	}
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return nil, types.NewInvalidRequestError("day of week must be between 0 and 6", nil)
	}
	if !rule.StartTime.Before(rule.EndTime) {
		return nil, types.NewInvalidRequestError("start time must be before end time", nil)
	}
	if rule.SlotMinutes <= 0 {
		rule.SlotMinutes = s.config.Booking.DefaultSlotMinutes
	}

	now := time.Now()
	rule.ID = uuid.New().String()
	rule.IsActive = true
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.repository.CreateRule(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule applies partial updates to a schedule rule
func (s *Service) UpdateRule(ruleID string, updates *types.ScheduleRuleUpdates, actor types.Actor) error {
	rule, err := s.repository.GetRuleByID(ruleID)
	if err != nil {
		return err
	}
	if err := authorizeScheduleWrite(rule.ProviderID, actor); err != nil {
		return err
	}

	start := rule.StartTime
	end := rule.EndTime
	if updates.StartTime != nil {
		start = *updates.StartTime
	}
	if updates.EndTime != nil {
		end = *updates.EndTime
	}
	if !start.Before(end) {
		return types.NewInvalidRequestError("start time must be before end time", nil)
	}
	if updates.SlotMinutes != nil && *updates.SlotMinutes <= 0 {
		return types.NewInvalidRequestError("slot minutes must be positive", nil)
	}

	return s.repository.UpdateRule(ruleID, updates)
}

// DeactivateRule soft deletes a schedule rule; existing appointments keep
// their windows
func (s *Service) DeactivateRule(ruleID string, actor types.Actor) error {
	rule, err := s.repository.GetRuleByID(ruleID)
	if err != nil {
		return err
	}
	if err := authorizeScheduleWrite(rule.ProviderID, actor); err != nil {
		return err
	}
	return s.repository.DeactivateRule(ruleID)
}

// ListRules retrieves all rules for a provider and location
func (s *Service) ListRules(providerID, locationID string) ([]*types.ScheduleRule, error) {
	if providerID == "" || locationID == "" {
		return nil, types.NewInvalidRequestError("provider ID and location ID are required", nil)
	}
	return s.repository.ListRules(providerID, locationID)
}

// CreateOverride creates a date-specific schedule override
func (s *Service) CreateOverride(ov *types.ScheduleOverride, actor types.Actor) (*types.ScheduleOverride, error) {
	if err := authorizeScheduleWrite(ov.ProviderID, actor); err != nil {
		return nil, err
	}
	if ov.ProviderID == "" || ov.LocationID == "" {
		return nil, types.NewInvalidRequestError("provider ID and location ID are required", nil)
	}
	if ov.Date.IsZero() {
		return nil, types.NewInvalidRequestError("date is required", nil)
	}
	if ov.IsAvailable {
		if (ov.StartTime == nil) != (ov.EndTime == nil) {
			return nil, types.NewInvalidRequestError("override times must be set together", nil)
		}
		if ov.StartTime != nil && !ov.StartTime.Before(*ov.EndTime) {
			return nil, types.NewInvalidRequestError("start time must be before end time", nil)
		}
	} else {
		// Blackout overrides carry no window.
		ov.StartTime = nil
		ov.EndTime = nil
	}

	ov.ID = uuid.New().String()
	ov.CreatedAt = time.Now()

	if err := s.repository.CreateOverride(ov); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ov.ProviderID, ov.Date)
	return ov, nil
}

// DeleteOverride removes a schedule override
func (s *Service) DeleteOverride(overrideID string, actor types.Actor) error {
	if actor.Role != types.RoleProvider && actor.Role != types.RoleAdmin {
		return types.NewInvalidRequestError("only providers and admins may manage schedules", nil)
	}
	return s.repository.DeleteOverride(overrideID)
}

// ListOverrides retrieves overrides for a provider and location in a date range
func (s *Service) ListOverrides(providerID, locationID string, from, to timeutil.Date) ([]*types.ScheduleOverride, error) {
	if providerID == "" || locationID == "" {
		return nil, types.NewInvalidRequestError("provider ID and location ID are required", nil)
	}
	if from.IsZero() || to.IsZero() {
		return nil, types.NewInvalidRequestError("date range is required", nil)
	}
	return s.repository.ListOverrides(providerID, locationID, from, to)
}

// Start starts the booking service HTTP server
func (s *Service) Start(addr string) error {
	router := mux.NewRouter()
	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting Booking Service")
	return s.server.ListenAndServe()
}

// Stop stops the booking service
func (s *Service) Stop() error {
	if s.server != nil {
		s.logger.Info("Stopping Booking Service")
		if err := s.server.Close(); err != nil {
			return err
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// transitionAllowed encodes the appointment lifecycle. Terminal states
// (completed, cancelled, no_show) permit no further transitions.
func transitionAllowed(from, to types.AppointmentStatus) bool {
	switch from {
	case types.StatusPending:
		return to == types.StatusConfirmed || to == types.StatusCancelled
	case types.StatusConfirmed:
		return to == types.StatusCheckedIn || to == types.StatusCancelled || to == types.StatusNoShow
	case types.StatusCheckedIn:
		return to == types.StatusInProgress || to == types.StatusCancelled
	case types.StatusInProgress:
		return to == types.StatusCompleted
	}
	return false
}

// authorizeWrite checks that the actor may modify the appointment. Patients
// may only touch their own; providers only theirs; admins anything.
func authorizeWrite(apt *types.Appointment, actor types.Actor) error {
	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleProvider:
		if actor.ID == apt.ProviderID {
			return nil
		}
	case types.RolePatient:
		if actor.ID == apt.PatientID {
			return nil
		}
	}
	return types.NewInvalidRequestError("actor is not permitted to modify this appointment", map[string]interface{}{
		"actor_role": actor.Role,
	})
}

// authorizeScheduleWrite checks that the actor may manage a provider's schedule
func authorizeScheduleWrite(providerID string, actor types.Actor) error {
	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleProvider:
		if actor.ID == providerID {
			return nil
		}
	}
	return types.NewInvalidRequestError("only the provider or an admin may manage this schedule", map[string]interface{}{
		"actor_role": actor.Role,
	})
}

func validateReservation(req *types.ReservationRequest) error {
	if req == nil {
		return types.NewInvalidRequestError("request body is required", nil)
	}
	if req.PatientID == "" {
		return types.NewInvalidRequestError("patient ID is required", nil)
	}
	if req.ProviderID == "" {
		return types.NewInvalidRequestError("provider ID is required", nil)
	}
	if req.LocationID == "" {
		return types.NewInvalidRequestError("location ID is required", nil)
	}
	return validateWindow(req.Date, req.StartTime, req.EndTime)
}

func validateWindow(date timeutil.Date, start, end timeutil.ClockTime) error {
	if date.IsZero() {
		return types.NewInvalidRequestError("date is required", nil)
	}
	if !start.Before(end) {
		return types.NewInvalidRequestError("start time must be before end time", map[string]interface{}{
			"start_time": start.String(),
			"end_time":   end.String(),
		})
	}
	return nil
}

func (s *Service) recordConflict(operation string) {
	if s.metrics != nil {
		s.metrics.RecordSlotConflict(operation)
	}
}

func (s *Service) recordResolution(cacheHit bool, started time.Time) {
	if s.metrics != nil {
		s.metrics.RecordSlotResolution(cacheHit, time.Since(started))
	}
}
