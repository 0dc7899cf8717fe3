package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/upb/academic-records/authz"
	"github.com/upb/academic-records/models"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/services"
	"go.uber.org/zap"
)

// MsgListForbidden is returned to callers without the admin role
const MsgListForbidden = "Only admins can view the audit log"

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// Actor identifies who performed an audited action
type Actor struct {
	Email string
	Role  models.Role
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	onDrop      func()
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	// mu guards started and stopped; senders hold it for reading so Stop
	// never closes eventChan under an in-flight send.
	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int    // Size of the event buffer channel
	WorkerCount int    // Number of concurrent workers
	OnDrop      func() // Called when an event is dropped because the buffer is full
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  256,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		onDrop:      config.OnDrop,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent logs an event asynchronously (non-blocking)
// Returns immediately, event is processed in background
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("actor", event.Log.ActorEmail))
		if s.onDrop != nil {
			s.onDrop()
		}
		return fmt.Errorf("audit event buffer full")
	}
}

// Record fills request metadata from ctx and queues the log. Failures are
// logged, never returned: auditing must not fail the audited operation.
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) {
	if meta, ok := RequestMetaFromContext(ctx); ok {
		log.WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	}
	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.logger.Debug("audit event not recorded",
			zap.String("action", string(log.Action)),
			zap.Error(err))
	}
}

// List returns persisted audit logs, newest first. Admin only.
func (s *AuditService) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	if err := authz.RequireRoleFor(ctx, models.RoleAdmin, MsgListForbidden); err != nil {
		return nil, err
	}

	logs, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list audit logs", err)
	}
	return logs, nil
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("actor", event.Log.ActorEmail))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	// A stop that times out cancels inserts still in flight.
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"workers"`
	Started       bool `json:"started"`
}

// Convenience methods for logging common events

// LogLogin records a successful sign-in
func (s *AuditService) LogLogin(ctx context.Context, user *models.User) {
	log := models.NewAuditLog(models.AuditActionLogin, "session").
		WithActor(user.Email, user.Role).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{"provider": user.AuthProvider})
	s.Record(ctx, log)
}

// LogLoginFailed records a rejected sign-in. The credential itself is never stored.
func (s *AuditService) LogLoginFailed(ctx context.Context, reason string) {
	log := models.NewAuditLog(models.AuditActionLoginFailed, "session").
		WithDetails(map[string]interface{}{"reason": reason})
	s.Record(ctx, log)
}

// LogLogout records a revoked session
func (s *AuditService) LogLogout(ctx context.Context, actor Actor, sessions int) {
	log := models.NewAuditLog(models.AuditActionLogout, "session").
		WithActor(actor.Email, actor.Role).
		WithDetails(map[string]interface{}{"sessions": sessions})
	s.Record(ctx, log)
}

// LogUserCreated records the first sign-in of a new user
func (s *AuditService) LogUserCreated(ctx context.Context, user *models.User) {
	log := models.NewAuditLog(models.AuditActionUserCreated, "user").
		WithActor(user.Email, user.Role).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{"role": user.Role})
	s.Record(ctx, log)
}

// LogRoleChanged records a role correction applied by the directory
func (s *AuditService) LogRoleChanged(ctx context.Context, user *models.User, from models.Role) {
	log := models.NewAuditLog(models.AuditActionRoleChanged, "user").
		WithActor(user.Email, user.Role).
		WithResource(user.ID.String()).
		WithDetails(map[string]interface{}{"from": from, "to": user.Role})
	s.Record(ctx, log)
}

// LogCourseChange records a course create, update or delete
func (s *AuditService) LogCourseChange(ctx context.Context, action models.AuditAction, actor Actor, course *models.Course) {
	log := models.NewAuditLog(action, "course").
		WithActor(actor.Email, actor.Role).
		WithResource(strconv.FormatInt(course.ID, 10)).
		WithDetails(map[string]interface{}{
			"course_code": course.CourseCode,
			"name":        course.Name,
		})
	s.Record(ctx, log)
}

// LogSpecialisationChange records a specialisation create, update or delete
func (s *AuditService) LogSpecialisationChange(ctx context.Context, action models.AuditAction, actor Actor, spec *models.Specialisation) {
	log := models.NewAuditLog(action, "specialisation").
		WithActor(actor.Email, actor.Role).
		WithResource(strconv.FormatInt(spec.ID, 10)).
		WithDetails(map[string]interface{}{"code": spec.Code})
	s.Record(ctx, log)
}

// LogSpecialisationLink records a course being attached to or detached from a specialisation
func (s *AuditService) LogSpecialisationLink(ctx context.Context, action models.AuditAction, actor Actor, specialisationID, courseID int64) {
	log := models.NewAuditLog(action, "specialisation").
		WithActor(actor.Email, actor.Role).
		WithResource(strconv.FormatInt(specialisationID, 10)).
		WithDetails(map[string]interface{}{"course_id": courseID})
	s.Record(ctx, log)
}
