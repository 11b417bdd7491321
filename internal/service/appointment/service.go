package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

// TodayLimit caps the dashboard's list of today's appointments.
const TodayLimit = 3

type Service struct {
	repo    repository.AppointmentRepository
	policy  TransitionPolicy
	today   *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Config struct {
	Policy        TransitionPolicy
	TodayCacheTTL time.Duration
}

func NewService(repo repository.AppointmentRepository, cfg Config, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	if cfg.TodayCacheTTL <= 0 {
		cfg.TodayCacheTTL = 30 * time.Second
	}
	return &Service{
		repo:    repo,
		policy:  cfg.Policy,
		today:   cache.New(cfg.TodayCacheTTL, 2*cfg.TodayCacheTTL),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Policy returns the transition policy in force.
func (s *Service) Policy() TransitionPolicy {
	return s.policy
}

func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	apt, err := NewAppointment(*req)
	if err != nil {
		return nil, err
	}

	evt, err := event.Appointment(model.EventAppointmentCreated, apt, "")
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, apt, evt); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	s.today.Flush()

	s.logger.WithContext(ctx).Info("appointment created",
		"appointment_id", apt.ID.String(),
		"date", apt.Date)
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "failed to get appointment")
	}
	return apt, nil
}

func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters != nil && filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.Validation("unknown status filter", "status")
	}
	if filters != nil && filters.Date != "" && !model.IsCalendarDate(filters.Date) {
		return nil, apperrors.Validation("date filter must be YYYY-MM-DD", "date")
	}
	appointments, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// Today returns up to TodayLimit scheduled appointments for the current
// UTC day, served from a short lived cache.
func (s *Service) Today(ctx context.Context) ([]*model.Appointment, error) {
	date := s.now().UTC().Format(model.DateLayout)
	if cached, ok := s.today.Get(date); ok {
		s.metrics.TodayCacheLookups.WithLabelValues("hit").Inc()
		return cached.([]*model.Appointment), nil
	}
	s.metrics.TodayCacheLookups.WithLabelValues("miss").Inc()

	appointments, err := s.repo.List(ctx, &model.AppointmentFilters{
		Status: model.AppointmentStatusScheduled,
		Date:   date,
		Limit:  TodayLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list today's appointments: %w", err)
	}
	s.today.SetDefault(date, appointments)
	return appointments, nil
}

// UpdateStatus moves an appointment to status under the configured policy.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*model.Appointment, error) {
	to := model.AppointmentStatus(status)
	if !to.Valid() {
		s.metrics.AppointmentTransitions.WithLabelValues("unknown", "invalid", "rejected").Inc()
		return nil, invalidStatus()
	}

	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "failed to get appointment")
	}

	next, err := Transition(apt, to, s.policy)
	if err != nil {
		s.metrics.AppointmentTransitions.WithLabelValues(string(apt.Status), status, "rejected").Inc()
		return nil, err
	}

	evt, err := event.Appointment(model.EventAppointmentStatusChanged, next, apt.Status)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, next, apt.Version, evt); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.AppointmentTransitions.WithLabelValues(string(apt.Status), status, "conflict").Inc()
		}
		return nil, mapRepoErr(err, "failed to update appointment status")
	}
	s.today.Flush()
	s.metrics.AppointmentTransitions.WithLabelValues(string(apt.Status), status, "ok").Inc()

	s.logger.WithContext(ctx).Info("appointment status changed",
		"appointment_id", id.String(),
		"from", string(apt.Status),
		"to", status)
	return next, nil
}

func mapRepoErr(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("appointment", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.Conflict("appointment was modified by another request, reload and try again", err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
