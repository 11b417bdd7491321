package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/logger"
)

const maxListLimit = 100

type Service struct {
	repo   repository.PatientRepository
	logger *logger.Logger
}

func NewService(repo repository.PatientRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	if err := validatePatient(req); err != nil {
		return nil, err
	}

	patient := &model.Patient{
		ID:          uuid.New(),
		FullName:    strings.TrimSpace(req.FullName),
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		ParentName:  req.ParentName,
		Phone:       req.Phone,
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.logger.WithContext(ctx).Info("patient registered", "patient_id", patient.ID.String())
	return patient, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

// ListPatients searches full and parent names. Limit defaults to and is
// capped at maxListLimit.
func (s *Service) ListPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	if filters.Limit < 0 {
		return nil, apperrors.Validation("limit must not be negative", "limit")
	}
	f := *filters
	if f.Limit == 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	patients, err := s.repo.List(ctx, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func validatePatient(req *model.CreatePatientRequest) error {
	var invalid []string
	if strings.TrimSpace(req.FullName) == "" {
		invalid = append(invalid, "full_name")
	}
	if !model.IsCalendarDate(req.DateOfBirth) {
		invalid = append(invalid, "date_of_birth")
	}
	if len(invalid) > 0 {
		return apperrors.Validation("invalid patient", invalid...)
	}
	return nil
}
