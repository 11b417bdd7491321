package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the id.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a conditional update finds the row
	// at a different version than the caller read.
	ErrVersionConflict = errors.New("record was modified concurrently")
	// ErrDuplicateEmail is returned when a staff account with the email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)

// All repository interfaces in one file. Mutating methods take the outbox
// event describing the change and store it atomically with it.
type (
	BillingRepository interface {
		Create(ctx context.Context, record *model.BillingRecord, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.BillingRecord, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.BillingRecord, error)
		// Update writes the balance fields of record if the stored version is
		// still expectedVersion, and bumps record.Version.
		Update(ctx context.Context, record *model.BillingRecord, expectedVersion int64, event *model.OutboxEvent) error
		Delete(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error
		PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment, event *model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// UpdateStatus follows the same versioning contract as BillingRepository.Update.
		UpdateStatus(ctx context.Context, appointment *model.Appointment, expectedVersion int64, event *model.OutboxEvent) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending moves up to limit due events to processing and returns
		// them. Events left in processing since before staleBefore are due again.
		ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
