package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

const (
	patientColumns = `
		id, full_name, to_char(date_of_birth, 'YYYY-MM-DD') AS date_of_birth,
		gender, parent_name, phone, created_at, updated_at`
	defaultPatientLimit = 100
)

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, full_name, date_of_birth, gender, parent_name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.FullName,
		patient.DateOfBirth,
		patient.Gender,
		patient.ParentName,
		patient.Phone,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	limit := defaultPatientLimit
	var args []interface{}
	query := `SELECT ` + patientColumns + ` FROM patients`
	if filters != nil {
		if filters.Search != "" {
			args = append(args, "%"+escapeLike(filters.Search)+"%")
			query += ` WHERE full_name ILIKE $1 OR parent_name ILIKE $1`
		}
		if filters.Limit > 0 && filters.Limit < limit {
			limit = filters.Limit
		}
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY full_name LIMIT $%d`, len(args))

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
