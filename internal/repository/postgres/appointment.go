package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

const appointmentColumns = `
	id, patient_name, to_char(date, 'YYYY-MM-DD') AS date, time, type,
	reason, notes, status, version, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment, event *model.OutboxEvent) error {
	query := `
		INSERT INTO appointments (
			id, patient_name, date, time, type, reason, notes,
			status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	now := time.Now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			appointment.ID,
			appointment.PatientName,
			appointment.Date,
			appointment.Time,
			appointment.Type,
			appointment.Reason,
			appointment.Notes,
			string(appointment.Status),
			appointment.Version,
			appointment.CreatedAt,
			appointment.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filters != nil {
		if filters.Status != "" {
			args = append(args, string(filters.Status))
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
		}
		if filters.Date != "" {
			args = append(args, filters.Date)
			conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)))
		}
		if filters.Search != "" {
			args = append(args, "%"+escapeLike(filters.Search)+"%")
			conditions = append(conditions, fmt.Sprintf("(patient_name ILIKE $%d OR reason ILIKE $%d)", len(args), len(args)))
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date, time"
	if filters != nil && filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, appointment *model.Appointment, expectedVersion int64, event *model.OutboxEvent) error {
	query := `
		UPDATE appointments
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING version
	`
	updatedAt := time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var version int64
		err := tx.GetContext(ctx, &version, query,
			string(appointment.Status),
			updatedAt,
			appointment.ID,
			expectedVersion,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return versionMiss(ctx, tx, "appointments", appointment.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update appointment status: %w", err)
		}
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
		appointment.Version = version
		appointment.UpdatedAt = updatedAt
		return nil
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
