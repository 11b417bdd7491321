package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

const billingColumns = `
	id, patient_id, service, to_char(date, 'YYYY-MM-DD') AS date,
	cost, paid, paid_amount, unpaid_amount, payment_method, notes,
	version, created_at, updated_at`

func (r *billingRepository) Create(ctx context.Context, record *model.BillingRecord, event *model.OutboxEvent) error {
	query := `
		INSERT INTO billing (
			id, patient_id, service, date, cost, paid, paid_amount,
			unpaid_amount, payment_method, notes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			record.ID,
			record.PatientID,
			record.Service,
			record.Date,
			record.Cost,
			record.Paid,
			record.PaidAmount,
			record.UnpaidAmount,
			record.PaymentMethod,
			record.Notes,
			record.Version,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create billing record: %w", err)
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *billingRepository) Get(ctx context.Context, id uuid.UUID) (*model.BillingRecord, error) {
	query := `SELECT ` + billingColumns + ` FROM billing WHERE id = $1`

	var record model.BillingRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get billing record: %w", err)
	}
	return &record, nil
}

func (r *billingRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.BillingRecord, error) {
	query := `SELECT ` + billingColumns + `
		FROM billing
		WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC
	`
	records := []*model.BillingRecord{}
	if err := r.db.SelectContext(ctx, &records, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	return records, nil
}

func (r *billingRepository) Update(ctx context.Context, record *model.BillingRecord, expectedVersion int64, event *model.OutboxEvent) error {
	query := `
		UPDATE billing
		SET paid = $1, paid_amount = $2, unpaid_amount = $3,
			payment_method = $4, notes = $5,
			version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8
		RETURNING version
	`
	updatedAt := time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var version int64
		err := tx.GetContext(ctx, &version, query,
			record.Paid,
			record.PaidAmount,
			record.UnpaidAmount,
			record.PaymentMethod,
			record.Notes,
			updatedAt,
			record.ID,
			expectedVersion,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return versionMiss(ctx, tx, "billing", record.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update billing record: %w", err)
		}
		if err := insertOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
		record.Version = version
		record.UpdatedAt = updatedAt
		return nil
	})
}

func (r *billingRepository) Delete(ctx context.Context, id uuid.UUID, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM billing WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete billing record: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *billingRepository) PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`, patientID)
	if err != nil {
		return false, fmt.Errorf("failed to check patient existence: %w", err)
	}
	return exists, nil
}
