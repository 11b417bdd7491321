package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/internal/service/event"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type Service struct {
	repo    repository.BillingRepository
	locker  Locker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(repo repository.BillingRepository, locker Locker, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateRecord bills a patient. The request's paid flag and unpaid amount
// choose the starting payment state.
func (s *Service) CreateRecord(ctx context.Context, patientID uuid.UUID, req *model.CreateBillingRequest) (*model.BillingRecord, error) {
	if req.Cost == nil || req.UnpaidAmount == nil {
		return nil, apperrors.Validation("cost and unpaid_amount are required", "cost", "unpaid_amount")
	}

	decision, err := decisionFor(req)
	if err != nil {
		return nil, err
	}

	rec, err := Create(patientID, req.Service, req.Date, req.Cost.Decimal, decision)
	if err != nil {
		return nil, err
	}
	if req.PaidAmount != nil && !req.PaidAmount.Equal(rec.PaidAmount.Decimal) {
		return nil, apperrors.Validation(
			fmt.Sprintf("paid_amount must be %s for this cost and unpaid_amount", rec.PaidAmount),
			"paid_amount")
	}

	exists, err := s.repo.PatientExists(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to check patient: %w", err)
	}
	if !exists {
		return nil, apperrors.NotFound("patient", nil)
	}
	rec.PaymentMethod = req.PaymentMethod
	rec.Notes = req.Notes

	evt, err := event.Billing(model.EventBillingCreated, rec, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec, evt); err != nil {
		return nil, fmt.Errorf("failed to create billing record: %w", err)
	}

	s.logger.WithContext(ctx).Info("billing record created",
		"billing_id", rec.ID.String(),
		"patient_id", patientID.String(),
		"status", string(rec.PaymentStatus()))
	return rec, nil
}

func decisionFor(req *model.CreateBillingRequest) (Decision, error) {
	unpaid := req.UnpaidAmount.Decimal
	switch {
	case req.Paid && unpaid.IsZero():
		return FullyPaid(), nil
	case req.Paid:
		return Decision{}, apperrors.Validation("a paid record cannot have an unpaid amount", "paid", "unpaid_amount")
	case unpaid.Equal(req.Cost.Decimal):
		return FullyUnpaid(), nil
	default:
		return Partial(unpaid), nil
	}
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*model.BillingRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "failed to get billing record")
	}
	return rec, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.BillingRecord, error) {
	records, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing records: %w", err)
	}
	return records, nil
}

func (s *Service) Summary(ctx context.Context, patientID uuid.UUID) (*model.BillingSummary, error) {
	records, err := s.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return Summarize(patientID, records), nil
}

// RecordPayment applies a partial payment typed by staff.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, req *model.PaymentRequest) (*model.PaymentResult, error) {
	var result *model.PaymentResult
	err := s.mutate(ctx, id, "partial", func(rec *model.BillingRecord) (*model.BillingRecord, *model.OutboxEvent, error) {
		res, err := RecordPartialPayment(rec, string(req.Amount))
		if err != nil {
			return nil, nil, err
		}
		if req.PaymentMethod != nil {
			res.Record.PaymentMethod = req.PaymentMethod
		}
		eventType := model.EventBillingPaymentRecorded
		if res.Completed {
			eventType = model.EventBillingPaymentCompleted
		}
		evt, err := event.Billing(eventType, res.Record, &res.Amount)
		result = res
		return res.Record, evt, err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BillingAmountCollected.Add(result.Amount.InexactFloat64())
	s.logger.WithContext(ctx).Info("partial payment recorded",
		"billing_id", id.String(),
		"completed", result.Completed)
	return result, nil
}

// MarkPaid settles the full cost.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, req *model.SettleRequest) (*model.BillingRecord, error) {
	var collected decimal.Decimal
	rec, err := s.settle(ctx, id, "mark_paid", func(rec *model.BillingRecord) *model.BillingRecord {
		collected = Remaining(rec)
		next := MarkFullyPaid(rec)
		if req != nil && req.PaymentMethod != nil {
			next.PaymentMethod = req.PaymentMethod
		}
		return next
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BillingAmountCollected.Add(collected.InexactFloat64())
	return rec, nil
}

// MarkUnpaid reverses every payment on the record.
func (s *Service) MarkUnpaid(ctx context.Context, id uuid.UUID) (*model.BillingRecord, error) {
	return s.settle(ctx, id, "mark_unpaid", MarkFullyUnpaid)
}

func (s *Service) settle(ctx context.Context, id uuid.UUID, kind string, apply func(*model.BillingRecord) *model.BillingRecord) (*model.BillingRecord, error) {
	var updated *model.BillingRecord
	err := s.mutate(ctx, id, kind, func(rec *model.BillingRecord) (*model.BillingRecord, *model.OutboxEvent, error) {
		next := apply(rec)
		eventType := model.EventBillingUpdated
		if next.Paid && !rec.Paid {
			eventType = model.EventBillingPaymentCompleted
		}
		evt, err := event.Billing(eventType, next, nil)
		updated = next
		return next, evt, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Info("billing record settled", "billing_id", id.String(), "kind", kind)
	return updated, nil
}

// UpdateRecord applies an absolute balance statement (PUT /billing/:id).
func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, req *model.UpdateBillingRequest) (*model.BillingRecord, error) {
	if req.Paid == nil || req.PaidAmount == nil || req.UnpaidAmount == nil {
		return nil, apperrors.Validation("paid, paid_amount and unpaid_amount are required", "paid", "paid_amount", "unpaid_amount")
	}

	var updated *model.BillingRecord
	err := s.mutate(ctx, id, "reconcile", func(rec *model.BillingRecord) (*model.BillingRecord, *model.OutboxEvent, error) {
		next, err := Reconcile(rec, *req.Paid, req.PaidAmount.Decimal, req.UnpaidAmount.Decimal)
		if err != nil {
			return nil, nil, err
		}
		next.PaymentMethod = req.PaymentMethod
		next.Notes = req.Notes

		eventType := model.EventBillingUpdated
		if next.Paid && !rec.Paid {
			eventType = model.EventBillingPaymentCompleted
		}
		evt, err := event.Billing(eventType, next, nil)
		updated = next
		return next, evt, err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapRepoErr(err, "failed to get billing record")
	}
	evt, err := event.Billing(model.EventBillingDeleted, rec, nil)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, evt); err != nil {
		return mapRepoErr(err, "failed to delete billing record")
	}
	s.logger.WithContext(ctx).Info("billing record deleted", "billing_id", id.String())
	return nil
}

type mutation func(rec *model.BillingRecord) (*model.BillingRecord, *model.OutboxEvent, error)

// mutate runs read, ledger step and conditional write under the record
// lock. A write against a stale version is a conflict and is not retried:
// the caller decided on numbers it saw, so it has to look again.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, kind string, fn mutation) error {
	release, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			s.observe(kind, "conflict")
			return apperrors.Conflict("billing record is being updated, try again", err)
		}
		return fmt.Errorf("failed to lock billing record: %w", err)
	}
	defer release()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapRepoErr(err, "failed to get billing record")
	}

	next, evt, err := fn(rec)
	if err != nil {
		s.observe(kind, "rejected")
		return err
	}

	if err := s.repo.Update(ctx, next, rec.Version, evt); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.observe(kind, "conflict")
		}
		return mapRepoErr(err, "failed to update billing record")
	}
	s.observe(kind, "ok")
	return nil
}

func (s *Service) observe(kind, outcome string) {
	s.metrics.BillingPayments.WithLabelValues(kind, outcome).Inc()
	if outcome == "conflict" {
		s.metrics.BillingConflicts.Inc()
	}
}

func mapRepoErr(err error, msg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("billing record", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.Conflict("billing record was modified by another request, reload and try again", err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
