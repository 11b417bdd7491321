package billing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/clinic-records/internal/model"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// Largest value a DECIMAL(10,2) column holds.
var maxCost = decimal.RequireFromString("99999999.99")

// Invalid amount reasons, in the order they are checked.
const (
	ReasonNotANumber     = "please enter a valid payment amount"
	ReasonNotPositive    = "payment amount must be greater than 0"
	ReasonExceedsBalance = "payment cannot exceed the remaining balance"
)

// InvalidAmountError rejects a partial payment. Max is the largest payment
// the record would have accepted.
type InvalidAmountError struct {
	Reason string
	Max    decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount: %s (max %s)", e.Reason, e.Max.StringFixed(2))
}

func (e *InvalidAmountError) AppError() *apperrors.AppError {
	msg := e.Reason
	if e.Reason == ReasonExceedsBalance {
		msg = fmt.Sprintf("payment cannot exceed $%s", e.Max.StringFixed(2))
	}
	return apperrors.InvalidAmount(msg, e.Max.StringFixed(2))
}

type decisionKind int

const (
	decisionFullyPaid decisionKind = iota + 1
	decisionFullyUnpaid
	decisionPartial
)

// Decision is the payment state a record starts in.
type Decision struct {
	kind   decisionKind
	unpaid decimal.Decimal
}

func FullyPaid() Decision   { return Decision{kind: decisionFullyPaid} }
func FullyUnpaid() Decision { return Decision{kind: decisionFullyUnpaid} }

// Partial starts a record with unpaid still owed; the rest of the cost
// counts as paid.
func Partial(unpaid decimal.Decimal) Decision {
	return Decision{kind: decisionPartial, unpaid: unpaid}
}

// Create builds a new billing record. Nothing is rounded: input with
// fractions of a cent is rejected.
func Create(patientID uuid.UUID, service, date string, cost decimal.Decimal, decision Decision) (*model.BillingRecord, error) {
	var invalid []string
	if patientID == uuid.Nil {
		invalid = append(invalid, "patient_id")
	}
	if strings.TrimSpace(service) == "" {
		invalid = append(invalid, "service")
	}
	if !model.IsCalendarDate(date) {
		invalid = append(invalid, "date")
	}
	if !cost.IsPositive() || !isCents(cost) || cost.GreaterThan(maxCost) {
		invalid = append(invalid, "cost")
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation("invalid billing record", invalid...)
	}

	rec := &model.BillingRecord{
		Base: model.Base{
			ID:      uuid.New(),
			Version: 1,
		},
		PatientID: patientID,
		Service:   strings.TrimSpace(service),
		Date:      date,
		Cost:      model.NewAmount(cost),
	}

	switch decision.kind {
	case decisionFullyPaid:
		setPaid(rec, cost)
	case decisionFullyUnpaid:
		setPaid(rec, decimal.Zero)
	case decisionPartial:
		u := decision.unpaid
		if !u.IsPositive() || u.GreaterThan(cost) || !isCents(u) {
			return nil, apperrors.Validation("unpaid amount must be greater than 0 and no more than the cost", "unpaid_amount")
		}
		setPaid(rec, cost.Sub(u))
	default:
		return nil, apperrors.Validation("payment state is required", "paid")
	}
	return rec, nil
}

// MarkFullyPaid settles the whole cost.
func MarkFullyPaid(rec *model.BillingRecord) *model.BillingRecord {
	next := *rec
	setPaid(&next, rec.Cost.Decimal)
	return &next
}

// MarkFullyUnpaid resets the record to owing its whole cost.
func MarkFullyUnpaid(rec *model.BillingRecord) *model.BillingRecord {
	next := *rec
	setPaid(&next, decimal.Zero)
	return &next
}

// Remaining is what is still owed on rec.
func Remaining(rec *model.BillingRecord) decimal.Decimal {
	return rec.Cost.Sub(rec.PaidAmount.Decimal)
}

// RecordPartialPayment applies a payment typed by a user. The input record
// is left untouched; the updated copy is returned.
func RecordPartialPayment(rec *model.BillingRecord, paymentNow string) (*model.PaymentResult, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(paymentNow))
	if err != nil || !isCents(amount) {
		return nil, &InvalidAmountError{Reason: ReasonNotANumber, Max: Remaining(rec)}
	}
	return RecordPartialPaymentAmount(rec, amount)
}

// RecordPartialPaymentAmount applies an already parsed payment.
func RecordPartialPaymentAmount(rec *model.BillingRecord, amount decimal.Decimal) (*model.PaymentResult, error) {
	remaining := Remaining(rec)
	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Reason: ReasonNotPositive, Max: remaining}
	}
	if amount.GreaterThan(remaining) {
		return nil, &InvalidAmountError{Reason: ReasonExceedsBalance, Max: remaining}
	}

	next := *rec
	setPaid(&next, rec.PaidAmount.Add(amount))
	return &model.PaymentResult{
		Record:    &next,
		Amount:    model.NewAmount(amount),
		Completed: next.Paid,
	}, nil
}

// Reconcile applies an absolute balance statement to rec. The statement
// must be internally consistent with the stored cost; it is never adjusted
// to fit.
func Reconcile(rec *model.BillingRecord, paid bool, paidAmount, unpaidAmount decimal.Decimal) (*model.BillingRecord, error) {
	var invalid []string
	if paidAmount.IsNegative() || !isCents(paidAmount) {
		invalid = append(invalid, "paid_amount")
	}
	if unpaidAmount.IsNegative() || !isCents(unpaidAmount) {
		invalid = append(invalid, "unpaid_amount")
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation("amounts must be non-negative values in cents", invalid...)
	}
	if !paidAmount.Add(unpaidAmount).Equal(rec.Cost.Decimal) {
		return nil, apperrors.Validation(
			fmt.Sprintf("paid_amount and unpaid_amount must add up to the cost of %s", rec.Cost.String()),
			"paid_amount", "unpaid_amount")
	}
	if paid != unpaidAmount.IsZero() {
		return nil, apperrors.Validation("paid must be true exactly when nothing is left unpaid", "paid")
	}

	next := *rec
	setPaid(&next, paidAmount)
	return &next, nil
}

// Summarize totals records for one patient.
func Summarize(patientID uuid.UUID, records []*model.BillingRecord) *model.BillingSummary {
	billed, paid, unpaid := decimal.Zero, decimal.Zero, decimal.Zero
	s := &model.BillingSummary{PatientID: patientID, Records: len(records)}
	for _, r := range records {
		billed = billed.Add(r.Cost.Decimal)
		paid = paid.Add(r.PaidAmount.Decimal)
		unpaid = unpaid.Add(r.UnpaidAmount.Decimal)
		switch r.PaymentStatus() {
		case model.PaymentStatusPaid:
			s.PaidCount++
		case model.PaymentStatusPartiallyPaid:
			s.PartialCount++
		default:
			s.UnpaidCount++
		}
	}
	s.TotalBilled = model.NewAmount(billed)
	s.TotalPaid = model.NewAmount(paid)
	s.TotalUnpaid = model.NewAmount(unpaid)
	return s
}

// setPaid is the only place balance fields are written.
func setPaid(rec *model.BillingRecord, paid decimal.Decimal) {
	unpaid := rec.Cost.Sub(paid)
	rec.PaidAmount = model.NewAmount(paid)
	rec.UnpaidAmount = model.NewAmount(unpaid)
	rec.Paid = !unpaid.IsPositive()
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
