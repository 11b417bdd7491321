package model

import (
	"github.com/google/uuid"
)

// PaymentStatus is the display state of a billing record.
type PaymentStatus string

const (
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
)

// BillingRecord is one billable service rendered to a patient.
//
// PaidAmount + UnpaidAmount always equals Cost and Paid is true exactly when
// UnpaidAmount is zero. Only the billing ledger produces new values.
type BillingRecord struct {
	Base
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	Service       string    `db:"service" json:"service"`
	Date          string    `db:"date" json:"date"`
	Cost          Amount    `db:"cost" json:"cost"`
	Paid          bool      `db:"paid" json:"paid"`
	PaidAmount    Amount    `db:"paid_amount" json:"paid_amount"`
	UnpaidAmount  Amount    `db:"unpaid_amount" json:"unpaid_amount"`
	PaymentMethod *string   `db:"payment_method" json:"payment_method"`
	Notes         *string   `db:"notes" json:"notes"`
}

// PaymentStatus derives the display state from the balance fields.
func (r *BillingRecord) PaymentStatus() PaymentStatus {
	switch {
	case r.Paid:
		return PaymentStatusPaid
	case r.PaidAmount.IsPositive():
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusUnpaid
	}
}

// CreateBillingRequest is the POST /patients/:id/billing body.
type CreateBillingRequest struct {
	Service       string  `json:"service" binding:"required,max=100"`
	Date          string  `json:"date" binding:"required,calendar_date"`
	Cost          *Amount `json:"cost" binding:"required"`
	Paid          bool    `json:"paid"`
	PaidAmount    *Amount `json:"paid_amount"`
	UnpaidAmount  *Amount `json:"unpaid_amount" binding:"required"`
	PaymentMethod *string `json:"payment_method" binding:"omitempty,max=50"`
	Notes         *string `json:"notes"`
}

// UpdateBillingRequest is the PUT /billing/:id body. It states the whole
// balance; the ledger checks it is consistent with the stored cost.
type UpdateBillingRequest struct {
	Paid          *bool   `json:"paid" binding:"required"`
	PaidAmount    *Amount `json:"paid_amount" binding:"required"`
	UnpaidAmount  *Amount `json:"unpaid_amount" binding:"required"`
	PaymentMethod *string `json:"payment_method" binding:"omitempty,max=50"`
	Notes         *string `json:"notes"`
}

// PaymentRequest is the POST /billing/:id/payments body. Amount is kept raw
// so that unparseable input reaches the ledger and is reported as an
// invalid amount instead of a decoding failure.
type PaymentRequest struct {
	Amount        RawAmount `json:"amount"`
	PaymentMethod *string   `json:"payment_method" binding:"omitempty,max=50"`
}

// SettleRequest is the optional body of mark-paid / mark-unpaid.
type SettleRequest struct {
	PaymentMethod *string `json:"payment_method" binding:"omitempty,max=50"`
}

// BillingSummary totals a patient's billing records.
type BillingSummary struct {
	PatientID    uuid.UUID `json:"patient_id"`
	Records      int       `json:"records"`
	TotalBilled  Amount    `json:"total_billed"`
	TotalPaid    Amount    `json:"total_paid"`
	TotalUnpaid  Amount    `json:"total_unpaid"`
	PaidCount    int       `json:"paid_count"`
	PartialCount int       `json:"partially_paid_count"`
	UnpaidCount  int       `json:"unpaid_count"`
}

// PaymentResult is returned after a partial payment. Completed is true when
// the payment settled the remaining balance.
type PaymentResult struct {
	Record    *BillingRecord `json:"record"`
	Amount    Amount         `json:"amount"`
	Completed bool           `json:"completed"`
}
