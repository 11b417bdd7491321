package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusRetry      OutboxStatus = "retry"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Outbox event types
const (
	EventBillingCreated           = "BILLING_CREATED"
	EventBillingPaymentRecorded   = "BILLING_PAYMENT_RECORDED"
	EventBillingPaymentCompleted  = "BILLING_PAYMENT_COMPLETED"
	EventBillingUpdated           = "BILLING_UPDATED"
	EventBillingDeleted           = "BILLING_DELETED"
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// BillingEventPayload is carried by BILLING_* events.
type BillingEventPayload struct {
	BillingID    uuid.UUID `json:"billing_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Service      string    `json:"service"`
	Amount       *Amount   `json:"amount,omitempty"`
	PaidAmount   Amount    `json:"paid_amount"`
	UnpaidAmount Amount    `json:"unpaid_amount"`
	Paid         bool      `json:"paid"`
}

// AppointmentEventPayload is carried by APPOINTMENT_* events.
type AppointmentEventPayload struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientName   string            `json:"patient_name"`
	Date          string            `json:"date"`
	Time          string            `json:"time"`
	From          AppointmentStatus `json:"from,omitempty"`
	Status        AppointmentStatus `json:"status"`
}
