package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
)

// New builds a pending outbox event. Repositories store it in the same
// transaction as the change it describes.
func New(eventType string, payload interface{}) (*model.OutboxEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	now := time.Now().UTC()
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Billing builds a BILLING_* event for rec. amount is set for payments.
func Billing(eventType string, rec *model.BillingRecord, amount *model.Amount) (*model.OutboxEvent, error) {
	return New(eventType, model.BillingEventPayload{
		BillingID:    rec.ID,
		PatientID:    rec.PatientID,
		Service:      rec.Service,
		Amount:       amount,
		PaidAmount:   rec.PaidAmount,
		UnpaidAmount: rec.UnpaidAmount,
		Paid:         rec.Paid,
	})
}

// Appointment builds an APPOINTMENT_* event. from is empty on creation.
func Appointment(eventType string, apt *model.Appointment, from model.AppointmentStatus) (*model.OutboxEvent, error) {
	return New(eventType, model.AppointmentEventPayload{
		AppointmentID: apt.ID,
		PatientName:   apt.PatientName,
		Date:          apt.Date,
		Time:          apt.Time,
		From:          from,
		Status:        apt.Status,
	})
}
