package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/clinic-records/internal/email"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/pkg/logger"
)

// Service mails the front desk about events staff act on: a bill settled
// in full and an appointment cancelled. Other events are ignored.
type Service struct {
	emailSvc  email.Service
	frontDesk string
	logger    *logger.Logger
}

func NewService(emailSvc email.Service, frontDesk string, logger *logger.Logger) *Service {
	return &Service{
		emailSvc:  emailSvc,
		frontDesk: frontDesk,
		logger:    logger,
	}
}

func (s *Service) Notify(ctx context.Context, event *model.OutboxEvent) error {
	subject, body, ok, err := compose(event)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := s.emailSvc.SendCustom(ctx, s.frontDesk, subject, body); err != nil {
		return err
	}
	s.logger.Debug("notification sent", "event_id", event.ID.String(), "event_type", event.EventType)
	return nil
}

func compose(event *model.OutboxEvent) (subject, body string, ok bool, err error) {
	switch event.EventType {
	case model.EventBillingPaymentCompleted:
		var p model.BillingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", false, fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
		}
		subject = fmt.Sprintf("Bill paid in full: %s", p.Service)
		body = fmt.Sprintf("Billing record %s for patient %s (%s) is now paid in full.\nTotal paid: $%s\n",
			p.BillingID, p.PatientID, p.Service, p.PaidAmount)
		return subject, body, true, nil

	case model.EventAppointmentStatusChanged:
		var p model.AppointmentEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", false, fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
		}
		if p.Status != model.AppointmentStatusCancelled {
			return "", "", false, nil
		}
		subject = fmt.Sprintf("Appointment cancelled: %s on %s", p.PatientName, p.Date)
		body = fmt.Sprintf("The appointment for %s on %s at %s was cancelled.\nThe slot is free to rebook.\n",
			p.PatientName, p.Date, p.Time)
		return subject, body, true, nil
	}
	return "", "", false, nil
}
