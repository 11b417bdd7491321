package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/service/event"
	"github.com/jwalitptl/clinic-records/pkg/logger"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendCustom(ctx context.Context, to, subject, content string) error {
	return m.Called(ctx, to, subject, content).Error(0)
}

func TestNotifyPaymentCompleted(t *testing.T) {
	rec := &model.BillingRecord{
		Base:       model.Base{ID: uuid.New()},
		PatientID:  uuid.New(),
		Service:    "Vaccination",
		Cost:       model.MustAmount("150"),
		PaidAmount: model.MustAmount("150"),
		Paid:       true,
	}
	evt, err := event.Billing(model.EventBillingPaymentCompleted, rec, nil)
	require.NoError(t, err)

	mailer := &mockEmail{}
	mailer.On("SendCustom", mock.Anything, "desk@clinic.local", "Bill paid in full: Vaccination",
		mock.MatchedBy(func(body string) bool {
			return assert.Contains(t, body, "$150.00") && assert.Contains(t, body, rec.ID.String())
		})).Return(nil).Once()

	svc := NewService(mailer, "desk@clinic.local", logger.Nop())
	require.NoError(t, svc.Notify(context.Background(), evt))
	mailer.AssertExpectations(t)
}

func TestNotifyCancelledOnly(t *testing.T) {
	apt := &model.Appointment{
		Base:        model.Base{ID: uuid.New()},
		PatientName: "Maya",
		Date:        "2024-05-10",
		Time:        "09:30",
		Status:      model.AppointmentStatusCompleted,
	}
	completed, err := event.Appointment(model.EventAppointmentStatusChanged, apt, model.AppointmentStatusScheduled)
	require.NoError(t, err)

	mailer := &mockEmail{}
	svc := NewService(mailer, "desk@clinic.local", logger.Nop())
	require.NoError(t, svc.Notify(context.Background(), completed))
	mailer.AssertNotCalled(t, "SendCustom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	apt.Status = model.AppointmentStatusCancelled
	cancelled, err := event.Appointment(model.EventAppointmentStatusChanged, apt, model.AppointmentStatusScheduled)
	require.NoError(t, err)
	mailer.On("SendCustom", mock.Anything, "desk@clinic.local", "Appointment cancelled: Maya on 2024-05-10", mock.Anything).
		Return(errors.New("relay refused")).Once()

	err = svc.Notify(context.Background(), cancelled)
	assert.EqualError(t, err, "relay refused")
}

func TestNotifyIgnoresOtherEvents(t *testing.T) {
	evt, err := event.New(model.EventBillingCreated, map[string]string{})
	require.NoError(t, err)

	mailer := &mockEmail{}
	svc := NewService(mailer, "desk@clinic.local", logger.Nop())
	assert.NoError(t, svc.Notify(context.Background(), evt))
	mailer.AssertNotCalled(t, "SendCustom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
