package appointment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// TransitionPolicy selects which status changes are accepted.
type TransitionPolicy string

const (
	// PolicyStrict only lets a scheduled appointment be completed or cancelled.
	PolicyStrict TransitionPolicy = "strict"
	// PolicyPermissive accepts any known status from any state.
	PolicyPermissive TransitionPolicy = "permissive"
)

// ParsePolicy reads a policy name from configuration. Empty means strict.
func ParsePolicy(s string) (TransitionPolicy, error) {
	switch TransitionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	default:
		return "", fmt.Errorf("unknown transition policy %q", s)
	}
}

// Column limits of the appointments table.
const (
	maxPatientName = 100
	maxTime        = 10
	maxType        = 50
	maxReason      = 255
)

// InvalidTransitionError is returned when the policy rejects a status change.
type InvalidTransitionError struct {
	From model.AppointmentStatus
	To   model.AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid appointment transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) AppError() *apperrors.AppError {
	return apperrors.InvalidTransition(string(e.From), string(e.To))
}

// NewAppointment validates req and returns a scheduled appointment. Every
// missing or malformed field is reported in one error.
func NewAppointment(req model.CreateAppointmentRequest) (*model.Appointment, error) {
	name := strings.TrimSpace(req.PatientName)
	tm := strings.TrimSpace(req.Time)
	typ := strings.TrimSpace(req.Type)

	var invalid []string
	if name == "" || len(name) > maxPatientName {
		invalid = append(invalid, "patient_name")
	}
	if !model.IsCalendarDate(req.Date) {
		invalid = append(invalid, "date")
	}
	if tm == "" || len(tm) > maxTime {
		invalid = append(invalid, "time")
	}
	if typ == "" || len(typ) > maxType {
		invalid = append(invalid, "type")
	}
	if req.Reason != nil && len(*req.Reason) > maxReason {
		invalid = append(invalid, "reason")
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation("missing or invalid appointment fields", invalid...)
	}

	return &model.Appointment{
		Base: model.Base{
			ID:      uuid.New(),
			Version: 1,
		},
		PatientName: name,
		Date:        req.Date,
		Time:        tm,
		Type:        typ,
		Reason:      req.Reason,
		Notes:       req.Notes,
		Status:      model.AppointmentStatusScheduled,
	}, nil
}

// CanTransition reports whether policy allows from -> to.
func CanTransition(from, to model.AppointmentStatus, policy TransitionPolicy) bool {
	if !to.Valid() {
		return false
	}
	if policy == PolicyPermissive {
		return true
	}
	return from == model.AppointmentStatusScheduled && to.Terminal()
}

// Transition returns a copy of apt in status to. Only the status changes.
func Transition(apt *model.Appointment, to model.AppointmentStatus, policy TransitionPolicy) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, invalidStatus()
	}
	if !CanTransition(apt.Status, to, policy) {
		return nil, &InvalidTransitionError{From: apt.Status, To: to}
	}

	next := *apt
	next.Status = to
	return &next, nil
}

func invalidStatus() error {
	return apperrors.Validation(
		fmt.Sprintf("status must be one of %s, %s, %s",
			model.AppointmentStatusScheduled, model.AppointmentStatusCompleted, model.AppointmentStatusCancelled),
		"status")
}
