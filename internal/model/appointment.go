package model

import "fmt"

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// AppointmentStatuses lists every stored status value.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
}

// Valid reports whether s is one of the stored status values.
func (s AppointmentStatus) Valid() bool {
	for _, v := range AppointmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// Scan implements sql.Scanner so unknown enum values fail loudly.
func (s *AppointmentStatus) Scan(src interface{}) error {
	var v string
	switch t := src.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("cannot scan %T into AppointmentStatus", src)
	}
	status := AppointmentStatus(v)
	if !status.Valid() {
		return fmt.Errorf("unknown appointment status %q", v)
	}
	*s = status
	return nil
}

type Appointment struct {
	Base
	PatientName string            `db:"patient_name" json:"patient_name"`
	Date        string            `db:"date" json:"date"`
	Time        string            `db:"time" json:"time"`
	Type        string            `db:"type" json:"type"`
	Reason      *string           `db:"reason" json:"reason"`
	Notes       *string           `db:"notes" json:"notes"`
	Status      AppointmentStatus `db:"status" json:"status"`
}

// CreateAppointmentRequest is the POST /appointments body. Required fields
// are checked by the scheduler so every missing field is reported at once.
type CreateAppointmentRequest struct {
	PatientName string  `json:"patient_name"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Type        string  `json:"type"`
	Reason      *string `json:"reason"`
	Notes       *string `json:"notes"`
}

type UpdateAppointmentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type AppointmentFilters struct {
	Status AppointmentStatus `form:"status"`
	Search string            `form:"search"`
	Date   string            `form:"date"`
	Limit  int               `form:"-"`
}
