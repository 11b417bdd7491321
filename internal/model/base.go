package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DateLayout is the wire and storage layout for calendar dates.
const DateLayout = "2006-01-02"

var validate = validator.New()

// IsCalendarDate reports whether s is a YYYY-MM-DD string naming a real day.
// 2024-02-30 is rejected.
func IsCalendarDate(s string) bool {
	return validate.Var(s, "required,datetime="+DateLayout) == nil
}
