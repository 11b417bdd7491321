package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the registry entry billing records hang off. Clinical history
// lives elsewhere.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FullName    string    `db:"full_name" json:"full_name"`
	DateOfBirth string    `db:"date_of_birth" json:"date_of_birth"`
	Gender      *string   `db:"gender" json:"gender"`
	ParentName  *string   `db:"parent_name" json:"parent_name"`
	Phone       *string   `db:"phone" json:"phone"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type CreatePatientRequest struct {
	FullName    string  `json:"full_name" binding:"required,max=100"`
	DateOfBirth string  `json:"date_of_birth" binding:"required,calendar_date"`
	Gender      *string `json:"gender" binding:"omitempty,max=10"`
	ParentName  *string `json:"parent_name" binding:"omitempty,max=100"`
	Phone       *string `json:"phone" binding:"omitempty,max=20"`
}

type PatientFilters struct {
	Search string `form:"search"`
	Limit  int    `form:"limit"`
}
