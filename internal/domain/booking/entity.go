package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medibridge/medibridge-api/internal/domain/policy"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Appointment is a booked consultation with the fees fixed at booking time.
type Appointment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	BookedBy        uuid.UUID       `db:"booked_by" json:"booked_by"`
	BookedByRole    policy.Role     `db:"booked_by_role" json:"booked_by_role"`
	ConsultationFee decimal.Decimal `db:"consultation_fee" json:"consultation_fee"`
	OptedIntoPoints bool            `db:"opted_into_points" json:"opted_into_points"`
	PlatformFeeRate decimal.Decimal `db:"platform_fee_rate" json:"platform_fee_rate"`
	PlatformFee     decimal.Decimal `db:"platform_fee" json:"platform_fee"`
	TotalDue        decimal.Decimal `db:"total_due" json:"total_due"`
	Status          Status          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// PointsReference is the ledger idempotency key of the Health Points award.
func (a *Appointment) PointsReference() string {
	return "appointment_points:" + a.ID.String()
}

// BookRequest is the input of Service.Book.
type BookRequest struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	BookedBy        uuid.UUID
	BookedByRole    policy.Role
	ConsultationFee decimal.Decimal
	OptedIntoPoints bool
}
