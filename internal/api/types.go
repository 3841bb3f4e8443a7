package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinic-booking/internal/booking"
	"github.com/clinicbook/clinic-booking/internal/schedule"
)

type CreateBookingRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
	ClinicID  string `json:"clinicId,omitempty"`
	Date      string `json:"date"`
	TimeSlot  string `json:"timeSlot"`
	Reason    string `json:"reason"`
}

type UpdateBookingRequest struct {
	Status *string `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

type BookingResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patientId"`
	DoctorID   uuid.UUID `json:"doctorId"`
	ClinicID   uuid.UUID `json:"clinicId"`
	ScheduleID uuid.UUID `json:"scheduleId"`
	Date       string    `json:"date"`
	TimeSlot   string    `json:"timeSlot"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	Notes      *string   `json:"notes,omitempty"`
	PaymentURL *string   `json:"paymentUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:         b.ID,
		PatientID:  b.PatientID,
		DoctorID:   b.DoctorID,
		ClinicID:   b.ClinicID,
		ScheduleID: b.ScheduleID,
		Date:       b.Date,
		TimeSlot:   b.TimeSlot,
		Reason:     b.Reason,
		Status:     string(b.Status),
		Notes:      b.Notes,
		PaymentURL: b.PaymentURL,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

// ScheduleResponse carries a null id for days that only exist as the
// synthesized default template.
type ScheduleResponse struct {
	ID        *uuid.UUID          `json:"id"`
	DoctorID  uuid.UUID           `json:"doctorId"`
	Date      string              `json:"date"`
	TimeSlots []schedule.TimeSlot `json:"timeSlots"`
}

func toScheduleResponse(s *schedule.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		DoctorID:  s.DoctorID,
		Date:      s.Date,
		TimeSlots: s.TimeSlots,
	}
	if s.Persisted() {
		id := s.ID
		resp.ID = &id
	}
	return resp
}

type UpdateScheduleRequest struct {
	Date      string              `json:"date"`
	TimeSlots []schedule.TimeSlot `json:"timeSlots"`
}

type CreatePaymentRequest struct {
	BookingID string `json:"bookingId"`
	Amount    int64  `json:"amount"`
	BankCode  string `json:"bankCode,omitempty"`
}

type CreatePaymentResponse struct {
	URL string `json:"url"`
}
