package api

import (
	"errors"
	"net/http"

	"github.com/clinicbook/clinic-booking/internal/booking"
	"github.com/clinicbook/clinic-booking/internal/catalog"
	"github.com/clinicbook/clinic-booking/internal/payment"
	redisclient "github.com/clinicbook/clinic-booking/internal/redis"
	"github.com/clinicbook/clinic-booking/internal/schedule"
)

// handleDomainError maps domain errors to a status plus stable machine code.
func handleDomainError(w http.ResponseWriter, err error) {
	var valErr *booking.ValidationError
	if errors.As(err, &valErr) {
		writeError(w, http.StatusBadRequest, "validation_error", valErr.Error())
		return
	}

	switch {
	case errors.Is(err, catalog.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, catalog.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, catalog.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())

	case errors.Is(err, schedule.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusBadRequest, "slot_not_found", err.Error())
	case errors.Is(err, schedule.ErrEmptySlotList):
		writeError(w, http.StatusBadRequest, "empty_slot_list", err.Error())
	case errors.Is(err, schedule.ErrDuplicateSlotID):
		writeError(w, http.StatusBadRequest, "duplicate_slot_id", err.Error())
	case errors.Is(err, schedule.ErrMissingSlotID):
		writeError(w, http.StatusBadRequest, "missing_slot_id", err.Error())

	case errors.Is(err, schedule.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrBookingConflict):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.Is(err, booking.ErrScheduleBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is currently being booked, please retry shortly")

	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_status_transition", err.Error())

	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, payment.ErrMalformedReturn):
		writeError(w, http.StatusBadRequest, "malformed_return", err.Error())
	case errors.Is(err, payment.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, payment.ErrBookingNotPayable):
		writeError(w, http.StatusBadRequest, "booking_not_payable", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
