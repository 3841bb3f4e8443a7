package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbook/clinic-booking/internal/booking"
)

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		createReq := booking.CreateRequest{
			Date:     req.Date,
			TimeSlot: req.TimeSlot,
			Reason:   req.Reason,
		}

		// Empty ids stay uuid.Nil so the service reports them as missing
		// fields; malformed non-empty ids are rejected here.
		if req.PatientID != "" {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
				return
			}
			createReq.PatientID = id
		}
		if req.DoctorID != "" {
			id, err := uuid.Parse(req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
				return
			}
			createReq.DoctorID = id
		}
		if req.ClinicID != "" {
			id, err := uuid.Parse(req.ClinicID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinicId must be a valid UUID")
				return
			}
			createReq.ClinicID = id
		}

		b, err := svc.Create(r.Context(), createReq)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]BookingResponse{"booking": toBookingResponse(b)})
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		bookings, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, toBookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, map[string][]BookingResponse{"bookings": resp})
	}
}

// updateBookingHandler applies the state machine transition for status if
// present and persists notes if present.
func updateBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req UpdateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Status == nil && req.Notes == nil {
			writeError(w, http.StatusBadRequest, "empty_update", "provide status and/or notes")
			return
		}

		var b *booking.Booking
		if req.Status != nil {
			target, ok := booking.ParseStatus(*req.Status)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be one of PENDING, CONFIRMED, COMPLETED, CANCELLED")
				return
			}
			b, err = svc.Transition(r.Context(), id, target, req.Notes)
		} else {
			b, err = svc.UpdateNotes(r.Context(), id, *req.Notes)
		}
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
