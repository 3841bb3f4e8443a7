package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbook/clinic-booking/internal/schedule"
)

// getScheduleHandler serves both the single-day and the range form:
// ?date=YYYY-MM-DD or ?start=YYYY-MM-DD&days=N.
func getScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()

		if start := q.Get("start"); start != "" {
			days := 7
			if d := q.Get("days"); d != "" {
				n, err := strconv.Atoi(d)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer")
					return
				}
				days = n
			}

			scheds, err := svc.GetRange(r.Context(), doctorID, start, days)
			if err != nil {
				handleDomainError(w, err)
				return
			}

			resp := make([]ScheduleResponse, 0, len(scheds))
			for i := range scheds {
				resp = append(resp, toScheduleResponse(&scheds[i]))
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}

		date := q.Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "provide date=YYYY-MM-DD or start=YYYY-MM-DD&days=N")
			return
		}

		sched, err := svc.GetOrCreate(r.Context(), doctorID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

// putScheduleHandler fully overwrites a day's slot list (doctor-side edit).
func putScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date is required")
			return
		}

		sched, err := svc.SetDaySlots(r.Context(), doctorID, req.Date, req.TimeSlots)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}
