package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic-booking/internal/catalog"
	redisclient "github.com/clinicbook/clinic-booking/internal/redis"
	"github.com/clinicbook/clinic-booking/internal/schedule"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
)

// Notification carries what the patient-facing emails need.
type Notification struct {
	Email       string
	PatientName string
	DoctorName  string
	Date        string
	TimeSlot    string
}

// Notifier sends transition emails. Failures are logged and swallowed; a
// booking is never rolled back because an email could not be sent.
type Notifier interface {
	BookingConfirmed(ctx context.Context, n Notification) error
	BookingCancelled(ctx context.Context, n Notification) error
}

type CreateRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID // optional; zero means use the doctor's home clinic
	Date      string
	TimeSlot  string // slot id, label, or partial label
	Reason    string
}

type Service struct {
	repo     Repository
	catalog  catalog.Repository
	locker   redisclient.Locker
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, cat catalog.Repository, locker redisclient.Locker, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
	}
}

// Create turns a booking request into a claimed slot plus a PENDING booking.
// The claim and the insert are one transaction in the repository; the redis
// lock in front only sheds concurrent traffic for the same doctor-day.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	var missing []string
	if req.PatientID == uuid.Nil {
		missing = append(missing, "patientId")
	}
	if req.DoctorID == uuid.Nil {
		missing = append(missing, "doctorId")
	}
	if req.Date == "" {
		missing = append(missing, "date")
	}
	if req.TimeSlot == "" {
		missing = append(missing, "timeSlot")
	}
	if req.Reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	date, err := schedule.NormalizeDate(req.Date)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"date"}}
	}

	patient, err := s.catalog.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, catalog.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.catalog.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, catalog.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	clinicID := req.ClinicID
	if clinicID == uuid.Nil {
		clinicID = doctor.ClinicID
	}
	if _, err := s.catalog.GetClinicByID(ctx, clinicID); err != nil {
		if errors.Is(err, catalog.ErrClinicNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	// Friendly pre-check; the partial unique index re-checks inside the
	// insert transaction for the race two requests can still win here.
	existing, err := s.repo.FindUnresolved(ctx, req.PatientID, req.DoctorID)
	if err != nil && !errors.Is(err, ErrBookingNotFound) {
		return nil, fmt.Errorf("check unresolved booking: %w", err)
	}
	if existing != nil {
		return nil, ErrBookingConflict
	}

	var created *Booking

	err = s.locker.WithScheduleLock(ctx, req.DoctorID, date, func(lockCtx context.Context) error {
		b, err := s.repo.CreatePending(lockCtx, CreateParams{
			PatientID:    req.PatientID,
			DoctorID:     req.DoctorID,
			ClinicID:     clinicID,
			Date:         date,
			SlotSelector: req.TimeSlot,
			Reason:       req.Reason,
		})
		if err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"patient_id": created.PatientID.String(),
		"doctor_id":  created.DoctorID.String(),
		"date":       created.Date,
		"slot_id":    created.SlotID,
		"time_slot":  created.TimeSlot,
	})

	s.logger.Info().
		Stringer("booking_id", created.ID).
		Stringer("patient_id", patient.ID).
		Stringer("doctor_id", doctor.ID).
		Str("date", created.Date).
		Str("time_slot", created.TimeSlot).
		Msg("booking created")

	return created, nil
}

// Transition applies one state machine move and its side effects. The status
// write is a compare-and-swap over the legal source states, so a concurrent
// transition loses cleanly with ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status, notes *string) (*Booking, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sources := TransitionSources(target)
	if sources == nil || !CanTransition(current.Status, target) {
		return nil, ErrInvalidTransition
	}

	var updated *Booking
	if target == StatusCancelled {
		// Status write and slot release are one transaction: if the release
		// cannot happen the booking stays in its source state and the cancel
		// can simply be retried. A cancelled booking holding its slot forever
		// is a correctness bug, and this is what rules it out.
		updated, err = s.repo.CancelAndRelease(ctx, id, sources)
	} else {
		updated, err = s.repo.UpdateStatus(ctx, id, sources, target)
	}
	if err != nil {
		return nil, err
	}

	if notes != nil {
		updated, err = s.repo.UpdateNotes(ctx, id, *notes)
		if err != nil {
			return nil, fmt.Errorf("update notes: %w", err)
		}
	}

	switch target {
	case StatusConfirmed:
		s.logEvent(ctx, updated.ID, EventBookingConfirmed, nil)
		s.notify(ctx, updated, target)
	case StatusCancelled:
		s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
			"slot_id": updated.SlotID,
		})
		s.notify(ctx, updated, target)
	case StatusCompleted:
		s.logEvent(ctx, updated.ID, EventBookingCompleted, nil)
	}

	return updated, nil
}

// UpdateNotes persists notes without touching the status.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Booking, error) {
	return s.repo.UpdateNotes(ctx, id, notes)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by patient: %w", err)
	}
	return bookings, nil
}

// SetPaymentURL stores the generated gateway URL on the booking for audit.
func (s *Service) SetPaymentURL(ctx context.Context, id uuid.UUID, url string) error {
	return s.repo.SetPaymentURL(ctx, id, url)
}

// RecordEvent writes an audit event best-effort on behalf of collaborators
// (the payment adapter logs raw callbacks through here).
func (s *Service) RecordEvent(ctx context.Context, eventType string, bookingID uuid.UUID, payload map[string]any) {
	s.logEvent(ctx, bookingID, eventType, payload)
}

// notify sends the transition email and swallows failures.
func (s *Service) notify(ctx context.Context, b *Booking, target Status) {
	patient, err := s.catalog.GetPatientByID(ctx, b.PatientID)
	if err != nil || patient.Email == nil {
		s.logger.Warn().Stringer("booking_id", b.ID).Msg("no reachable patient email, skipping notification")
		return
	}
	doctor, err := s.catalog.GetDoctorByID(ctx, b.DoctorID)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("booking_id", b.ID).Msg("doctor lookup failed, skipping notification")
		return
	}

	n := Notification{
		Email:       *patient.Email,
		PatientName: patient.Name,
		DoctorName:  doctor.Name,
		Date:        b.Date,
		TimeSlot:    b.TimeSlot,
	}

	switch target {
	case StatusConfirmed:
		err = s.notifier.BookingConfirmed(ctx, n)
	case StatusCancelled:
		err = s.notifier.BookingCancelled(ctx, n)
	default:
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Stringer("booking_id", b.ID).Msg("notification send failed")
	}
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Stringer("booking_id", bookingID).Msg("failed to insert event log")
	}
}
