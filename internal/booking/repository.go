package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingConflict   = errors.New("patient already has an unresolved booking with this doctor")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrScheduleBusy      = errors.New("schedule is being booked, please retry")
)

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	f := append([]string(nil), e.Fields...)
	sort.Strings(f)
	return fmt.Sprintf("missing or invalid fields: %s", strings.Join(f, ", "))
}

// CreateParams is everything the repository needs to claim a slot and insert
// the PENDING booking as one transaction.
type CreateParams struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	ClinicID     uuid.UUID
	Date         string // canonical YYYY-MM-DD
	SlotSelector string // slot id, label, or partial label
	Reason       string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindUnresolved returns the PENDING or CONFIRMED booking for the pair,
	// or ErrBookingNotFound.
	FindUnresolved(ctx context.Context, patientID, doctorID uuid.UUID) (*Booking, error)

	// CreatePending claims the selected slot and inserts the booking in a
	// single transaction; a failed insert rolls the claim back. Surfaces
	// schedule.ErrSlotNotFound / schedule.ErrSlotUnavailable from the claim
	// and ErrBookingConflict when the pair index rejects the insert.
	CreatePending(ctx context.Context, params CreateParams) (*Booking, error)

	// UpdateStatus is a compare-and-swap: the row is updated only while its
	// status is one of from. ErrInvalidTransition when the guard misses.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error)

	// CancelAndRelease moves the booking to CANCELLED and re-opens its slot
	// in one transaction. If either write fails nothing commits, so the
	// booking stays in its source state and the cancel can be retried; a
	// CANCELLED row without its slot released can never exist.
	CancelAndRelease(ctx context.Context, id uuid.UUID, from []Status) (*Booking, error)

	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Booking, error)
	SetPaymentURL(ctx context.Context, id uuid.UUID, url string) error

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
