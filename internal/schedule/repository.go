package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrSlotNotFound     = errors.New("time slot not found")
	ErrSlotUnavailable  = errors.New("time slot is not available")
	ErrDuplicateSlotID  = errors.New("duplicate slot id")
	ErrMissingSlotID    = errors.New("slot id must not be empty")
	ErrEmptySlotList    = errors.New("slot list must not be empty")
)

// Repository persists doctor-day slot lists. Claim and release are
// read-modify-write on the JSONB list and must run under the row lock;
// implementations never blind-merge.
type Repository interface {
	GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) (*Schedule, error)

	// ClaimSlot flips the matched slot to unavailable and persists, creating
	// the row from the default template first if the day has never been
	// touched. Returns the matched slot with its canonical label.
	ClaimSlot(ctx context.Context, doctorID uuid.UUID, date, selector string) (*Schedule, TimeSlot, error)

	// ReleaseSlot re-opens the named slot. Releasing an already-open slot is
	// a no-op.
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date, slotID string) error

	// SetDaySlots overwrites the full slot list for the day, creating the
	// row if absent. No merge.
	SetDaySlots(ctx context.Context, doctorID uuid.UUID, date string, slots []TimeSlot) (*Schedule, error)
}
