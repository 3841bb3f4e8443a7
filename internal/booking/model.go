package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// validSources is the whole state machine: target -> allowed current states.
// COMPLETED and CANCELLED are terminal; nothing leaves them.
var validSources = map[Status][]Status{
	StatusConfirmed: {StatusPending},
	StatusCompleted: {StatusPending, StatusConfirmed},
	StatusCancelled: {StatusPending, StatusConfirmed},
}

// TransitionSources returns the states a booking may be in for the target
// status to be applied, or nil when the target is never a valid move.
func TransitionSources(target Status) []Status {
	return validSources[target]
}

// CanTransition reports whether from -> target is a legal move.
func CanTransition(from, target Status) bool {
	for _, s := range validSources[target] {
		if s == from {
			return true
		}
	}
	return false
}

// ParseStatus validates a client-supplied status string.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return Status(raw), true
	}
	return "", false
}

// Unresolved reports whether the booking still blocks the (patient, doctor)
// pair from booking again.
func (s Status) Unresolved() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Booking struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	ClinicID   uuid.UUID
	ScheduleID uuid.UUID
	Date       string // canonical YYYY-MM-DD
	SlotID     string
	TimeSlot   string // canonical slot label, denormalized from the schedule
	Reason     string
	Status     Status
	Notes      *string
	PaymentURL *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
