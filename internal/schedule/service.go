package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic-booking/internal/catalog"
)

const (
	minRangeDays = 1
	maxRangeDays = 31
)

// Service is the availability ledger: per doctor, per calendar date, a fixed
// slot list where each slot is independently claimable.
type Service struct {
	repo    Repository
	catalog catalog.Repository
	logger  zerolog.Logger
}

func NewService(repo Repository, cat catalog.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		logger:  logger,
	}
}

// GetOrCreate returns the persisted day or a synthesized default-template
// day. Synthesized days are not written; persistence happens on first
// mutation only, so read traffic never creates rows.
func (s *Service) GetOrCreate(ctx context.Context, doctorID uuid.UUID, rawDate string) (*Schedule, error) {
	date, err := NormalizeDate(rawDate)
	if err != nil {
		return nil, err
	}

	if _, err := s.catalog.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	sched, err := s.repo.GetByDoctorDate(ctx, doctorID, date)
	if err == nil {
		return sched, nil
	}
	if err != ErrScheduleNotFound {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	return &Schedule{
		DoctorID:  doctorID,
		Date:      date,
		TimeSlots: DefaultSlots(),
	}, nil
}

// GetRange returns `days` consecutive daily schedules starting at start.
// Read-only projection: absent days are synthesized, never persisted.
func (s *Service) GetRange(ctx context.Context, doctorID uuid.UUID, rawStart string, days int) ([]Schedule, error) {
	start, err := NormalizeDate(rawStart)
	if err != nil {
		return nil, err
	}
	if days < minRangeDays {
		days = minRangeDays
	}
	if days > maxRangeDays {
		days = maxRangeDays
	}

	if _, err := s.catalog.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	result := make([]Schedule, 0, days)
	for i := 0; i < days; i++ {
		date, err := AddDays(start, i)
		if err != nil {
			return nil, err
		}

		sched, err := s.repo.GetByDoctorDate(ctx, doctorID, date)
		if err != nil {
			if err != ErrScheduleNotFound {
				return nil, fmt.Errorf("load schedule for %s: %w", date, err)
			}
			sched = &Schedule{
				DoctorID:  doctorID,
				Date:      date,
				TimeSlots: DefaultSlots(),
			}
		}
		result = append(result, *sched)
	}

	return result, nil
}

// ClaimSlot marks the selected slot unavailable. The write path is
// load-under-lock, mutate, write back; see the repository.
func (s *Service) ClaimSlot(ctx context.Context, doctorID uuid.UUID, rawDate, selector string) (*Schedule, TimeSlot, error) {
	date, err := NormalizeDate(rawDate)
	if err != nil {
		return nil, TimeSlot{}, err
	}
	return s.repo.ClaimSlot(ctx, doctorID, date, selector)
}

// ReleaseSlot re-opens a claimed slot. Idempotent.
func (s *Service) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, rawDate, slotID string) error {
	date, err := NormalizeDate(rawDate)
	if err != nil {
		return err
	}
	if err := s.repo.ReleaseSlot(ctx, doctorID, date, slotID); err != nil {
		return fmt.Errorf("release slot %s for %s/%s: %w", slotID, doctorID, date, err)
	}
	s.logger.Debug().
		Stringer("doctor_id", doctorID).
		Str("date", date).
		Str("slot_id", slotID).
		Msg("slot released")
	return nil
}

// SetDaySlots fully overwrites the day's slot list. Used by doctor-side
// schedule editing; there is no merge with the existing list.
func (s *Service) SetDaySlots(ctx context.Context, doctorID uuid.UUID, rawDate string, slots []TimeSlot) (*Schedule, error) {
	date, err := NormalizeDate(rawDate)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrEmptySlotList
	}
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if slot.ID == "" {
			return nil, ErrMissingSlotID
		}
		if _, dup := seen[slot.ID]; dup {
			return nil, ErrDuplicateSlotID
		}
		seen[slot.ID] = struct{}{}
	}

	if _, err := s.catalog.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	return s.repo.SetDaySlots(ctx, doctorID, date, slots)
}
