package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.TimeSlots,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date::text, time_slots, created_at, updated_at
		FROM schedules
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	return scanSchedule(row)
}

// LockDayTx loads the doctor-day row under FOR UPDATE, seeding it from the
// default template when the day has never been persisted. Callers mutate the
// returned slot list in memory and write it back with UpdateSlotsTx before
// committing; the row lock serializes every claim and release for the day.
func LockDayTx(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date string) (*Schedule, error) {
	sched, err := lockDay(ctx, tx, doctorID, date)
	if err == nil {
		return sched, nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, err
	}

	// First touch of this day. ON CONFLICT absorbs the race with a
	// concurrent first toucher; the re-select then blocks on their lock.
	_, err = tx.Exec(ctx, `
		INSERT INTO schedules (id, doctor_id, date, time_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (doctor_id, date) DO NOTHING
	`, uuid.New(), doctorID, date, DefaultSlots())
	if err != nil {
		return nil, fmt.Errorf("seed schedule: %w", err)
	}

	return lockDay(ctx, tx, doctorID, date)
}

func lockDay(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date string) (*Schedule, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, doctor_id, date::text, time_slots, created_at, updated_at
		FROM schedules
		WHERE doctor_id = $1 AND date = $2
		FOR UPDATE
	`, doctorID, date)
	return scanSchedule(row)
}

// UpdateSlotsTx writes the mutated slot list back under the held row lock.
func UpdateSlotsTx(ctx context.Context, tx pgx.Tx, scheduleID uuid.UUID, slots []TimeSlot) error {
	_, err := tx.Exec(ctx, `
		UPDATE schedules
		SET time_slots = $2,
		    updated_at = now()
		WHERE id = $1
	`, scheduleID, slots)
	if err != nil {
		return fmt.Errorf("update schedule slots: %w", err)
	}
	return nil
}

// ClaimSlotTx resolves the selector against the locked day and flips the
// matched slot to unavailable. Used both by the standalone ClaimSlot below
// and by the booking engine, which runs it inside the same transaction as
// the booking insert so a failed insert rolls the claim back.
func ClaimSlotTx(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID, date, selector string) (*Schedule, TimeSlot, error) {
	sched, err := LockDayTx(ctx, tx, doctorID, date)
	if err != nil {
		return nil, TimeSlot{}, err
	}

	idx := ResolveSlot(sched.TimeSlots, selector)
	if idx < 0 {
		return nil, TimeSlot{}, ErrSlotNotFound
	}
	if !sched.TimeSlots[idx].IsAvailable {
		return nil, TimeSlot{}, ErrSlotUnavailable
	}

	sched.TimeSlots[idx].IsAvailable = false
	if err := UpdateSlotsTx(ctx, tx, sched.ID, sched.TimeSlots); err != nil {
		return nil, TimeSlot{}, err
	}

	return sched, sched.TimeSlots[idx], nil
}

func (r *PgRepository) ClaimSlot(ctx context.Context, doctorID uuid.UUID, date, selector string) (*Schedule, TimeSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, TimeSlot{}, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sched, slot, err := ClaimSlotTx(ctx, tx, doctorID, date, selector)
	if err != nil {
		return nil, TimeSlot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, TimeSlot{}, fmt.Errorf("commit claim tx: %w", err)
	}

	return sched, slot, nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date, slotID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sched, err := lockDay(ctx, tx, doctorID, date)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			// Nothing was ever claimed for this day.
			return nil
		}
		return err
	}

	changed := false
	for i := range sched.TimeSlots {
		if sched.TimeSlots[i].ID == slotID {
			if !sched.TimeSlots[i].IsAvailable {
				sched.TimeSlots[i].IsAvailable = true
				changed = true
			}
			break
		}
	}
	if !changed {
		// Already open, or the slot id no longer exists after a day edit.
		return nil
	}

	if err := UpdateSlotsTx(ctx, tx, sched.ID, sched.TimeSlots); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) SetDaySlots(ctx context.Context, doctorID uuid.UUID, date string, slots []TimeSlot) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedules (id, doctor_id, date, time_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (doctor_id, date) DO UPDATE
		SET time_slots = EXCLUDED.time_slots,
		    updated_at = now()
		RETURNING id, doctor_id, date::text, time_slots, created_at, updated_at
	`, uuid.New(), doctorID, date, slots)
	return scanSchedule(row)
}
