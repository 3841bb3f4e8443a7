package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinic-booking/internal/schedule"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const bookingColumns = `
	id, patient_id, doctor_id, clinic_id, schedule_id, date::text,
	slot_id, time_slot, reason, status, notes, payment_url,
	created_at, updated_at
`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var notes, paymentURL *string

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.DoctorID,
		&b.ClinicID,
		&b.ScheduleID,
		&b.Date,
		&b.SlotID,
		&b.TimeSlot,
		&b.Reason,
		&b.Status,
		&notes,
		&paymentURL,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Notes = notes
	b.PaymentURL = paymentURL
	return &b, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) FindUnresolved(ctx context.Context, patientID, doctorID uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		  AND doctor_id = $2
		  AND status IN ('PENDING', 'CONFIRMED')
	`, patientID, doctorID)
	return scanBooking(row)
}

func (r *PgRepository) CreatePending(ctx context.Context, params CreateParams) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Claim under the day's row lock. The insert below shares this
	// transaction, so any failure rolls the claim back and no slot leaks.
	sched, slot, err := schedule.ClaimSlotTx(ctx, tx, params.DoctorID, params.Date, params.SlotSelector)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (
			id, patient_id, doctor_id, clinic_id, schedule_id, date,
			slot_id, time_slot, reason, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING', now(), now())
		RETURNING `+bookingColumns+`
	`, uuid.New(), params.PatientID, params.DoctorID, params.ClinicID,
		sched.ID, params.Date, slot.ID, slot.Time, params.Reason)

	created, err := scanBooking(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// The partial unique index on (patient_id, doctor_id) caught a
			// race the pre-check missed.
			return nil, ErrBookingConflict
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+bookingColumns+`
	`, id, to, sources)

	updated, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Row exists with a status outside the guard, or not at all.
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) CancelAndRelease(ctx context.Context, id uuid.UUID, from []Status) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	guarded := false
	for _, f := range from {
		if current.Status == f {
			guarded = true
			break
		}
	}
	if !guarded {
		return nil, ErrInvalidTransition
	}

	// The slot comes back under the same transaction as the status write:
	// a failed release rolls the cancel back instead of leaking the slot.
	sched, err := schedule.LockDayTx(ctx, tx, current.DoctorID, current.Date)
	if err != nil {
		return nil, fmt.Errorf("lock schedule for release: %w", err)
	}
	for i := range sched.TimeSlots {
		if sched.TimeSlots[i].ID == current.SlotID {
			if !sched.TimeSlots[i].IsAvailable {
				sched.TimeSlots[i].IsAvailable = true
				if err := schedule.UpdateSlotsTx(ctx, tx, sched.ID, sched.TimeSlots); err != nil {
					return nil, err
				}
			}
			break
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, StatusCancelled)

	updated, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, notes)
	return scanBooking(row)
}

func (r *PgRepository) SetPaymentURL(ctx context.Context, id uuid.UUID, url string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET payment_url = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, url)
	if err != nil {
		return fmt.Errorf("set payment url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.EventType, ev.BookingID, ev.Payload)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
