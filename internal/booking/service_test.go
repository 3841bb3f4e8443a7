package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbook/clinic-booking/internal/catalog"
	redisclient "github.com/clinicbook/clinic-booking/internal/redis"
	"github.com/clinicbook/clinic-booking/internal/schedule"
)

// stubRepo keeps bookings and per doctor-day slot lists in memory, claiming
// and releasing the way the real repository does inside its transactions.
// The mutex stands in for the row locks, so concurrent Create calls contend
// the way they would against Postgres.
type stubRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
	slots    map[string][]schedule.TimeSlot
	events   []EventLog

	cancelErr     error // injected CancelAndRelease failure; nothing commits
	releaseCalls  int
	lastListLimit int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		bookings: make(map[uuid.UUID]*Booking),
		slots:    make(map[string][]schedule.TimeSlot),
	}
}

func slotKey(doctorID uuid.UUID, date string) string {
	return doctorID.String() + "|" + date
}

func (r *stubRepo) daySlots(doctorID uuid.UUID, date string) []schedule.TimeSlot {
	key := slotKey(doctorID, date)
	if _, ok := r.slots[key]; !ok {
		r.slots[key] = schedule.DefaultSlots()
	}
	return r.slots[key]
}

func (r *stubRepo) slotAvailable(doctorID uuid.UUID, date, slotID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.daySlots(doctorID, date) {
		if s.ID == slotID {
			return s.IsAvailable
		}
	}
	return false
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *stubRepo) FindUnresolved(_ context.Context, patientID, doctorID uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.PatientID == patientID && b.DoctorID == doctorID && b.Status.Unresolved() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrBookingNotFound
}

func (r *stubRepo) CreatePending(_ context.Context, params CreateParams) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Same order as the real transaction: pair index check and slot claim
	// both happen before anything is committed.
	for _, b := range r.bookings {
		if b.PatientID == params.PatientID && b.DoctorID == params.DoctorID && b.Status.Unresolved() {
			return nil, ErrBookingConflict
		}
	}

	slots := r.daySlots(params.DoctorID, params.Date)
	idx := schedule.ResolveSlot(slots, params.SlotSelector)
	if idx < 0 {
		return nil, schedule.ErrSlotNotFound
	}
	if !slots[idx].IsAvailable {
		return nil, schedule.ErrSlotUnavailable
	}
	slots[idx].IsAvailable = false

	b := &Booking{
		ID:        uuid.New(),
		PatientID: params.PatientID,
		DoctorID:  params.DoctorID,
		ClinicID:  params.ClinicID,
		Date:      params.Date,
		SlotID:    slots[idx].ID,
		TimeSlot:  slots[idx].Time,
		Reason:    params.Reason,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.bookings[b.ID] = b
	cp := *b
	return &cp, nil
}

func (r *stubRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	matched := false
	for _, f := range from {
		if b.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *stubRepo) CancelAndRelease(_ context.Context, id uuid.UUID, from []Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	matched := false
	for _, f := range from {
		if b.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidTransition
	}

	// Transactional: a failure commits neither the status nor the release.
	if r.cancelErr != nil {
		return nil, r.cancelErr
	}

	slots := r.daySlots(b.DoctorID, b.Date)
	for i := range slots {
		if slots[i].ID == b.SlotID {
			slots[i].IsAvailable = true
		}
	}
	r.releaseCalls++

	b.Status = StatusCancelled
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *stubRepo) UpdateNotes(_ context.Context, id uuid.UUID, notes string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b.Notes = &notes
	cp := *b
	return &cp, nil
}

func (r *stubRepo) SetPaymentURL(_ context.Context, id uuid.UUID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.PaymentURL = &url
	return nil
}

func (r *stubRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastListLimit = limit
	var out []Booking
	for _, b := range r.bookings {
		if b.PatientID == patientID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *stubRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *stubRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, ev := range r.events {
		types = append(types, ev.EventType)
	}
	return types
}

type stubCatalog struct {
	patients map[uuid.UUID]*catalog.Patient
	doctors  map[uuid.UUID]*catalog.Doctor
	clinics  map[uuid.UUID]*catalog.Clinic
}

func (c *stubCatalog) GetPatientByID(_ context.Context, id uuid.UUID) (*catalog.Patient, error) {
	if p, ok := c.patients[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrPatientNotFound
}

func (c *stubCatalog) GetDoctorByID(_ context.Context, id uuid.UUID) (*catalog.Doctor, error) {
	if d, ok := c.doctors[id]; ok {
		return d, nil
	}
	return nil, catalog.ErrDoctorNotFound
}

func (c *stubCatalog) GetClinicByID(_ context.Context, id uuid.UUID) (*catalog.Clinic, error) {
	if cl, ok := c.clinics[id]; ok {
		return cl, nil
	}
	return nil, catalog.ErrClinicNotFound
}

func (c *stubCatalog) GetSpecialtyByID(context.Context, uuid.UUID) (*catalog.Specialty, error) {
	return nil, catalog.ErrSpecialtyNotFound
}

type stubNotifier struct {
	confirmed []Notification
	cancelled []Notification
	failErr   error
}

func (n *stubNotifier) BookingConfirmed(_ context.Context, notif Notification) error {
	n.confirmed = append(n.confirmed, notif)
	return n.failErr
}

func (n *stubNotifier) BookingCancelled(_ context.Context, notif Notification) error {
	n.cancelled = append(n.cancelled, notif)
	return n.failErr
}

type busyLocker struct{}

func (busyLocker) WithScheduleLock(context.Context, uuid.UUID, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	svc      *Service
	repo     *stubRepo
	notifier *stubNotifier

	patientID uuid.UUID
	doctorID  uuid.UUID
	clinicID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newStubRepo()
	notifier := &stubNotifier{}

	patientID := uuid.New()
	doctorID := uuid.New()
	clinicID := uuid.New()
	email := "an.nguyen@example.com"

	cat := &stubCatalog{
		patients: map[uuid.UUID]*catalog.Patient{
			patientID: {ID: patientID, Name: "Nguyen Van An", Email: &email},
		},
		doctors: map[uuid.UUID]*catalog.Doctor{
			doctorID: {ID: doctorID, Name: "Dr. Tran", ClinicID: clinicID, PriceCents: 30000000},
		},
		clinics: map[uuid.UUID]*catalog.Clinic{
			clinicID: {ID: clinicID, Name: "Downtown Clinic"},
		},
	}

	svc := NewService(repo, cat, redisclient.NoopLocker{}, notifier, zerolog.Nop())

	return &fixture{
		svc:       svc,
		repo:      repo,
		notifier:  notifier,
		patientID: patientID,
		doctorID:  doctorID,
		clinicID:  clinicID,
	}
}

func (f *fixture) createRequest() CreateRequest {
	return CreateRequest{
		PatientID: f.patientID,
		DoctorID:  f.doctorID,
		Date:      "2025-11-24",
		TimeSlot:  "3",
		Reason:    "khám tổng quát",
	}
}

func TestCreateMissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"patientId", "doctorId", "date", "timeSlot", "reason"}, verr.Fields)
}

func TestCreateInvalidDate(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.Date = "24/11/2025"

	_, err := f.svc.Create(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"date"}, verr.Fields)
}

func TestCreateUnknownPatient(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.PatientID = uuid.New()

	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, catalog.ErrPatientNotFound)
}

func TestCreateUnknownDoctor(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.DoctorID = uuid.New()

	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, catalog.ErrDoctorNotFound)
}

func TestCreatePendingBooking(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, "2025-11-24", b.Date)
	assert.Equal(t, "3", b.SlotID)
	assert.Equal(t, "10:00 - 11:00", b.TimeSlot)
	assert.Equal(t, "khám tổng quát", b.Reason)
	assert.Equal(t, f.clinicID, b.ClinicID, "clinic defaults to the doctor's home clinic")

	assert.False(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"))
	assert.Equal(t, []string{EventBookingCreated}, f.repo.eventTypes())
}

func TestCreateAcceptsSlotLabel(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.TimeSlot = "10:00 - 11:00"

	b, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "3", b.SlotID)
}

func TestCreateRejectsSecondUnresolvedBooking(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	req := f.createRequest()
	req.TimeSlot = "5" // different slot, same pair

	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrBookingConflict)

	assert.True(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "5"), "rejected booking must not hold a slot")
}

func TestCreateSlotAlreadyTaken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	// A different patient targets the claimed slot.
	otherID := uuid.New()
	f.addPatient(t, otherID, "Le Thi Binh", "binh.le@example.com")

	req := f.createRequest()
	req.PatientID = otherID

	_, err = f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, schedule.ErrSlotUnavailable)
}

func (f *fixture) addPatient(t *testing.T, id uuid.UUID, name, email string) {
	t.Helper()
	cat := f.svc.catalog.(*stubCatalog)
	cat.patients[id] = &catalog.Patient{ID: id, Name: name, Email: &email}
}

func TestCreateUnknownSlot(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest()
	req.TimeSlot = "99"

	_, err := f.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, schedule.ErrSlotNotFound)
}

func TestCreateLockContention(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.svc.catalog, busyLocker{}, f.notifier, zerolog.Nop())

	_, err := svc.Create(context.Background(), f.createRequest())
	assert.ErrorIs(t, err, ErrScheduleBusy)
}

func TestTransitionConfirm(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	updated, err := f.svc.Transition(context.Background(), b.ID, StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	require.Len(t, f.notifier.confirmed, 1)
	n := f.notifier.confirmed[0]
	assert.Equal(t, "an.nguyen@example.com", n.Email)
	assert.Equal(t, "Dr. Tran", n.DoctorName)
	assert.Equal(t, "10:00 - 11:00", n.TimeSlot)

	assert.Equal(t, []string{EventBookingCreated, EventBookingConfirmed}, f.repo.eventTypes())
	assert.Zero(t, f.repo.releaseCalls, "confirmation must not touch the slot")
}

func TestTransitionCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	require.False(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"))

	updated, err := f.svc.Transition(context.Background(), b.ID, StatusCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)

	assert.True(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"))
	assert.Len(t, f.notifier.cancelled, 1)
	assert.Equal(t, []string{EventBookingCreated, EventBookingCancelled}, f.repo.eventTypes())
}

// A failed cancel commits nothing: the booking keeps its source state, the
// slot stays claimed, and retrying once the store recovers both cancels the
// booking and frees the slot.
func TestTransitionCancelFailureIsRetryable(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	f.repo.cancelErr = errors.New("deadlock detected")

	_, err = f.svc.Transition(context.Background(), b.ID, StatusCancelled, nil)
	require.Error(t, err)
	assert.Empty(t, f.notifier.cancelled, "no email when the cancel did not commit")

	got, err := f.svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status, "booking must stay cancellable")
	assert.False(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"))

	f.repo.cancelErr = nil

	updated, err := f.svc.Transition(context.Background(), b.ID, StatusCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.True(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"), "retried cancel frees the slot")
}

func TestTransitionCompletedHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	updated, err := f.svc.Transition(context.Background(), b.ID, StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	assert.Zero(t, f.repo.releaseCalls)
	assert.Empty(t, f.notifier.confirmed)
	assert.Empty(t, f.notifier.cancelled)
	assert.False(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"), "completed visit keeps its slot")
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), b.ID, StatusCancelled, nil)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), b.ID, StatusConfirmed, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestTransitionNotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.failErr = errors.New("smtp down")

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	updated, err := f.svc.Transition(context.Background(), b.ID, StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
}

func TestTransitionAppliesNotes(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	notes := "patient asked to bring previous bloodwork"
	updated, err := f.svc.Transition(context.Background(), b.ID, StatusConfirmed, &notes)
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
}

func TestListByPatientClampsLimit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListByPatient(context.Background(), f.patientID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, f.repo.lastListLimit)

	_, err = f.svc.ListByPatient(context.Background(), f.patientID, 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, f.repo.lastListLimit)
}

// Two concurrent creations racing for the identical doctor-day slot: exactly
// one wins, the other observes the slot as taken. Different patients, so the
// unresolved-pair guard cannot mask the slot race.
func TestConcurrentCreateSameSlotExactlyOneWins(t *testing.T) {
	for round := 0; round < 25; round++ {
		f := newFixture(t)

		otherID := uuid.New()
		f.addPatient(t, otherID, "Le Thi Binh", "binh.le@example.com")

		reqs := []CreateRequest{f.createRequest(), f.createRequest()}
		reqs[1].PatientID = otherID

		start := make(chan struct{})
		errs := make([]error, len(reqs))

		var wg sync.WaitGroup
		for i := range reqs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Create(context.Background(), reqs[i])
			}(i)
		}
		close(start)
		wg.Wait()

		var wins, losses int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, schedule.ErrSlotUnavailable):
				losses++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}

		require.Equal(t, 1, wins, "exactly one creation must succeed")
		require.Equal(t, 1, losses, "the loser must see the slot as taken")
		assert.False(t, f.repo.slotAvailable(f.doctorID, "2025-11-24", "3"))
	}
}

// Full lifecycle: book, get blocked on the pair, cancel, rebook the freed slot.
func TestBookCancelRebook(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), f.createRequest())
	require.ErrorIs(t, err, ErrBookingConflict)

	_, err = f.svc.Transition(context.Background(), first.ID, StatusCancelled, nil)
	require.NoError(t, err)

	second, err := f.svc.Create(context.Background(), f.createRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, second.Status)
	assert.Equal(t, "3", second.SlotID)
	assert.NotEqual(t, first.ID, second.ID)
}
