package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidDate = errors.New("invalid date")

// TimeSlot is a named time window within one doctor-day. The isAvailable bit
// is the single source of truth for whether the slot can be claimed.
type TimeSlot struct {
	ID          string `json:"id"`
	Time        string `json:"time"`
	IsAvailable bool   `json:"isAvailable"`
}

// Schedule holds the full slot list for one doctor on one calendar date.
// The list is stored as a single JSONB value so one row lock covers every
// slot of the day. ID is uuid.Nil for a synthesized, not-yet-persisted day.
type Schedule struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  uuid.UUID  `json:"doctorId"`
	Date      string     `json:"date"` // canonical YYYY-MM-DD
	TimeSlots []TimeSlot `json:"timeSlots"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
}

// Persisted reports whether the schedule exists as a row.
func (s *Schedule) Persisted() bool {
	return s.ID != uuid.Nil
}

var defaultTemplate = []TimeSlot{
	{ID: "1", Time: "08:00 - 09:00"},
	{ID: "2", Time: "09:00 - 10:00"},
	{ID: "3", Time: "10:00 - 11:00"},
	{ID: "4", Time: "11:00 - 12:00"},
	{ID: "5", Time: "13:00 - 14:00"},
	{ID: "6", Time: "14:00 - 15:00"},
	{ID: "7", Time: "15:00 - 16:00"},
	{ID: "8", Time: "16:00 - 17:00"},
}

// DefaultSlots returns a fresh copy of the 8-slot day template, all open.
// Every caller that synthesizes an unpersisted day goes through here so no
// two code paths can disagree on the template.
func DefaultSlots() []TimeSlot {
	slots := make([]TimeSlot, len(defaultTemplate))
	for i, s := range defaultTemplate {
		slots[i] = TimeSlot{ID: s.ID, Time: s.Time, IsAvailable: true}
	}
	return slots
}

// ResolveSlot locates a slot by an ordered list of strategies: exact id,
// then exact time label, then normalized-label containment. The containment
// pass tolerates client label drift ("10:00-11:00" vs "10:00 - 11:00").
// Within each strategy the first match in list order wins. Returns -1 when
// nothing matches.
func ResolveSlot(slots []TimeSlot, selector string) int {
	for i := range slots {
		if slots[i].ID == selector {
			return i
		}
	}
	for i := range slots {
		if slots[i].Time == selector {
			return i
		}
	}
	norm := normalizeLabel(selector)
	if norm == "" {
		return -1
	}
	for i := range slots {
		if strings.Contains(normalizeLabel(slots[i].Time), norm) {
			return i
		}
	}
	return -1
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// NormalizeDate canonicalizes a client-supplied date to YYYY-MM-DD. Dates
// are timezone-naive calendar days, never instants; a timestamp input is
// truncated to its date part.
func NormalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", ErrInvalidDate
}

// AddDays shifts a canonical date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.AddDate(0, 0, n).Format("2006-01-02"), nil
}
