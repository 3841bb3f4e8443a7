package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Catalog records are read-mostly from the booking core's perspective;
// admin CRUD lives in a separate service. Rows soft-deleted there carry a
// deleted_at timestamp and are invisible to every read in this package.

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Specialty struct {
	ID   uuid.UUID
	Name string
}

type Clinic struct {
	ID      uuid.UUID
	Name    string
	Address *string
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	SpecialtyID uuid.UUID
	ClinicID    uuid.UUID
	PriceCents  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
