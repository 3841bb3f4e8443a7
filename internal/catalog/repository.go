package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound   = errors.New("patient not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrClinicNotFound    = errors.New("clinic not found")
	ErrSpecialtyNotFound = errors.New("specialty not found")
)

// Repository contains the catalog reads the booking core needs.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
}
