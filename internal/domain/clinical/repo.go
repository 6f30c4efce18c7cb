package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// ListByPractitioner returns the distinct patients the practitioner
	// has consulted.
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*Patient, error)

	// Medical record
	OpenRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error)
	GetRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error)

	// Chronic conditions and their measurements
	AddCondition(ctx context.Context, c *ChronicCondition) error
	ListConditions(ctx context.Context, patientID uuid.UUID) ([]*ChronicCondition, error)
	AddHealthData(ctx context.Context, d *HealthData) error
	ListHealthData(ctx context.Context, patientID uuid.UUID) ([]*HealthData, error)
}

type PractitionerRepository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Practitioner, error)
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*Consultation, error)

	AddPrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, consultationID uuid.UUID) ([]*Prescription, error)

	PractitionerStats(ctx context.Context, practitionerID uuid.UUID) (*PractitionerStats, error)
	PeriodStats(ctx context.Context, q PeriodQuery) ([]PeriodStat, error)
}
