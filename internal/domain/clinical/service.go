package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/db"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Service struct {
	patients      PatientRepository
	practitioners PractitionerRepository
	consultations ConsultationRepository
	txs           db.TxBeginner
	now           func() time.Time
}

// NewService builds the clinical service. txs may be nil, in which case
// multi-step writes run without a transaction.
func NewService(patients PatientRepository, practitioners PractitionerRepository, consultations ConsultationRepository, txs db.TxBeginner) *Service {
	return &Service{
		patients:      patients,
		practitioners: practitioners,
		consultations: consultations,
		txs:           txs,
		now:           time.Now,
	}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txs == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txs, fn)
}

// -- Patient --

// CreatePatient stores the patient and opens their medical record.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return invalid("first_name and last_name are required")
	}
	p.Active = true
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		rec, err := s.patients.OpenRecord(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("open medical record: %w", err)
		}
		p.RecordID = &rec.ID
		return nil
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) GetRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	return s.patients.GetRecord(ctx, patientID)
}

func (s *Service) ListPatientConsultations(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.consultations.ListByPatient(ctx, patientID)
}

func (s *Service) AddCondition(ctx context.Context, c *ChronicCondition) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("name is required")
	}
	if _, err := s.patients.GetByID(ctx, c.PatientID); err != nil {
		return err
	}
	return s.patients.AddCondition(ctx, c)
}

func (s *Service) ListConditions(ctx context.Context, patientID uuid.UUID) ([]*ChronicCondition, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.patients.ListConditions(ctx, patientID)
}

func (s *Service) AddHealthData(ctx context.Context, d *HealthData) error {
	d.Parameter = strings.TrimSpace(d.Parameter)
	if d.Parameter == "" {
		return invalid("parameter is required")
	}
	if d.MinValue != nil && d.MaxValue != nil && *d.MinValue > *d.MaxValue {
		return invalid("min_value must not exceed max_value")
	}
	if _, err := s.patients.GetByID(ctx, d.PatientID); err != nil {
		return err
	}
	return s.patients.AddHealthData(ctx, d)
}

func (s *Service) ListHealthData(ctx context.Context, patientID uuid.UUID) ([]*HealthData, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.patients.ListHealthData(ctx, patientID)
}

// -- Practitioner --

func (s *Service) CreatePractitioner(ctx context.Context, p *Practitioner) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return invalid("first_name and last_name are required")
	}
	p.Active = true
	return s.practitioners.Create(ctx, p)
}

func (s *Service) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return s.practitioners.GetByID(ctx, id)
}

func (s *Service) ListPractitioners(ctx context.Context, limit, offset int) ([]*Practitioner, int, error) {
	return s.practitioners.List(ctx, limit, offset)
}

func (s *Service) ListHospitalPractitioners(ctx context.Context, hospitalID uuid.UUID) ([]*Practitioner, error) {
	return s.practitioners.ListByHospital(ctx, hospitalID)
}

func (s *Service) ListPractitionerConsultations(ctx context.Context, practitionerID uuid.UUID) ([]*Consultation, error) {
	if _, err := s.practitioners.GetByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	return s.consultations.ListByPractitioner(ctx, practitionerID)
}

func (s *Service) ListPractitionerPatients(ctx context.Context, practitionerID uuid.UUID) ([]*Patient, error) {
	if _, err := s.practitioners.GetByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	return s.patients.ListByPractitioner(ctx, practitionerID)
}

func (s *Service) PractitionerStats(ctx context.Context, practitionerID uuid.UUID) (*PractitionerStats, error) {
	if _, err := s.practitioners.GetByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	return s.consultations.PractitionerStats(ctx, practitionerID)
}

// maxStatsRange bounds a period stats query.
const maxStatsRange = 366 * 24 * time.Hour

// PeriodStats counts consultations per day, ISO week or month. An empty
// period means daily.
func (s *Service) PeriodStats(ctx context.Context, q PeriodQuery) ([]PeriodStat, error) {
	if q.Period == "" {
		q.Period = "daily"
	}
	q.Period = strings.ToLower(q.Period)
	if _, ok := periodLayouts[q.Period]; !ok {
		return nil, invalid("period must be daily, weekly or monthly, got %q", q.Period)
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, invalid("start and end are required")
	}
	if q.End.Before(q.Start) {
		return nil, invalid("end must not precede start")
	}
	if q.End.Sub(q.Start) > maxStatsRange {
		return nil, invalid("range must not exceed one year")
	}
	if q.PractitionerID != nil {
		if _, err := s.practitioners.GetByID(ctx, *q.PractitionerID); err != nil {
			return nil, err
		}
	}
	return s.consultations.PeriodStats(ctx, q)
}

// -- Consultation --

func (s *Service) CreateConsultation(ctx context.Context, c *Consultation) error {
	if c.PatientID == uuid.Nil || c.PractitionerID == uuid.Nil {
		return invalid("patient_id and practitioner_id are required")
	}
	if c.Status == "" {
		c.Status = ConsultationPlanned
	}
	if !validConsultationStatuses[c.Status] {
		return invalid("invalid status: %s", c.Status)
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = s.now().UTC()
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, c.PatientID); err != nil {
			return err
		}
		if _, err := s.practitioners.GetByID(ctx, c.PractitionerID); err != nil {
			return err
		}
		return s.consultations.Create(ctx, c)
	})
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.consultations.GetByID(ctx, id)
}

func (s *Service) AddPrescription(ctx context.Context, p *Prescription) error {
	p.Medications = strings.TrimSpace(p.Medications)
	if p.Medications == "" {
		return invalid("medications are required")
	}
	if p.IssuedOn.IsZero() {
		p.IssuedOn = s.now().UTC().Truncate(24 * time.Hour)
	}
	if p.ExpiresOn != nil && p.ExpiresOn.Before(p.IssuedOn) {
		return invalid("expires_on must not precede issued_on")
	}
	if _, err := s.consultations.GetByID(ctx, p.ConsultationID); err != nil {
		return err
	}
	return s.consultations.AddPrescription(ctx, p)
}

func (s *Service) ListPrescriptions(ctx context.Context, consultationID uuid.UUID) ([]*Prescription, error) {
	if _, err := s.consultations.GetByID(ctx, consultationID); err != nil {
		return nil, err
	}
	return s.consultations.ListPrescriptions(ctx, consultationID)
}
