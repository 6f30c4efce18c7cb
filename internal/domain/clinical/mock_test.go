package clinical

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// store backs the three mock repositories with shared maps so joins
// behave like the Postgres ones.
type store struct {
	patients      map[uuid.UUID]*Patient
	records       map[uuid.UUID]*MedicalRecord
	conditions    map[uuid.UUID][]*ChronicCondition
	healthData    map[uuid.UUID][]*HealthData
	practitioners map[uuid.UUID]*Practitioner
	consultations map[uuid.UUID]*Consultation
	prescriptions map[uuid.UUID][]*Prescription
	failRecord    error
}

func newStore() *store {
	return &store{
		patients:      make(map[uuid.UUID]*Patient),
		records:       make(map[uuid.UUID]*MedicalRecord),
		conditions:    make(map[uuid.UUID][]*ChronicCondition),
		healthData:    make(map[uuid.UUID][]*HealthData),
		practitioners: make(map[uuid.UUID]*Practitioner),
		consultations: make(map[uuid.UUID]*Consultation),
		prescriptions: make(map[uuid.UUID][]*Prescription),
	}
}

type mockPatientRepo struct{ *store }

func (m mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, other := range m.patients {
		if p.SSN != nil && other.SSN != nil && *p.SSN == *other.SSN {
			return ErrDuplicate
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	for _, c := range m.consultations {
		if c.PatientID == id {
			cp.ConsultationCount++
		}
	}
	return &cp, nil
}

func (m mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	all := m.sortedPatients(func(*Patient) bool { return true })
	total := len(all)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m mockPatientRepo) ListByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]*Patient, error) {
	seen := map[uuid.UUID]bool{}
	for _, c := range m.consultations {
		if c.PractitionerID == practitionerID {
			seen[c.PatientID] = true
		}
	}
	return m.sortedPatients(func(p *Patient) bool { return seen[p.ID] }), nil
}

func (m mockPatientRepo) sortedPatients(keep func(*Patient) bool) []*Patient {
	out := []*Patient{}
	for _, p := range m.patients {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

func (m mockPatientRepo) OpenRecord(_ context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	if m.failRecord != nil {
		return nil, m.failRecord
	}
	if _, ok := m.records[patientID]; ok {
		return nil, ErrDuplicate
	}
	rec := &MedicalRecord{ID: uuid.New(), PatientID: patientID, CreatedAt: time.Now()}
	m.records[patientID] = rec
	return rec, nil
}

func (m mockPatientRepo) GetRecord(_ context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	rec, ok := m.records[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	if p, ok := m.patients[patientID]; ok {
		cp.PatientFirstName, cp.PatientLastName = p.FirstName, p.LastName
	}
	return &cp, nil
}

func (m mockPatientRepo) AddCondition(_ context.Context, c *ChronicCondition) error {
	c.ID = uuid.New()
	m.conditions[c.PatientID] = append(m.conditions[c.PatientID], c)
	return nil
}

func (m mockPatientRepo) ListConditions(_ context.Context, patientID uuid.UUID) ([]*ChronicCondition, error) {
	return append([]*ChronicCondition{}, m.conditions[patientID]...), nil
}

func (m mockPatientRepo) AddHealthData(_ context.Context, d *HealthData) error {
	d.ID = uuid.New()
	if d.RecordedAt.IsZero() {
		d.RecordedAt = time.Now()
	}
	m.healthData[d.PatientID] = append(m.healthData[d.PatientID], d)
	return nil
}

func (m mockPatientRepo) ListHealthData(_ context.Context, patientID uuid.UUID) ([]*HealthData, error) {
	return append([]*HealthData{}, m.healthData[patientID]...), nil
}

type mockPractitionerRepo struct{ *store }

func (m mockPractitionerRepo) Create(_ context.Context, p *Practitioner) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.practitioners[p.ID] = p
	return nil
}

func (m mockPractitionerRepo) GetByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m mockPractitionerRepo) List(_ context.Context, limit, offset int) ([]*Practitioner, int, error) {
	all := m.sorted(func(*Practitioner) bool { return true })
	if offset >= len(all) {
		return []*Practitioner{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m mockPractitionerRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*Practitioner, error) {
	return m.sorted(func(p *Practitioner) bool {
		return p.HospitalID != nil && *p.HospitalID == hospitalID
	}), nil
}

func (m mockPractitionerRepo) sorted(keep func(*Practitioner) bool) []*Practitioner {
	out := []*Practitioner{}
	for _, p := range m.practitioners {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

type mockConsultationRepo struct {
	*store
	periodQueries []PeriodQuery
}

func (m *mockConsultationRepo) Create(_ context.Context, c *Consultation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.consultations[c.ID] = c
	return nil
}

func (m *mockConsultationRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := m.consultations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.PrescriptionCount = len(m.prescriptions[id])
	return &cp, nil
}

func (m *mockConsultationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	return m.filter(func(c *Consultation) bool { return c.PatientID == patientID }), nil
}

func (m *mockConsultationRepo) ListByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]*Consultation, error) {
	return m.filter(func(c *Consultation) bool { return c.PractitionerID == practitionerID }), nil
}

func (m *mockConsultationRepo) filter(keep func(*Consultation) bool) []*Consultation {
	out := []*Consultation{}
	for _, c := range m.consultations {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *mockConsultationRepo) AddPrescription(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	m.prescriptions[p.ConsultationID] = append(m.prescriptions[p.ConsultationID], p)
	return nil
}

func (m *mockConsultationRepo) ListPrescriptions(_ context.Context, consultationID uuid.UUID) ([]*Prescription, error) {
	return append([]*Prescription{}, m.prescriptions[consultationID]...), nil
}

func (m *mockConsultationRepo) PractitionerStats(_ context.Context, practitionerID uuid.UUID) (*PractitionerStats, error) {
	stats := &PractitionerStats{PractitionerID: practitionerID}
	patients := map[uuid.UUID]bool{}
	for _, c := range m.consultations {
		if c.PractitionerID == practitionerID {
			stats.Consultations++
			patients[c.PatientID] = true
		}
	}
	stats.DistinctPatients = len(patients)
	return stats, nil
}

// PeriodStats buckets by day only; the label layouts are Postgres'.
func (m *mockConsultationRepo) PeriodStats(_ context.Context, q PeriodQuery) ([]PeriodStat, error) {
	m.periodQueries = append(m.periodQueries, q)
	buckets := map[string]*PeriodStat{}
	patients := map[string]map[uuid.UUID]bool{}
	end := q.End.AddDate(0, 0, 1)
	for _, c := range m.consultations {
		if c.StartedAt.Before(q.Start) || !c.StartedAt.Before(end) {
			continue
		}
		if q.PractitionerID != nil && c.PractitionerID != *q.PractitionerID {
			continue
		}
		key := c.StartedAt.Format(dateLayout)
		if buckets[key] == nil {
			buckets[key] = &PeriodStat{Period: key}
			patients[key] = map[uuid.UUID]bool{}
		}
		buckets[key].Consultations++
		patients[key][c.PatientID] = true
	}
	out := []PeriodStat{}
	for key, b := range buckets {
		b.Patients = len(patients[key])
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func newTestService() (*Service, *store, *mockConsultationRepo) {
	st := newStore()
	cons := &mockConsultationRepo{store: st}
	svc := NewService(mockPatientRepo{st}, mockPractitionerRepo{st}, cons, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC) }
	return svc, st, cons
}
