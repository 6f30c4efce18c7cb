package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/medcenter/internal/platform/db"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// mapWriteError turns constraint violations into domain errors: a unique
// violation is a duplicate, a foreign key violation a missing parent.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// -- Patient --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const patientSelect = `
	SELECT p.id, p.user_id, p.first_name, p.last_name, p.email, p.phone, p.ssn, p.address,
	       p.emergency_contact, p.birth_date, p.active, p.created_at, p.updated_at,
	       r.id, (SELECT COUNT(*) FROM consultation c WHERE c.patient_id = p.id)
	FROM patient p
	LEFT JOIN medical_record r ON r.patient_id = p.id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, first_name, last_name, email, phone, ssn, address,
			emergency_contact, birth_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Email, p.Phone, p.SSN, p.Address,
		p.EmergencyContact, p.BirthDate, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		patientSelect+` ORDER BY p.last_name, p.first_name, p.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *patientRepoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, patientSelect+`
		WHERE p.id IN (SELECT patient_id FROM consultation WHERE practitioner_id = $1)
		ORDER BY p.last_name, p.first_name, p.id`, practitionerID)
	if err != nil {
		return nil, err
	}
	return collectPatients(rows)
}

func (r *patientRepoPG) OpenRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	rec := &MedicalRecord{ID: uuid.New(), PatientID: patientID}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (id, patient_id) VALUES ($1, $2)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return rec, nil
}

func (r *patientRepoPG) GetRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT r.id, r.patient_id, p.first_name, p.last_name, r.created_at, r.updated_at
		FROM medical_record r
		JOIN patient p ON p.id = r.patient_id
		WHERE r.patient_id = $1`, patientID,
	).Scan(&rec.ID, &rec.PatientID, &rec.PatientFirstName, &rec.PatientLastName, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *patientRepoPG) AddCondition(ctx context.Context, c *ChronicCondition) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chronic_condition (id, patient_id, name, description, detected_on)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.PatientID, c.Name, c.Description, c.DetectedOn,
	).Scan(&c.CreatedAt)
	return mapWriteError(err)
}

func (r *patientRepoPG) ListConditions(ctx context.Context, patientID uuid.UUID) ([]*ChronicCondition, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, name, description, detected_on, created_at
		FROM chronic_condition WHERE patient_id = $1
		ORDER BY detected_on DESC NULLS LAST, created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conditions := []*ChronicCondition{}
	for rows.Next() {
		var c ChronicCondition
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Name, &c.Description, &c.DetectedOn, &c.CreatedAt); err != nil {
			return nil, err
		}
		conditions = append(conditions, &c)
	}
	return conditions, rows.Err()
}

func (r *patientRepoPG) AddHealthData(ctx context.Context, d *HealthData) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO health_data (id, patient_id, condition_id, parameter, unit, value,
			min_value, max_value, source, validated, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		RETURNING recorded_at`,
		d.ID, d.PatientID, d.ConditionID, d.Parameter, d.Unit, d.Value,
		d.MinValue, d.MaxValue, d.Source, d.Validated, nullTime(d.RecordedAt),
	).Scan(&d.RecordedAt)
	return mapWriteError(err)
}

func (r *patientRepoPG) ListHealthData(ctx context.Context, patientID uuid.UUID) ([]*HealthData, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, condition_id, parameter, unit, value, min_value, max_value,
		       source, validated, recorded_at
		FROM health_data WHERE patient_id = $1
		ORDER BY recorded_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	data := []*HealthData{}
	for rows.Next() {
		var d HealthData
		if err := rows.Scan(&d.ID, &d.PatientID, &d.ConditionID, &d.Parameter, &d.Unit, &d.Value,
			&d.MinValue, &d.MaxValue, &d.Source, &d.Validated, &d.RecordedAt); err != nil {
			return nil, err
		}
		data = append(data, &d)
	}
	return data, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.SSN, &p.Address,
		&p.EmergencyContact, &p.BirthDate, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		&p.RecordID, &p.ConsultationCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// -- Practitioner --

type practitionerRepoPG struct {
	pool *pgxpool.Pool
}

func NewPractitionerRepo(pool *pgxpool.Pool) PractitionerRepository {
	return &practitionerRepoPG{pool: pool}
}

func (r *practitionerRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const practitionerSelect = `
	SELECT p.id, p.user_id, p.first_name, p.last_name, p.email, p.phone, p.specialty,
	       p.license_number, p.establishment, p.region, p.hospital_id, p.active,
	       p.created_at, p.updated_at, h.name
	FROM practitioner p
	LEFT JOIN hospital h ON h.id = p.hospital_id`

func (r *practitionerRepoPG) Create(ctx context.Context, p *Practitioner) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO practitioner (id, user_id, first_name, last_name, email, phone, specialty,
			license_number, establishment, region, hospital_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Email, p.Phone, p.Specialty,
		p.LicenseNumber, p.Establishment, p.Region, p.HospitalID, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteError(err)
}

func (r *practitionerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return scanPractitioner(r.conn(ctx).QueryRow(ctx, practitionerSelect+` WHERE p.id = $1`, id))
}

func (r *practitionerRepoPG) List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM practitioner`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		practitionerSelect+` ORDER BY p.last_name, p.first_name, p.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectPractitioners(rows)
	return list, total, err
}

func (r *practitionerRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*Practitioner, error) {
	rows, err := r.conn(ctx).Query(ctx,
		practitionerSelect+` WHERE p.hospital_id = $1 ORDER BY p.last_name, p.first_name, p.id`, hospitalID)
	if err != nil {
		return nil, err
	}
	return collectPractitioners(rows)
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Specialty,
		&p.LicenseNumber, &p.Establishment, &p.Region, &p.HospitalID, &p.Active,
		&p.CreatedAt, &p.UpdatedAt, &p.HospitalName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPractitioners(rows pgx.Rows) ([]*Practitioner, error) {
	defer rows.Close()
	list := []*Practitioner{}
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// -- Consultation --

type consultationRepoPG struct {
	pool *pgxpool.Pool
}

func NewConsultationRepo(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) queryable {
	return connFor(ctx, r.pool)
}

const consultationSelect = `
	SELECT c.id, c.patient_id, c.practitioner_id, c.started_at, c.type, c.status, c.notes,
	       c.created_at, c.updated_at,
	       pa.first_name, pa.last_name, pr.first_name, pr.last_name, pr.specialty,
	       (SELECT COUNT(*) FROM prescription rx WHERE rx.consultation_id = c.id)
	FROM consultation c
	JOIN patient pa ON pa.id = c.patient_id
	JOIN practitioner pr ON pr.id = c.practitioner_id`

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (id, patient_id, practitioner_id, started_at, type, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.PractitionerID, c.StartedAt, c.Type, c.Status, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapWriteError(err)
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return scanConsultation(r.conn(ctx).QueryRow(ctx, consultationSelect+` WHERE c.id = $1`, id))
}

func (r *consultationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		consultationSelect+` WHERE c.patient_id = $1 ORDER BY c.started_at DESC, c.id`, patientID)
	if err != nil {
		return nil, err
	}
	return collectConsultations(rows)
}

func (r *consultationRepoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		consultationSelect+` WHERE c.practitioner_id = $1 ORDER BY c.started_at DESC, c.id`, practitionerID)
	if err != nil {
		return nil, err
	}
	return collectConsultations(rows)
}

func (r *consultationRepoPG) AddPrescription(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, consultation_id, issued_on, expires_on, medications, instructions, renewable)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		p.ID, p.ConsultationID, p.IssuedOn, p.ExpiresOn, p.Medications, p.Instructions, p.Renewable,
	).Scan(&p.CreatedAt)
	return mapWriteError(err)
}

func (r *consultationRepoPG) ListPrescriptions(ctx context.Context, consultationID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, issued_on, expires_on, medications, instructions, renewable, created_at
		FROM prescription WHERE consultation_id = $1
		ORDER BY issued_on DESC, created_at`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Prescription{}
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.ConsultationID, &p.IssuedOn, &p.ExpiresOn, &p.Medications,
			&p.Instructions, &p.Renewable, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *consultationRepoPG) PractitionerStats(ctx context.Context, practitionerID uuid.UUID) (*PractitionerStats, error) {
	stats := &PractitionerStats{PractitionerID: practitionerID}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(DISTINCT patient_id), COUNT(*)
		FROM consultation WHERE practitioner_id = $1`, practitionerID,
	).Scan(&stats.DistinctPatients, &stats.Consultations)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *consultationRepoPG) PeriodStats(ctx context.Context, q PeriodQuery) ([]PeriodStat, error) {
	layout, ok := periodLayouts[q.Period]
	if !ok {
		return nil, fmt.Errorf("unknown period %q", q.Period)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(c.started_at, $1), COUNT(DISTINCT c.patient_id), COUNT(*)
		FROM consultation c
		WHERE c.started_at >= $2 AND c.started_at < $3
		  AND ($4::uuid IS NULL OR c.practitioner_id = $4)
		GROUP BY 1
		ORDER BY 1`,
		layout, q.Start, q.End.AddDate(0, 0, 1), q.PractitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []PeriodStat{}
	for rows.Next() {
		var s PeriodStat
		if err := rows.Scan(&s.Period, &s.Patients, &s.Consultations); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.PatientID, &c.PractitionerID, &c.StartedAt, &c.Type, &c.Status, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
		&c.PatientFirstName, &c.PatientLastName, &c.PractitionerFirstName, &c.PractitionerLastName,
		&c.PractitionerSpecialty, &c.PrescriptionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectConsultations(rows pgx.Rows) ([]*Consultation, error) {
	defer rows.Close()
	list := []*Consultation{}
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
