package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	SSN              *string    `db:"ssn" json:"ssn,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	// Filled on reads.
	RecordID          *uuid.UUID `json:"record_id,omitempty"`
	ConsultationCount int        `json:"consultation_count"`
}

// Practitioner maps to the practitioner table.
type Practitioner struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Email         *string    `db:"email" json:"email,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Specialty     *string    `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber *string    `db:"license_number" json:"license_number,omitempty"`
	Establishment *string    `db:"establishment" json:"establishment,omitempty"`
	Region        *string    `db:"region" json:"region,omitempty"`
	HospitalID    *uuid.UUID `db:"hospital_id" json:"hospital_id,omitempty"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	HospitalName *string `json:"hospital_name,omitempty"`
}

// FullName is "Last First", the form used in listings.
func (p *Practitioner) FullName() string {
	return strings.TrimSpace(p.LastName + " " + p.FirstName)
}

// MedicalRecord is the patient's file. It is opened with the patient.
type MedicalRecord struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientFirstName string    `json:"patient_first_name"`
	PatientLastName  string    `json:"patient_last_name"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Consultation statuses.
const (
	ConsultationPlanned   = "planned"
	ConsultationCompleted = "completed"
	ConsultationCancelled = "cancelled"
)

var validConsultationStatuses = map[string]bool{
	ConsultationPlanned:   true,
	ConsultationCompleted: true,
	ConsultationCancelled: true,
}

type Consultation struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID `db:"practitioner_id" json:"practitioner_id"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	Type           string    `db:"type" json:"type"`
	Status         string    `db:"status" json:"status"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	// Filled on reads.
	PatientFirstName      string  `json:"patient_first_name,omitempty"`
	PatientLastName       string  `json:"patient_last_name,omitempty"`
	PractitionerFirstName string  `json:"practitioner_first_name,omitempty"`
	PractitionerLastName  string  `json:"practitioner_last_name,omitempty"`
	PractitionerSpecialty *string `json:"practitioner_specialty,omitempty"`
	PrescriptionCount     int     `json:"prescription_count"`
}

type Prescription struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConsultationID uuid.UUID  `db:"consultation_id" json:"consultation_id"`
	IssuedOn       time.Time  `db:"issued_on" json:"issued_on"`
	ExpiresOn      *time.Time `db:"expires_on" json:"expires_on,omitempty"`
	Medications    string     `db:"medications" json:"medications"`
	Instructions   *string    `db:"instructions" json:"instructions,omitempty"`
	Renewable      bool       `db:"renewable" json:"renewable"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// ChronicCondition is a long-term pathology followed for a patient.
type ChronicCondition struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	DetectedOn  *time.Time `db:"detected_on" json:"detected_on,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// HealthData is one measurement of a tracked parameter.
type HealthData struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConditionID *uuid.UUID `db:"condition_id" json:"condition_id,omitempty"`
	Parameter   string     `db:"parameter" json:"parameter"`
	Unit        *string    `db:"unit" json:"unit,omitempty"`
	Value       float64    `db:"value" json:"value"`
	MinValue    *float64   `db:"min_value" json:"min_value,omitempty"`
	MaxValue    *float64   `db:"max_value" json:"max_value,omitempty"`
	Source      *string    `db:"source" json:"source,omitempty"`
	Validated   bool       `db:"validated" json:"validated"`
	RecordedAt  time.Time  `db:"recorded_at" json:"recorded_at"`
}

// OutOfRange reports whether the value falls outside the parameter's
// bounds, when bounds are known.
func (d *HealthData) OutOfRange() bool {
	if d.MinValue != nil && d.Value < *d.MinValue {
		return true
	}
	return d.MaxValue != nil && d.Value > *d.MaxValue
}

// PractitionerStats are the lifetime counters of a practitioner.
type PractitionerStats struct {
	PractitionerID   uuid.UUID `json:"practitioner_id"`
	DistinctPatients int       `json:"distinct_patients"`
	Consultations    int       `json:"consultations"`
}

// PeriodStat counts the consultations held in one period bucket.
type PeriodStat struct {
	Period        string `json:"period"`
	Patients      int    `json:"patients"`
	Consultations int    `json:"consultations"`
}

// Stats periods, with the Postgres to_char layout of their bucket label.
var periodLayouts = map[string]string{
	"daily":   "YYYY-MM-DD",
	"weekly":  `IYYY-"W"IW`,
	"monthly": "YYYY-MM",
}

// PeriodQuery selects the consultations counted by PeriodStats. End is
// inclusive: the whole end day is counted.
type PeriodQuery struct {
	Period         string
	Start          time.Time
	End            time.Time
	PractitionerID *uuid.UUID
}
