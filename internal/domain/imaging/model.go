package imaging

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

// Archive is a hospital's imaging archive as resolved by the directory.
type Archive struct {
	HospitalID   uuid.UUID
	HospitalName string
	Target       orthanc.Target
}

// Date is a calendar date. It serializes as YYYY-MM-DD.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format("2006-01-02"))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// placeholder is the wire shape of a node whose detail could not be fetched.
type placeholder struct {
	ID string `json:"id"`
}

// Patient is a DICOM patient. Studies is only populated by detail lookups;
// list views carry StudyIDs alone.
type Patient struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	Name          string         `json:"patient_name"`
	BirthDate     *Date          `json:"patient_birth_date"`
	Sex           string         `json:"patient_sex"`
	IsStable      bool           `json:"is_stable"`
	LastUpdate    *time.Time     `json:"last_update"`
	Labels        []string       `json:"labels"`
	StudyIDs      []string       `json:"study_ids"`
	MainDicomTags map[string]any `json:"main_dicom_tags"`
	Studies       []*Study       `json:"-"`

	incomplete bool
}

// Incomplete reports whether only the id is known.
func (p *Patient) Incomplete() bool { return p.incomplete }

type patientJSON Patient

func (p Patient) MarshalJSON() ([]byte, error) {
	if p.incomplete {
		return json.Marshal(placeholder{ID: p.ID})
	}
	if p.Studies == nil {
		return json.Marshal((*patientJSON)(&p))
	}
	return json.Marshal(struct {
		*patientJSON
		Studies []*Study `json:"studies"`
	}{(*patientJSON)(&p), p.Studies})
}

// Study is a DICOM study.
type Study struct {
	ID                     string         `json:"id"`
	StudyInstanceUID       string         `json:"study_instance_uid"`
	StudyDate              *Date          `json:"study_date"`
	StudyTime              string         `json:"study_time"`
	StudyDescription       string         `json:"study_description"`
	AccessionNumber        string         `json:"accession_number"`
	ReferringPhysicianName string         `json:"referring_physician_name"`
	InstitutionName        string         `json:"institution_name"`
	ParentPatient          string         `json:"parent_patient"`
	IsStable               bool           `json:"is_stable"`
	LastUpdate             *time.Time     `json:"last_update"`
	SeriesIDs              []string       `json:"series_ids"`
	MainDicomTags          map[string]any `json:"main_dicom_tags"`
	PatientMainDicomTags   map[string]any `json:"patient_main_dicom_tags"`
	Series                 []*Series      `json:"-"`

	incomplete bool
}

func (s *Study) Incomplete() bool { return s.incomplete }

type studyJSON Study

func (s Study) MarshalJSON() ([]byte, error) {
	if s.incomplete {
		return json.Marshal(placeholder{ID: s.ID})
	}
	if s.Series == nil {
		return json.Marshal((*studyJSON)(&s))
	}
	return json.Marshal(struct {
		*studyJSON
		Series []*Series `json:"series"`
	}{(*studyJSON)(&s), s.Series})
}

// Series is a DICOM series.
type Series struct {
	ID                        string         `json:"id"`
	SeriesInstanceUID         string         `json:"series_instance_uid"`
	SeriesNumber              string         `json:"series_number"`
	SeriesDescription         string         `json:"series_description"`
	SeriesDate                *Date          `json:"series_date"`
	Modality                  string         `json:"modality"`
	BodyPartExamined          string         `json:"body_part_examined"`
	Manufacturer              string         `json:"manufacturer"`
	ManufacturerModelName     string         `json:"manufacturer_model_name"`
	ParentStudy               string         `json:"parent_study"`
	Status                    string         `json:"status"`
	ExpectedNumberOfInstances *int           `json:"expected_number_of_instances"`
	InstancesCount            int            `json:"instances_count"`
	InstanceIDs               []string       `json:"instance_ids"`
	IsStable                  bool           `json:"is_stable"`
	LastUpdate                *time.Time     `json:"last_update"`
	MainDicomTags             map[string]any `json:"main_dicom_tags"`

	incomplete bool
}

func (s *Series) Incomplete() bool { return s.incomplete }

type seriesJSON Series

func (s Series) MarshalJSON() ([]byte, error) {
	if s.incomplete {
		return json.Marshal(placeholder{ID: s.ID})
	}
	return json.Marshal((*seriesJSON)(&s))
}

// Instance is a single stored DICOM object.
type Instance struct {
	ID                   string         `json:"id"`
	SOPInstanceUID       string         `json:"sop_instance_uid"`
	InstanceNumber       string         `json:"instance_number"`
	InstanceCreationDate *Date          `json:"instance_creation_date"`
	IndexInSeries        *int           `json:"index_in_series"`
	ParentSeries         string         `json:"parent_series"`
	Rows                 *int           `json:"rows"`
	Columns              *int           `json:"columns"`
	BitsAllocated        *int           `json:"bits_allocated"`
	BitsStored           *int           `json:"bits_stored"`
	HighBit              *int           `json:"high_bit"`
	FileSize             int64          `json:"file_size"`
	FileUUID             string         `json:"file_uuid"`
	IsStable             bool           `json:"is_stable"`
	LastUpdate           *time.Time     `json:"last_update"`
	MainDicomTags        map[string]any `json:"main_dicom_tags"`
}

// PatientList is the response of a per-hospital patient listing.
type PatientList struct {
	HospitalID   uuid.UUID  `json:"hospital_id"`
	HospitalName string     `json:"hospital_name"`
	ArchiveURL   string     `json:"archive_url"`
	Patients     []*Patient `json:"patients"`
}

// PatientResult is a full patient tree together with the archive it came from.
type PatientResult struct {
	HospitalID   uuid.UUID `json:"hospital_id"`
	HospitalName string    `json:"hospital_name"`
	ArchiveURL   string    `json:"archive_url"`
	Patient      *Patient  `json:"patient"`
}

func placeholderPatient(id string) *Patient { return &Patient{ID: id, incomplete: true} }
func placeholderStudy(id string) *Study     { return &Study{ID: id, incomplete: true} }
func placeholderSeries(id string) *Series   { return &Series{ID: id, incomplete: true} }
