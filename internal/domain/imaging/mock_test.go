package imaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

// -- Mock Directory --

type mockDirectory struct {
	archives []Archive
	err      error
}

func (m *mockDirectory) Resolve(_ context.Context, hospitalID uuid.UUID) (Archive, bool, error) {
	if m.err != nil {
		return Archive{}, false, m.err
	}
	for _, a := range m.archives {
		if a.HospitalID == hospitalID {
			return a, true, nil
		}
	}
	return Archive{}, false, nil
}

func (m *mockDirectory) Archives(_ context.Context) ([]Archive, error) {
	return m.archives, m.err
}

// -- Mock Archive Client --

// mockArchive serves records per base URL. Missing records answer 404 and
// ids listed in failing answer as unreachable.
type mockArchive struct {
	mu       sync.Mutex
	patients map[string][]string
	records  map[string]orthanc.Record
	failing  map[string]bool
	delay    time.Duration
	calls    atomic.Int64
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		patients: make(map[string][]string),
		records:  make(map[string]orthanc.Record),
		failing:  make(map[string]bool),
	}
}

func (m *mockArchive) put(base, kind, id string, rec orthanc.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec["ID"] = id
	m.records[base+"/"+kind+"/"+id] = rec
}

func (m *mockArchive) fail(base, kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[base+"/"+kind+"/"+id] = true
}

func (m *mockArchive) get(ctx context.Context, t orthanc.Target, kind, id string) (orthanc.Record, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, &orthanc.Error{Op: "get " + kind, Kind: orthanc.ErrArchiveUnreachable, Cause: ctx.Err()}
		}
	}
	key := t.BaseURL + "/" + kind + "/" + id
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[key] {
		return nil, &orthanc.Error{Op: "get " + kind, URL: key, Kind: orthanc.ErrArchiveUnreachable}
	}
	rec, ok := m.records[key]
	if !ok {
		return nil, &orthanc.Error{Op: "get " + kind, URL: key, StatusCode: 404, Kind: orthanc.ErrRecordNotFound}
	}
	out := orthanc.Record{}
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (m *mockArchive) ListPatientIDs(_ context.Context, t orthanc.Target) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[t.BaseURL+"/patients"] {
		return nil, &orthanc.Error{Op: "list patients", Kind: orthanc.ErrArchiveUnreachable}
	}
	ids := m.patients[t.BaseURL]
	if ids == nil {
		return []string{}, nil
	}
	return append([]string{}, ids...), nil
}

func (m *mockArchive) GetPatient(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error) {
	return m.get(ctx, t, "patients", id)
}

func (m *mockArchive) GetStudy(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error) {
	return m.get(ctx, t, "studies", id)
}

func (m *mockArchive) GetSeries(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error) {
	return m.get(ctx, t, "series", id)
}

func (m *mockArchive) GetInstance(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error) {
	return m.get(ctx, t, "instances", id)
}

func (m *mockArchive) ListPatientStudies(ctx context.Context, t orthanc.Target, patientID string) ([]orthanc.Record, error) {
	patient, err := m.get(ctx, t, "patients", patientID)
	if err != nil {
		return nil, err
	}
	out := []orthanc.Record{}
	for _, id := range stringList(patient, "Studies") {
		rec, err := m.get(ctx, t, "studies", id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockArchive) ListStudySeries(ctx context.Context, t orthanc.Target, studyID string) ([]orthanc.Record, error) {
	study, err := m.get(ctx, t, "studies", studyID)
	if err != nil {
		return nil, err
	}
	out := []orthanc.Record{}
	for _, id := range stringList(study, "Series") {
		rec, err := m.get(ctx, t, "series", id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockArchive) GetStatistics(ctx context.Context, t orthanc.Target) (orthanc.Record, error) {
	return m.get(ctx, t, "tools", "statistics")
}

func (m *mockArchive) GetSystem(ctx context.Context, t orthanc.Target) (orthanc.Record, error) {
	return m.get(ctx, t, "tools", "system")
}

func (m *mockArchive) UploadInstance(_ context.Context, t orthanc.Target, dicom []byte) (orthanc.Record, error) {
	return orthanc.Record{"ID": fmt.Sprintf("inst-%d", len(dicom)), "Status": "Success"}, nil
}

func (m *mockArchive) ExportStudy(ctx context.Context, t orthanc.Target, studyID, targetAET string) (orthanc.Record, error) {
	if _, err := m.get(ctx, t, "studies", studyID); err != nil {
		return nil, err
	}
	return orthanc.Record{"Target": targetAET}, nil
}

func (m *mockArchive) Find(_ context.Context, t orthanc.Target, query orthanc.Record) ([]orthanc.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orthanc.Record
	prefix := t.BaseURL + "/studies/"
	for key, rec := range m.records {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, rec)
		}
	}
	return out, nil
}

// -- Fixtures --

func target(base string) orthanc.Target {
	return orthanc.Target{Name: base, BaseURL: base}
}

// seedPatient stores a patient with the given studies, each study holding
// the listed series.
func seedPatient(m *mockArchive, base, patientID string, studies map[string][]string, order []string) {
	m.mu.Lock()
	m.patients[base] = append(m.patients[base], patientID)
	m.mu.Unlock()

	studyIDs := make([]any, 0, len(order))
	for _, sid := range order {
		studyIDs = append(studyIDs, sid)
		seriesIDs := make([]any, 0, len(studies[sid]))
		for _, seid := range studies[sid] {
			seriesIDs = append(seriesIDs, seid)
			m.put(base, "series", seid, orthanc.Record{
				"ParentStudy": sid,
				"IsStable":    true,
				"LastUpdate":  "20240301T101500",
				"Instances":   []any{seid + "-i1", seid + "-i2"},
				"MainDicomTags": map[string]any{
					"Modality":          "CT",
					"SeriesDescription": "Series " + seid,
					"SeriesNumber":      "1",
				},
			})
		}
		m.put(base, "studies", sid, orthanc.Record{
			"ParentPatient": patientID,
			"Series":        seriesIDs,
			"IsStable":      true,
			"MainDicomTags": map[string]any{
				"StudyDate":        "20240301",
				"StudyDescription": "Study " + sid,
				"StudyInstanceUID": "1.2.3." + sid,
			},
		})
	}
	m.put(base, "patients", patientID, orthanc.Record{
		"Studies":    studyIDs,
		"IsStable":   false,
		"LastUpdate": "20240302T080000",
		"MainDicomTags": map[string]any{
			"PatientName":      "DOE^" + patientID,
			"PatientID":        "MRN-" + patientID,
			"PatientBirthDate": "19800115",
			"PatientSex":       "F",
		},
	})
}
