package imaging

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

const (
	dicomDateLayout  = "20060102"
	lastUpdateLayout = "20060102T150405"
)

// Mapper turns raw archive records into typed nodes. It never fails: absent
// or unparsable fields come out empty.
type Mapper struct {
	logger zerolog.Logger
}

func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger.With().Str("component", "imaging_mapper").Logger()}
}

func (m *Mapper) Patient(rec orthanc.Record) *Patient {
	id := stringField(rec, "ID")
	return &Patient{
		ID:            id,
		PatientID:     tag(rec, "PatientID"),
		Name:          tag(rec, "PatientName"),
		BirthDate:     m.date(id, "PatientBirthDate", tag(rec, "PatientBirthDate")),
		Sex:           tag(rec, "PatientSex"),
		IsStable:      boolField(rec, "IsStable"),
		LastUpdate:    m.lastUpdate(id, rec),
		Labels:        stringList(rec, "Labels"),
		StudyIDs:      stringList(rec, "Studies"),
		MainDicomTags: mainTags(rec, "MainDicomTags"),
	}
}

func (m *Mapper) Study(rec orthanc.Record) *Study {
	id := stringField(rec, "ID")
	return &Study{
		ID:                     id,
		StudyInstanceUID:       tag(rec, "StudyInstanceUID"),
		StudyDate:              m.date(id, "StudyDate", tag(rec, "StudyDate")),
		StudyTime:              tag(rec, "StudyTime"),
		StudyDescription:       tag(rec, "StudyDescription"),
		AccessionNumber:        tag(rec, "AccessionNumber"),
		ReferringPhysicianName: tag(rec, "ReferringPhysicianName"),
		InstitutionName:        tag(rec, "InstitutionName"),
		ParentPatient:          stringField(rec, "ParentPatient"),
		IsStable:               boolField(rec, "IsStable"),
		LastUpdate:             m.lastUpdate(id, rec),
		SeriesIDs:              stringList(rec, "Series"),
		MainDicomTags:          mainTags(rec, "MainDicomTags"),
		PatientMainDicomTags:   mainTags(rec, "PatientMainDicomTags"),
	}
}

func (m *Mapper) Series(rec orthanc.Record) *Series {
	id := stringField(rec, "ID")
	instances := stringList(rec, "Instances")
	s := &Series{
		ID:                    id,
		SeriesInstanceUID:     tag(rec, "SeriesInstanceUID"),
		SeriesNumber:          tag(rec, "SeriesNumber"),
		SeriesDescription:     tag(rec, "SeriesDescription"),
		SeriesDate:            m.date(id, "SeriesDate", tag(rec, "SeriesDate")),
		Modality:              tag(rec, "Modality"),
		BodyPartExamined:      tag(rec, "BodyPartExamined"),
		Manufacturer:          tag(rec, "Manufacturer"),
		ManufacturerModelName: tag(rec, "ManufacturerModelName"),
		ParentStudy:           stringField(rec, "ParentStudy"),
		Status:                stringField(rec, "Status"),
		InstancesCount:        len(instances),
		InstanceIDs:           instances,
		IsStable:              boolField(rec, "IsStable"),
		LastUpdate:            m.lastUpdate(id, rec),
		MainDicomTags:         mainTags(rec, "MainDicomTags"),
	}
	if n, ok := intField(rec, "ExpectedNumberOfInstances"); ok {
		s.ExpectedNumberOfInstances = &n
	}
	return s
}

func (m *Mapper) Instance(rec orthanc.Record) *Instance {
	id := stringField(rec, "ID")
	inst := &Instance{
		ID:                   id,
		SOPInstanceUID:       tag(rec, "SOPInstanceUID"),
		InstanceNumber:       tag(rec, "InstanceNumber"),
		InstanceCreationDate: m.date(id, "InstanceCreationDate", tag(rec, "InstanceCreationDate")),
		ParentSeries:         stringField(rec, "ParentSeries"),
		Rows:                 tagInt(rec, "Rows"),
		Columns:              tagInt(rec, "Columns"),
		BitsAllocated:        tagInt(rec, "BitsAllocated"),
		BitsStored:           tagInt(rec, "BitsStored"),
		HighBit:              tagInt(rec, "HighBit"),
		FileUUID:             stringField(rec, "FileUuid"),
		IsStable:             boolField(rec, "IsStable"),
		LastUpdate:           m.lastUpdate(id, rec),
		MainDicomTags:        mainTags(rec, "MainDicomTags"),
	}
	if n, ok := intField(rec, "IndexInSeries"); ok {
		inst.IndexInSeries = &n
	}
	if n, ok := intField(rec, "FileSize"); ok {
		inst.FileSize = int64(n)
	}
	return inst
}

func (m *Mapper) date(id, field, raw string) *Date {
	if raw == "" {
		return nil
	}
	d, ok := parseDate(raw)
	if !ok {
		m.logger.Debug().Str("id", id).Str("field", field).Str("value", raw).Msg("unparsable date ignored")
		return nil
	}
	return d
}

func (m *Mapper) lastUpdate(id string, rec orthanc.Record) *time.Time {
	raw := stringField(rec, "LastUpdate")
	if raw == "" {
		return nil
	}
	t, ok := parseLastUpdate(raw)
	if !ok {
		m.logger.Debug().Str("id", id).Str("value", raw).Msg("unparsable last update ignored")
		return nil
	}
	return t
}

// parseDate accepts DICOM DA values (YYYYMMDD) and ISO dates.
func parseDate(raw string) (*Date, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{dicomDateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &Date{Time: t}, true
		}
	}
	return nil, false
}

func parseLastUpdate(raw string) (*time.Time, bool) {
	t, err := time.Parse(lastUpdateLayout, strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	return &t, true
}

// tag reads a DICOM tag from MainDicomTags, falling back to the top level.
func tag(rec orthanc.Record, name string) string {
	if tags, ok := asMap(rec["MainDicomTags"]); ok {
		if v, ok := tags[name]; ok {
			if s, ok := scalar(v); ok {
				return s
			}
		}
	}
	return stringField(rec, name)
}

// tagInt is tag for integer-valued attributes such as Rows. Absent or
// non-numeric values yield nil.
func tagInt(rec orthanc.Record, name string) *int {
	if tags, ok := asMap(rec["MainDicomTags"]); ok {
		if n, ok := intField(tags, name); ok {
			return &n
		}
	}
	if n, ok := intField(rec, name); ok {
		return &n
	}
	return nil
}

func stringField(rec orthanc.Record, name string) string {
	s, _ := scalar(rec[name])
	return s
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func boolField(rec orthanc.Record, name string) bool {
	switch x := rec[name].(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}

func intField(rec orthanc.Record, name string) (int, bool) {
	switch x := rec[name].(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func stringList(rec orthanc.Record, name string) []string {
	raw, ok := rec[name].([]any)
	if !ok {
		if list, ok := rec[name].([]string); ok {
			return append([]string{}, list...)
		}
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := scalar(v); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mainTags(rec orthanc.Record, name string) map[string]any {
	tags, ok := asMap(rec[name])
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case orthanc.Record:
		return x, true
	}
	return nil, false
}
