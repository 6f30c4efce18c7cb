package imaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

// Statistics returns the storage statistics of the hospital's archive.
func (a *Aggregator) Statistics(ctx context.Context, hospitalID uuid.UUID) (orthanc.Record, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.GetStatistics(ctx, arch.Target)
	if err != nil {
		return nil, fmt.Errorf("archive statistics: %w", err)
	}
	return rec, nil
}

// System returns the version and identity of the hospital's archive.
func (a *Aggregator) System(ctx context.Context, hospitalID uuid.UUID) (orthanc.Record, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.GetSystem(ctx, arch.Target)
	if err != nil {
		return nil, fmt.Errorf("archive system: %w", err)
	}
	return rec, nil
}

// Study returns one study with its series expanded.
func (a *Aggregator) Study(ctx context.Context, hospitalID uuid.UUID, studyID string) (*Study, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.GetStudy(ctx, arch.Target, studyID)
	if err != nil {
		return nil, fmt.Errorf("get study %s: %w", studyID, err)
	}
	s := a.mapper.Study(rec)
	s.Series = make([]*Series, len(s.SeriesIDs))
	g := a.group()
	for i, id := range s.SeriesIDs {
		g.Go(func() error {
			s.Series[i] = a.series(ctx, arch, id)
			return nil
		})
	}
	_ = g.Wait()
	return s, nil
}

// PatientStudies lists the studies of one patient without expanding their
// series.
func (a *Aggregator) PatientStudies(ctx context.Context, hospitalID uuid.UUID, patientID string) ([]*Study, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	recs, err := a.client.ListPatientStudies(ctx, arch.Target, patientID)
	if err != nil {
		return nil, fmt.Errorf("list studies of patient %s: %w", patientID, err)
	}
	out := make([]*Study, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.mapper.Study(rec))
	}
	return out, nil
}

// StudySeries lists the series of a study in a single archive call.
func (a *Aggregator) StudySeries(ctx context.Context, hospitalID uuid.UUID, studyID string) ([]*Series, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	recs, err := a.client.ListStudySeries(ctx, arch.Target, studyID)
	if err != nil {
		return nil, fmt.Errorf("list series of study %s: %w", studyID, err)
	}
	out := make([]*Series, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.mapper.Series(rec))
	}
	return out, nil
}

func (a *Aggregator) Series(ctx context.Context, hospitalID uuid.UUID, seriesID string) (*Series, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.GetSeries(ctx, arch.Target, seriesID)
	if err != nil {
		return nil, fmt.Errorf("get series %s: %w", seriesID, err)
	}
	return a.mapper.Series(rec), nil
}

func (a *Aggregator) Instance(ctx context.Context, hospitalID uuid.UUID, instanceID string) (*Instance, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.GetInstance(ctx, arch.Target, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	return a.mapper.Instance(rec), nil
}

// UploadInstance stores a DICOM file in the hospital's archive.
func (a *Aggregator) UploadInstance(ctx context.Context, hospitalID uuid.UUID, dicom []byte) (orthanc.Record, error) {
	if len(dicom) == 0 {
		return nil, fmt.Errorf("%w: empty DICOM payload", ErrInvalidInput)
	}
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.UploadInstance(ctx, arch.Target, dicom)
	if err != nil {
		return nil, fmt.Errorf("upload instance: %w", err)
	}
	a.logger.Info().
		Str("hospital_id", hospitalID.String()).
		Int("bytes", len(dicom)).
		Msg("instance uploaded")
	return rec, nil
}

// ExportStudy sends a study to the modality registered as targetAET.
func (a *Aggregator) ExportStudy(ctx context.Context, hospitalID uuid.UUID, studyID, targetAET string) (orthanc.Record, error) {
	targetAET = strings.TrimSpace(targetAET)
	if targetAET == "" {
		return nil, fmt.Errorf("%w: target AET is required", ErrInvalidInput)
	}
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.ExportStudy(ctx, arch.Target, studyID, targetAET)
	if err != nil {
		return nil, fmt.Errorf("export study %s to %s: %w", studyID, targetAET, err)
	}
	return rec, nil
}

// FindStudies runs a study level /tools/find query. Keys of query are DICOM
// tag names; values may use the archive's wildcard syntax.
func (a *Aggregator) FindStudies(ctx context.Context, hospitalID uuid.UUID, query map[string]string) ([]*Study, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = map[string]string{}
	}
	recs, err := a.client.Find(ctx, arch.Target, orthanc.Record{
		"Level":  "Study",
		"Expand": true,
		"Query":  query,
	})
	if err != nil {
		return nil, fmt.Errorf("find studies: %w", err)
	}
	out := make([]*Study, 0, len(recs))
	for _, rec := range recs {
		out = append(out, a.mapper.Study(rec))
	}
	return out, nil
}
