package imaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

var (
	// ErrNoArchiveConfigured means the hospital is unknown or has no archive.
	ErrNoArchiveConfigured = errors.New("no archive configured for hospital")
	// ErrPatientNotFound means no searched archive holds the patient.
	ErrPatientNotFound = errors.New("patient not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Directory resolves hospitals to their imaging archives. Implementations
// must be safe for concurrent reads.
type Directory interface {
	Resolve(ctx context.Context, hospitalID uuid.UUID) (Archive, bool, error)
	Archives(ctx context.Context) ([]Archive, error)
}

// ArchiveClient is the subset of the Orthanc client used here.
type ArchiveClient interface {
	ListPatientIDs(ctx context.Context, t orthanc.Target) ([]string, error)
	GetPatient(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error)
	GetStudy(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error)
	GetSeries(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error)
	GetInstance(ctx context.Context, t orthanc.Target, id string) (orthanc.Record, error)
	ListPatientStudies(ctx context.Context, t orthanc.Target, patientID string) ([]orthanc.Record, error)
	ListStudySeries(ctx context.Context, t orthanc.Target, studyID string) ([]orthanc.Record, error)
	GetStatistics(ctx context.Context, t orthanc.Target) (orthanc.Record, error)
	GetSystem(ctx context.Context, t orthanc.Target) (orthanc.Record, error)
	UploadInstance(ctx context.Context, t orthanc.Target, dicom []byte) (orthanc.Record, error)
	ExportStudy(ctx context.Context, t orthanc.Target, studyID, targetAET string) (orthanc.Record, error)
	Find(ctx context.Context, t orthanc.Target, query orthanc.Record) ([]orthanc.Record, error)
}

// Aggregator assembles patient/study/series trees from hospital archives.
// Sub-resource failures degrade to placeholder nodes; only directory
// failures and unreachable top-level calls surface as errors.
type Aggregator struct {
	dir    Directory
	client ArchiveClient
	mapper *Mapper
	limit  int
	logger zerolog.Logger
}

// NewAggregator builds an Aggregator. maxConcurrency bounds each fan-out;
// zero or less means unbounded.
func NewAggregator(dir Directory, client ArchiveClient, maxConcurrency int, logger zerolog.Logger) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = -1
	}
	logger = logger.With().Str("component", "imaging_aggregator").Logger()
	return &Aggregator{
		dir:    dir,
		client: client,
		mapper: NewMapper(logger),
		limit:  maxConcurrency,
		logger: logger,
	}
}

// ListPatients returns every patient in the hospital's archive, in archive
// order. Patients whose detail fetch fails are returned as placeholders.
func (a *Aggregator) ListPatients(ctx context.Context, hospitalID uuid.UUID) (*PatientList, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	ids, err := a.client.ListPatientIDs(ctx, arch.Target)
	if err != nil {
		return nil, fmt.Errorf("list patients of hospital %s: %w", hospitalID, err)
	}

	patients := make([]*Patient, len(ids))
	g := a.group()
	for i, id := range ids {
		g.Go(func() error {
			rec, err := a.client.GetPatient(ctx, arch.Target, id)
			if err != nil {
				a.degraded(arch, "patient", id, err)
				patients[i] = placeholderPatient(id)
				return nil
			}
			patients[i] = a.mapper.Patient(rec)
			return nil
		})
	}
	_ = g.Wait()

	return &PatientList{
		HospitalID:   arch.HospitalID,
		HospitalName: arch.HospitalName,
		ArchiveURL:   arch.Target.BaseURL,
		Patients:     patients,
	}, nil
}

// PatientDetail returns the full tree of one patient in a known hospital.
func (a *Aggregator) PatientDetail(ctx context.Context, hospitalID uuid.UUID, patientID string) (*PatientResult, error) {
	arch, err := a.resolve(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	p, err := a.patientTree(ctx, arch, patientID)
	if err != nil {
		return nil, err
	}
	return resultFor(arch, p), nil
}

// FindPatient searches every configured archive concurrently and returns the
// first complete answer; the remaining searches are cancelled. When several
// archives hold the same id, whichever answers first wins.
func (a *Aggregator) FindPatient(ctx context.Context, patientID string) (*PatientResult, error) {
	archives, err := a.dir.Archives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	if len(archives) == 0 {
		return nil, ErrPatientNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *PatientResult, len(archives))
	for _, arch := range archives {
		go func(arch Archive) {
			p, err := a.patientTree(ctx, arch, patientID)
			if err != nil {
				if !errors.Is(err, ErrPatientNotFound) && ctx.Err() == nil {
					a.logger.Warn().Err(err).
						Str("hospital_id", arch.HospitalID.String()).
						Str("patient_id", patientID).
						Msg("archive search failed")
				}
				results <- nil
				return
			}
			results <- resultFor(arch, p)
		}(arch)
	}

	for range archives {
		select {
		case r := <-results:
			if r != nil {
				return r, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, ErrPatientNotFound
}

func (a *Aggregator) patientTree(ctx context.Context, arch Archive, patientID string) (*Patient, error) {
	rec, err := a.client.GetPatient(ctx, arch.Target, patientID)
	if err != nil {
		if orthanc.IsNotFound(err) {
			return nil, fmt.Errorf("patient %s: %w", patientID, ErrPatientNotFound)
		}
		return nil, fmt.Errorf("get patient %s: %w", patientID, err)
	}
	p := a.mapper.Patient(rec)
	p.Studies = a.studies(ctx, arch, p.StudyIDs)
	return p, nil
}

// studies fetches every study, then every series of every fetched study.
// Each level is joined before the next one starts.
func (a *Aggregator) studies(ctx context.Context, arch Archive, ids []string) []*Study {
	studies := make([]*Study, len(ids))
	g := a.group()
	for i, id := range ids {
		g.Go(func() error {
			rec, err := a.client.GetStudy(ctx, arch.Target, id)
			if err != nil {
				a.degraded(arch, "study", id, err)
				studies[i] = placeholderStudy(id)
				return nil
			}
			studies[i] = a.mapper.Study(rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range studies {
		if !s.incomplete {
			s.Series = make([]*Series, len(s.SeriesIDs))
		}
	}

	g = a.group()
	for _, s := range studies {
		if s.incomplete {
			continue
		}
		for j, id := range s.SeriesIDs {
			g.Go(func() error {
				s.Series[j] = a.series(ctx, arch, id)
				return nil
			})
		}
	}
	_ = g.Wait()

	return studies
}

func (a *Aggregator) series(ctx context.Context, arch Archive, id string) *Series {
	rec, err := a.client.GetSeries(ctx, arch.Target, id)
	if err != nil {
		a.degraded(arch, "series", id, err)
		return placeholderSeries(id)
	}
	return a.mapper.Series(rec)
}

func (a *Aggregator) resolve(ctx context.Context, hospitalID uuid.UUID) (Archive, error) {
	arch, ok, err := a.dir.Resolve(ctx, hospitalID)
	if err != nil {
		return Archive{}, fmt.Errorf("resolve archive for hospital %s: %w", hospitalID, err)
	}
	if !ok {
		return Archive{}, fmt.Errorf("hospital %s: %w", hospitalID, ErrNoArchiveConfigured)
	}
	return arch, nil
}

func (a *Aggregator) group() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(a.limit)
	return g
}

func (a *Aggregator) degraded(arch Archive, kind, id string, err error) {
	a.logger.Debug().Err(err).
		Str("hospital_id", arch.HospitalID.String()).
		Str("resource", kind).
		Str("id", id).
		Msg("degraded to placeholder")
}

func resultFor(arch Archive, p *Patient) *PatientResult {
	return &PatientResult{
		HospitalID:   arch.HospitalID,
		HospitalName: arch.HospitalName,
		ArchiveURL:   arch.Target.BaseURL,
		Patient:      p,
	}
}
