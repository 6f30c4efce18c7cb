package hospital

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/domain/imaging"
	"github.com/medcenter/medcenter/internal/platform/db"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Service struct {
	repo Repository
	txs  db.TxBeginner
}

// NewService builds the hospital service. txs may be nil, in which case
// multi-step operations run without a transaction.
func NewService(repo Repository, txs db.TxBeginner) *Service {
	return &Service{repo: repo, txs: txs}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txs == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txs, fn)
}

var _ imaging.Directory = (*Service)(nil)

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return invalid("hospital name is required")
	}
	h.Active = true
	return s.repo.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateHospital(ctx context.Context, h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return invalid("hospital name is required")
	}
	return s.repo.Update(ctx, h)
}

func (s *Service) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// -- DICOM servers --

func (s *Service) AddServer(ctx context.Context, hospitalID uuid.UUID, in DicomServerInput) (*DicomServer, error) {
	srv := in.toServer(hospitalID)
	if srv.Host == "" {
		return nil, invalid("host is required")
	}
	if srv.Port <= 0 || srv.Port > 65535 {
		return nil, invalid("port must be between 1 and 65535, got %d", srv.Port)
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, hospitalID); err != nil {
			return err
		}
		return s.repo.AddServer(ctx, srv)
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (s *Service) ListServers(ctx context.Context, hospitalID uuid.UUID) ([]*DicomServer, error) {
	if _, err := s.repo.GetByID(ctx, hospitalID); err != nil {
		return nil, err
	}
	return s.repo.ListServers(ctx, hospitalID)
}

func (s *Service) DeleteServer(ctx context.Context, hospitalID, serverID uuid.UUID) error {
	return s.repo.DeleteServer(ctx, hospitalID, serverID)
}

// DicomURL returns the base URL of the archive that serves the hospital,
// or ErrNotFound when the hospital has no DICOM server.
func (s *Service) DicomURL(ctx context.Context, hospitalID uuid.UUID) (string, error) {
	arch, ok, err := s.Resolve(ctx, hospitalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return arch.Target.BaseURL, nil
}

// Resolve implements imaging.Directory. Unknown and inactive hospitals,
// and hospitals without a server, resolve to no archive.
func (s *Service) Resolve(ctx context.Context, hospitalID uuid.UUID) (imaging.Archive, bool, error) {
	h, err := s.repo.GetByID(ctx, hospitalID)
	if errors.Is(err, ErrNotFound) {
		return imaging.Archive{}, false, nil
	}
	if err != nil {
		return imaging.Archive{}, false, fmt.Errorf("load hospital %s: %w", hospitalID, err)
	}
	if !h.Active {
		return imaging.Archive{}, false, nil
	}

	servers, err := s.repo.ListServers(ctx, hospitalID)
	if err != nil {
		return imaging.Archive{}, false, fmt.Errorf("load dicom servers of %s: %w", hospitalID, err)
	}
	if len(servers) == 0 {
		return imaging.Archive{}, false, nil
	}
	return archiveOf(h, servers[0]), true, nil
}

// Archives implements imaging.Directory.
func (s *Service) Archives(ctx context.Context) ([]imaging.Archive, error) {
	pairs, err := s.repo.PrimaryServers(ctx)
	if err != nil {
		return nil, err
	}
	archives := make([]imaging.Archive, 0, len(pairs))
	for _, p := range pairs {
		archives = append(archives, archiveOf(p.Hospital, p.Server))
	}
	return archives, nil
}

func archiveOf(h *Hospital, srv *DicomServer) imaging.Archive {
	return imaging.Archive{
		HospitalID:   h.ID,
		HospitalName: h.Name,
		Target:       srv.Target(h.Name),
	}
}
