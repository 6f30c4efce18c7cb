package hospital

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Repository defines the persistence interface for hospitals and their
// DICOM servers.
type Repository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)

	AddServer(ctx context.Context, s *DicomServer) error
	ListServers(ctx context.Context, hospitalID uuid.UUID) ([]*DicomServer, error)
	DeleteServer(ctx context.Context, hospitalID, serverID uuid.UUID) error
	// PrimaryServers returns, for every active hospital with at least one
	// server, its oldest server, ordered by hospital name.
	PrimaryServers(ctx context.Context) ([]*HospitalServer, error)
}

// HospitalServer pairs a hospital with the server its archive lives on.
type HospitalServer struct {
	Hospital *Hospital
	Server   *DicomServer
}
