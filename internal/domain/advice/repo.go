package advice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("advice not found")

type Repository interface {
	Create(ctx context.Context, a *Advice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Advice, error)
	Update(ctx context.Context, a *Advice) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedBy *uuid.UUID, publishedAt *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Advice, int, error)

	AddSection(ctx context.Context, s *Section) error
	UpdateSection(ctx context.Context, s *Section) error
	DeleteSection(ctx context.Context, id uuid.UUID) error
	ListSections(ctx context.Context, adviceID uuid.UUID) ([]Section, error)

	AddResource(ctx context.Context, r *Resource) error
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id uuid.UUID) error
	ListResources(ctx context.Context, adviceID uuid.UUID) ([]Resource, error)

	AddRecommendation(ctx context.Context, r *Recommendation) error
	UpdateRecommendation(ctx context.Context, r *Recommendation) error
	DeleteRecommendation(ctx context.Context, id uuid.UUID) error
	ListRecommendations(ctx context.Context, adviceID uuid.UUID) ([]Recommendation, error)
}
