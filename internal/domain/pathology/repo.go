package pathology

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlugTaken = errors.New("slug already in use")
)

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	Update(ctx context.Context, c *Category) error
	// Delete removes the category and, by cascade, its pathologies.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool) ([]*Category, error)
}

type PathologyRepository interface {
	Create(ctx context.Context, p *Pathology) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pathology, error)
	GetBySlug(ctx context.Context, slug string) (*Pathology, error)
	Update(ctx context.Context, p *Pathology) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, publishedOnly bool) ([]*Pathology, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]*Pathology, error)

	// Related pathologies are directed links from one pathology to others.
	Related(ctx context.Context, id uuid.UUID) ([]Ref, error)
	SetRelated(ctx context.Context, id uuid.UUID, related []uuid.UUID) error
}
