package pathology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/platform/db"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Service struct {
	categories  CategoryRepository
	pathologies PathologyRepository
	txs         db.TxBeginner
}

// NewService builds the pathology catalog service. txs may be nil, in
// which case multi-step writes run without a transaction.
func NewService(categories CategoryRepository, pathologies PathologyRepository, txs db.TxBeginner) *Service {
	return &Service{categories: categories, pathologies: pathologies, txs: txs}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txs == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txs, fn)
}

// -- Category --

// CreateCategory stores c. A category is active unless told otherwise.
func (s *Service) CreateCategory(ctx context.Context, c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("category name is required")
	}
	if c.Active == nil {
		active := true
		c.Active = &active
	}
	return s.categories.Create(ctx, c)
}

// GetCategory returns the category with the short form of its pathologies.
func (s *Service) GetCategory(ctx context.Context, id uuid.UUID) (*Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.pathologies.ListByCategory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list pathologies of category %s: %w", id, err)
	}
	c.Pathologies = make([]Ref, 0, len(list))
	for _, p := range list {
		c.Pathologies = append(c.Pathologies, p.Ref())
	}
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return invalid("category name is required")
	}
	if c.Active == nil {
		return invalid("active is required")
	}
	return s.categories.Update(ctx, c)
}

func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.categories.Delete(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]*Category, error) {
	return s.categories.List(ctx, activeOnly)
}

func (s *Service) ListCategoryPathologies(ctx context.Context, categoryID uuid.UUID) ([]*Pathology, error) {
	if _, err := s.categories.GetByID(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.pathologies.ListByCategory(ctx, categoryID)
}

// -- Pathology --

// CreatePathology stores p. The slug is derived from the name when empty.
func (s *Service) CreatePathology(ctx context.Context, p *Pathology) error {
	if err := s.normalize(p); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.requireCategory(ctx, p.CategoryID); err != nil {
			return err
		}
		return s.pathologies.Create(ctx, p)
	})
}

func (s *Service) GetPathology(ctx context.Context, id uuid.UUID) (*Pathology, error) {
	p, err := s.pathologies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withRelated(ctx, p)
}

func (s *Service) GetPathologyBySlug(ctx context.Context, slug string) (*Pathology, error) {
	p, err := s.pathologies.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	return s.withRelated(ctx, p)
}

func (s *Service) withRelated(ctx context.Context, p *Pathology) (*Pathology, error) {
	related, err := s.pathologies.Related(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load related pathologies of %s: %w", p.ID, err)
	}
	p.Related = related
	return p, nil
}

func (s *Service) UpdatePathology(ctx context.Context, p *Pathology) error {
	if err := s.normalize(p); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.requireCategory(ctx, p.CategoryID); err != nil {
			return err
		}
		return s.pathologies.Update(ctx, p)
	})
}

func (s *Service) DeletePathology(ctx context.Context, id uuid.UUID) error {
	return s.pathologies.Delete(ctx, id)
}

func (s *Service) ListPathologies(ctx context.Context, publishedOnly bool) ([]*Pathology, error) {
	return s.pathologies.List(ctx, publishedOnly)
}

// SetRelated replaces the pathologies linked from id.
func (s *Service) SetRelated(ctx context.Context, id uuid.UUID, related []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(related))
	ids := make([]uuid.UUID, 0, len(related))
	for _, r := range related {
		if r == id {
			return invalid("a pathology cannot be related to itself")
		}
		if !seen[r] {
			seen[r] = true
			ids = append(ids, r)
		}
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.pathologies.GetByID(ctx, id); err != nil {
			return err
		}
		for _, r := range ids {
			if _, err := s.pathologies.GetByID(ctx, r); errors.Is(err, ErrNotFound) {
				return invalid("related pathology %s does not exist", r)
			} else if err != nil {
				return err
			}
		}
		return s.pathologies.SetRelated(ctx, id, ids)
	})
}

func (s *Service) normalize(p *Pathology) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("pathology name is required")
	}
	if p.CategoryID == uuid.Nil {
		return invalid("category_id is required")
	}
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if !ValidSlug(p.Slug) {
		return invalid("slug %q must be lower-case words separated by hyphens", p.Slug)
	}
	return nil
}

func (s *Service) requireCategory(ctx context.Context, id uuid.UUID) error {
	_, err := s.categories.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return invalid("category %s does not exist", id)
	}
	return err
}
