package pathology

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type mockCategoryRepo struct {
	items map[uuid.UUID]*Category
	// pathologies is shared with the pathology mock so a category delete
	// cascades.
	pathologies map[uuid.UUID]*Pathology
}

func (m *mockCategoryRepo) Create(_ context.Context, c *Category) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.items[c.ID] = c
	return nil
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Category, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCategoryRepo) Update(_ context.Context, c *Category) error {
	if _, ok := m.items[c.ID]; !ok {
		return ErrNotFound
	}
	m.items[c.ID] = c
	return nil
}

func (m *mockCategoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	for pid, p := range m.pathologies {
		if p.CategoryID == id {
			delete(m.pathologies, pid)
		}
	}
	return nil
}

func (m *mockCategoryRepo) List(_ context.Context, activeOnly bool) ([]*Category, error) {
	out := []*Category{}
	for _, c := range m.items {
		if activeOnly && (c.Active == nil || !*c.Active) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type mockPathologyRepo struct {
	items   map[uuid.UUID]*Pathology
	related map[uuid.UUID][]uuid.UUID
}

func (m *mockPathologyRepo) slugTaken(slug string, except uuid.UUID) bool {
	for id, p := range m.items {
		if id != except && p.Slug == slug {
			return true
		}
	}
	return false
}

func (m *mockPathologyRepo) Create(_ context.Context, p *Pathology) error {
	if m.slugTaken(p.Slug, uuid.Nil) {
		return ErrSlugTaken
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.items[p.ID] = p
	return nil
}

func (m *mockPathologyRepo) GetByID(_ context.Context, id uuid.UUID) (*Pathology, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPathologyRepo) GetBySlug(_ context.Context, slug string) (*Pathology, error) {
	for _, p := range m.items {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPathologyRepo) Update(_ context.Context, p *Pathology) error {
	if _, ok := m.items[p.ID]; !ok {
		return ErrNotFound
	}
	if m.slugTaken(p.Slug, p.ID) {
		return ErrSlugTaken
	}
	m.items[p.ID] = p
	return nil
}

func (m *mockPathologyRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockPathologyRepo) List(_ context.Context, publishedOnly bool) ([]*Pathology, error) {
	return m.filter(func(p *Pathology) bool { return p.Published || !publishedOnly }), nil
}

func (m *mockPathologyRepo) ListByCategory(_ context.Context, categoryID uuid.UUID) ([]*Pathology, error) {
	return m.filter(func(p *Pathology) bool { return p.CategoryID == categoryID }), nil
}

func (m *mockPathologyRepo) filter(keep func(*Pathology) bool) []*Pathology {
	out := []*Pathology{}
	for _, p := range m.items {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *mockPathologyRepo) Related(_ context.Context, id uuid.UUID) ([]Ref, error) {
	refs := []Ref{}
	for _, r := range m.related[id] {
		if p, ok := m.items[r]; ok {
			refs = append(refs, p.Ref())
		}
	}
	return refs, nil
}

func (m *mockPathologyRepo) SetRelated(_ context.Context, id uuid.UUID, related []uuid.UUID) error {
	m.related[id] = append([]uuid.UUID{}, related...)
	return nil
}

func newTestService() (*Service, *mockCategoryRepo, *mockPathologyRepo) {
	pathologies := &mockPathologyRepo{
		items:   make(map[uuid.UUID]*Pathology),
		related: make(map[uuid.UUID][]uuid.UUID),
	}
	categories := &mockCategoryRepo{items: make(map[uuid.UUID]*Category), pathologies: pathologies.items}
	return NewService(categories, pathologies, nil), categories, pathologies
}
