package advice

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/domain/clinical"
	"github.com/medcenter/medcenter/internal/domain/pathology"
)

type mockRepo struct {
	items           map[uuid.UUID]*Advice
	sections        map[uuid.UUID]*Section
	resources       map[uuid.UUID]*Resource
	recommendations map[uuid.UUID]*Recommendation
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:           make(map[uuid.UUID]*Advice),
		sections:        make(map[uuid.UUID]*Section),
		resources:       make(map[uuid.UUID]*Resource),
		recommendations: make(map[uuid.UUID]*Recommendation),
	}
}

func (m *mockRepo) Create(_ context.Context, a *Advice) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Advice, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, a *Advice) error {
	cur, ok := m.items[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.PathologyID, cur.Title, cur.Content = a.PathologyID, a.Title, a.Content
	cur.Summary, cur.Keywords, cur.Public = a.Summary, a.Keywords, a.Public
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, approvedBy *uuid.UUID, publishedAt *time.Time) error {
	cur, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	cur.Status = status
	if approvedBy != nil {
		cur.ApprovedByID = approvedBy
	}
	if publishedAt != nil {
		cur.PublishedAt = publishedAt
	}
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Advice, int, error) {
	all := []*Advice{}
	for _, a := range m.items {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.PathologyID != nil && a.PathologyID != *f.PathologyID {
			continue
		}
		if f.PublicOnly && !a.IsPublic() {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	total := len(all)
	if offset >= total {
		return []*Advice{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) AddSection(_ context.Context, s *Section) error {
	if _, ok := m.items[s.AdviceID]; !ok {
		return ErrNotFound
	}
	s.ID = uuid.New()
	cp := *s
	m.sections[s.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateSection(_ context.Context, s *Section) error {
	cur, ok := m.sections[s.ID]
	if !ok {
		return ErrNotFound
	}
	s.AdviceID = cur.AdviceID
	*cur = *s
	return nil
}

func (m *mockRepo) DeleteSection(_ context.Context, id uuid.UUID) error {
	if _, ok := m.sections[id]; !ok {
		return ErrNotFound
	}
	delete(m.sections, id)
	return nil
}

func (m *mockRepo) ListSections(_ context.Context, adviceID uuid.UUID) ([]Section, error) {
	out := []Section{}
	for _, s := range m.sections {
		if s.AdviceID == adviceID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockRepo) AddResource(_ context.Context, r *Resource) error {
	if _, ok := m.items[r.AdviceID]; !ok {
		return ErrNotFound
	}
	r.ID = uuid.New()
	cp := *r
	m.resources[r.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateResource(_ context.Context, r *Resource) error {
	cur, ok := m.resources[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.AdviceID = cur.AdviceID
	*cur = *r
	return nil
}

func (m *mockRepo) DeleteResource(_ context.Context, id uuid.UUID) error {
	if _, ok := m.resources[id]; !ok {
		return ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

func (m *mockRepo) ListResources(_ context.Context, adviceID uuid.UUID) ([]Resource, error) {
	out := []Resource{}
	for _, r := range m.resources {
		if r.AdviceID == adviceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *mockRepo) AddRecommendation(_ context.Context, r *Recommendation) error {
	if _, ok := m.items[r.AdviceID]; !ok {
		return ErrNotFound
	}
	r.ID = uuid.New()
	cp := *r
	m.recommendations[r.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateRecommendation(_ context.Context, r *Recommendation) error {
	cur, ok := m.recommendations[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.AdviceID = cur.AdviceID
	*cur = *r
	return nil
}

func (m *mockRepo) DeleteRecommendation(_ context.Context, id uuid.UUID) error {
	if _, ok := m.recommendations[id]; !ok {
		return ErrNotFound
	}
	delete(m.recommendations, id)
	return nil
}

func (m *mockRepo) ListRecommendations(_ context.Context, adviceID uuid.UUID) ([]Recommendation, error) {
	out := []Recommendation{}
	for _, r := range m.recommendations {
		if r.AdviceID == adviceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

type mockPathologies map[uuid.UUID]*pathology.Pathology

func (m mockPathologies) GetPathology(_ context.Context, id uuid.UUID) (*pathology.Pathology, error) {
	p, ok := m[id]
	if !ok {
		return nil, pathology.ErrNotFound
	}
	return p, nil
}

type mockPractitioners map[uuid.UUID]*clinical.Practitioner

func (m mockPractitioners) GetPractitioner(_ context.Context, id uuid.UUID) (*clinical.Practitioner, error) {
	p, ok := m[id]
	if !ok {
		return nil, clinical.ErrNotFound
	}
	return p, nil
}

// fixture holds one known pathology and two practitioners.
type fixture struct {
	svc       *Service
	repo      *mockRepo
	pathology uuid.UUID
	author    uuid.UUID
	reviewer  uuid.UUID
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMockRepo(),
		pathology: uuid.New(),
		author:    uuid.New(),
		reviewer:  uuid.New(),
		now:       time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC),
	}
	paths := mockPathologies{f.pathology: {ID: f.pathology, Name: "Diabète", Slug: "diabete"}}
	pracs := mockPractitioners{
		f.author:   {ID: f.author, FirstName: "Fatou", LastName: "Sow"},
		f.reviewer: {ID: f.reviewer, FirstName: "Moussa", LastName: "Fall"},
	}
	f.svc = NewService(f.repo, paths, pracs, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}
