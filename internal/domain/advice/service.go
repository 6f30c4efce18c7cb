package advice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medcenter/medcenter/internal/domain/clinical"
	"github.com/medcenter/medcenter/internal/domain/pathology"
	"github.com/medcenter/medcenter/internal/platform/db"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// PathologyLookup resolves the pathology an advice is attached to.
type PathologyLookup interface {
	GetPathology(ctx context.Context, id uuid.UUID) (*pathology.Pathology, error)
}

// PractitionerLookup resolves authors and approvers.
type PractitionerLookup interface {
	GetPractitioner(ctx context.Context, id uuid.UUID) (*clinical.Practitioner, error)
}

type Service struct {
	repo          Repository
	pathologies   PathologyLookup
	practitioners PractitionerLookup
	txs           db.TxBeginner
	now           func() time.Time
}

// NewService builds the advice service. txs may be nil, in which case
// multi-step writes run without a transaction.
func NewService(repo Repository, pathologies PathologyLookup, practitioners PractitionerLookup, txs db.TxBeginner) *Service {
	return &Service{repo: repo, pathologies: pathologies, practitioners: practitioners, txs: txs, now: time.Now}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txs == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.txs, fn)
}

// Create stores a draft advice for an existing pathology and author.
func (s *Service) Create(ctx context.Context, a *Advice) error {
	if err := normalize(a); err != nil {
		return err
	}
	if a.AuthorID == uuid.Nil {
		return invalid("author_id is required")
	}
	a.Status = StatusDraft
	a.ApprovedByID = nil
	a.PublishedAt = nil
	if a.Public == nil {
		public := false
		a.Public = &public
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		p, err := s.requirePathology(ctx, a.PathologyID)
		if err != nil {
			return err
		}
		author, err := s.requirePractitioner(ctx, a.AuthorID, "author")
		if err != nil {
			return err
		}
		a.PathologyName, a.AuthorName = p.Name, author.FullName()
		return s.repo.Create(ctx, a)
	})
}

// Get returns the advice with its sections, resources and recommendations.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Advice, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Sections, err = s.repo.ListSections(ctx, id); err != nil {
		return nil, fmt.Errorf("list sections of advice %s: %w", id, err)
	}
	if a.Resources, err = s.repo.ListResources(ctx, id); err != nil {
		return nil, fmt.Errorf("list resources of advice %s: %w", id, err)
	}
	if a.Recommendations, err = s.repo.ListRecommendations(ctx, id); err != nil {
		return nil, fmt.Errorf("list recommendations of advice %s: %w", id, err)
	}
	return a, nil
}

// GetPublic is Get restricted to advice visible without authentication.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*Advice, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsPublic() {
		return nil, ErrNotFound
	}
	return a, nil
}

// Update rewrites the editable fields. Status changes go through ChangeStatus.
func (s *Service) Update(ctx context.Context, a *Advice) error {
	if err := normalize(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		if a.Public == nil {
			a.Public = current.Public
		}
		if a.PathologyID != current.PathologyID {
			if _, err := s.requirePathology(ctx, a.PathologyID); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, a)
	})
}

// ChangeStatus moves the advice through the editorial workflow. Publishing
// stamps the publication time and records the approver when given.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to Status, approvedBy *uuid.UUID) (*Advice, error) {
	if !validStatuses[to] {
		return nil, invalid("invalid status: %s", to)
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return invalid("cannot move advice from %s to %s", current.Status, to)
		}
		var publishedAt *time.Time
		if to == StatusPublished {
			now := s.now().UTC()
			publishedAt = &now
			if approvedBy != nil {
				if _, err := s.requirePractitioner(ctx, *approvedBy, "approver"); err != nil {
					return err
				}
			}
		} else {
			approvedBy = nil
		}
		return s.repo.UpdateStatus(ctx, id, to, approvedBy, publishedAt)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Advice, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, invalid("invalid status: %s", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// ListPublic returns published advice flagged public.
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]*Advice, int, error) {
	return s.repo.List(ctx, Filter{PublicOnly: true}, limit, offset)
}

func (s *Service) ListByPathology(ctx context.Context, pathologyID uuid.UUID, limit, offset int) ([]*Advice, int, error) {
	if _, err := s.pathologies.GetPathology(ctx, pathologyID); err != nil {
		if errors.Is(err, pathology.ErrNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return s.repo.List(ctx, Filter{PathologyID: &pathologyID}, limit, offset)
}

// -- Sections --

func (s *Service) ListSections(ctx context.Context, adviceID uuid.UUID) ([]Section, error) {
	if _, err := s.repo.GetByID(ctx, adviceID); err != nil {
		return nil, err
	}
	return s.repo.ListSections(ctx, adviceID)
}

func (s *Service) AddSection(ctx context.Context, sec *Section) error {
	if err := validateSection(sec); err != nil {
		return err
	}
	return s.repo.AddSection(ctx, sec)
}

func (s *Service) UpdateSection(ctx context.Context, sec *Section) error {
	if err := validateSection(sec); err != nil {
		return err
	}
	return s.repo.UpdateSection(ctx, sec)
}

func (s *Service) DeleteSection(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteSection(ctx, id)
}

func validateSection(sec *Section) error {
	sec.Title = strings.TrimSpace(sec.Title)
	if sec.Title == "" {
		return invalid("section title is required")
	}
	if sec.Position < 0 {
		return invalid("position must not be negative")
	}
	return nil
}

// -- Resources --

func (s *Service) ListResources(ctx context.Context, adviceID uuid.UUID) ([]Resource, error) {
	if _, err := s.repo.GetByID(ctx, adviceID); err != nil {
		return nil, err
	}
	return s.repo.ListResources(ctx, adviceID)
}

func (s *Service) AddResource(ctx context.Context, r *Resource) error {
	if err := validateResource(r); err != nil {
		return err
	}
	return s.repo.AddResource(ctx, r)
}

func (s *Service) UpdateResource(ctx context.Context, r *Resource) error {
	if err := validateResource(r); err != nil {
		return err
	}
	return s.repo.UpdateResource(ctx, r)
}

func (s *Service) DeleteResource(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteResource(ctx, id)
}

func validateResource(r *Resource) error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return invalid("resource title is required")
	}
	if r.Type == "" {
		r.Type = ResourceLink
	}
	if !validResourceTypes[r.Type] {
		return invalid("invalid resource type: %s", r.Type)
	}
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url must be an absolute http(s) URL")
	}
	r.URL = u.String()
	return nil
}

// -- Recommendations --

func (s *Service) ListRecommendations(ctx context.Context, adviceID uuid.UUID) ([]Recommendation, error) {
	if _, err := s.repo.GetByID(ctx, adviceID); err != nil {
		return nil, err
	}
	return s.repo.ListRecommendations(ctx, adviceID)
}

func (s *Service) AddRecommendation(ctx context.Context, r *Recommendation) error {
	if err := validateRecommendation(r); err != nil {
		return err
	}
	return s.repo.AddRecommendation(ctx, r)
}

func (s *Service) UpdateRecommendation(ctx context.Context, r *Recommendation) error {
	if err := validateRecommendation(r); err != nil {
		return err
	}
	return s.repo.UpdateRecommendation(ctx, r)
}

func (s *Service) DeleteRecommendation(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRecommendation(ctx, id)
}

func validateRecommendation(r *Recommendation) error {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return invalid("recommendation text is required")
	}
	if r.Position < 0 {
		return invalid("position must not be negative")
	}
	return nil
}

func normalize(a *Advice) error {
	a.Title = strings.TrimSpace(a.Title)
	a.Content = strings.TrimSpace(a.Content)
	if a.Title == "" || a.Content == "" {
		return invalid("title and content are required")
	}
	if a.PathologyID == uuid.Nil {
		return invalid("pathology_id is required")
	}
	return nil
}

func (s *Service) requirePathology(ctx context.Context, id uuid.UUID) (*pathology.Pathology, error) {
	p, err := s.pathologies.GetPathology(ctx, id)
	if errors.Is(err, pathology.ErrNotFound) {
		return nil, invalid("pathology %s does not exist", id)
	}
	return p, err
}

func (s *Service) requirePractitioner(ctx context.Context, id uuid.UUID, role string) (*clinical.Practitioner, error) {
	p, err := s.practitioners.GetPractitioner(ctx, id)
	if errors.Is(err, clinical.ErrNotFound) {
		return nil, invalid("%s %s does not exist", role, id)
	}
	return p, err
}
