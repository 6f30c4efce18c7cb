package advice

import (
	"time"

	"github.com/google/uuid"
)

// Status is the editorial state of a piece of advice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusInReview  Status = "in_review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusInReview: true, StatusPublished: true, StatusArchived: true,
}

// transitions lists the states reachable from each state.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusInReview, StatusArchived},
	StatusInReview:  {StatusDraft, StatusPublished, StatusArchived},
	StatusPublished: {StatusArchived, StatusDraft},
	StatusArchived:  {StatusDraft},
}

// CanTransition reports whether advice in state from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Advice maps to the advice table.
type Advice struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PathologyID  uuid.UUID  `db:"pathology_id" json:"pathology_id"`
	AuthorID     uuid.UUID  `db:"author_id" json:"author_id"`
	ApprovedByID *uuid.UUID `db:"approved_by_id" json:"approved_by_id,omitempty"`
	Title        string     `db:"title" json:"title"`
	Content      string     `db:"content" json:"content"`
	Summary      *string    `db:"summary" json:"summary,omitempty"`
	Keywords     *string    `db:"keywords" json:"keywords,omitempty"`
	Status       Status     `db:"status" json:"status"`
	Public       *bool      `db:"public" json:"public"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	// Filled on reads.
	PathologyName   string           `json:"pathology_name,omitempty"`
	AuthorName      string           `json:"author_name,omitempty"`
	ApprovedByName  *string          `json:"approved_by_name,omitempty"`
	Sections        []Section        `json:"sections,omitempty"`
	Resources       []Resource       `json:"resources,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// IsPublic reports whether the advice is visible without authentication.
func (a *Advice) IsPublic() bool {
	return a.Status == StatusPublished && a.Public != nil && *a.Public
}

type Section struct {
	ID       uuid.UUID `db:"id" json:"id"`
	AdviceID uuid.UUID `db:"advice_id" json:"advice_id"`
	Title    string    `db:"title" json:"title"`
	Content  string    `db:"content" json:"content"`
	Position int       `db:"position" json:"position"`
}

type ResourceType string

const (
	ResourceLink  ResourceType = "link"
	ResourcePDF   ResourceType = "pdf"
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

var validResourceTypes = map[ResourceType]bool{
	ResourceLink: true, ResourcePDF: true, ResourceImage: true, ResourceVideo: true,
}

type Resource struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	AdviceID    uuid.UUID    `db:"advice_id" json:"advice_id"`
	Title       string       `db:"title" json:"title"`
	Type        ResourceType `db:"type" json:"type"`
	URL         string       `db:"url" json:"url"`
	Description *string      `db:"description" json:"description,omitempty"`
}

type Recommendation struct {
	ID       uuid.UUID `db:"id" json:"id"`
	AdviceID uuid.UUID `db:"advice_id" json:"advice_id"`
	Text     string    `db:"text" json:"text"`
	Position int       `db:"position" json:"position"`
}

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	Status      Status
	PathologyID *uuid.UUID
	PublicOnly  bool
}
