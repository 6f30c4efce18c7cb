package pathology

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category groups pathologies for browsing.
type Category struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Icon        *string   `db:"icon" json:"icon,omitempty"`
	Position    int       `db:"position" json:"position"`
	Active      *bool     `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Pathologies []Ref `json:"pathologies,omitempty"`
}

type Pathology struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CategoryID   uuid.UUID `db:"category_id" json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	Name         string    `db:"name" json:"name"`
	Slug         string    `db:"slug" json:"slug"`
	Description  *string   `db:"description" json:"description,omitempty"`
	Icon         *string   `db:"icon" json:"icon,omitempty"`
	Position     int       `db:"position" json:"position"`
	Published    bool      `db:"published" json:"published"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	Related []Ref `json:"related,omitempty"`
}

// Ref is the short form of a pathology used in listings.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

func (p *Pathology) Ref() Ref {
	return Ref{ID: p.ID, Name: p.Name, Slug: p.Slug}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is lower-case ASCII words joined by hyphens.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Slugify derives a slug from a display name: accents are dropped and
// every run of other characters becomes one hyphen.
// "Hypertension artérielle" gives "hypertension-arterielle".
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
