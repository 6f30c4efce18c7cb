package advice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medcenter/medcenter/internal/platform/db"
)

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// mapWriteError turns a foreign key violation into ErrNotFound.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const adviceSelect = `
	SELECT a.id, a.pathology_id, a.author_id, a.approved_by_id, a.title, a.content, a.summary,
	       a.keywords, a.status, a.public, a.published_at, a.created_at, a.updated_at,
	       p.name, au.last_name || ' ' || au.first_name,
	       CASE WHEN ap.id IS NULL THEN NULL ELSE ap.last_name || ' ' || ap.first_name END
	FROM advice a
	JOIN pathology p ON p.id = a.pathology_id
	JOIN practitioner au ON au.id = a.author_id
	LEFT JOIN practitioner ap ON ap.id = a.approved_by_id`

func (r *repoPG) Create(ctx context.Context, a *Advice) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO advice (id, pathology_id, author_id, title, content, summary, keywords, status, public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PathologyID, a.AuthorID, a.Title, a.Content, a.Summary, a.Keywords, a.Status, a.Public,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapWriteError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Advice, error) {
	return scanAdvice(r.conn(ctx).QueryRow(ctx, adviceSelect+` WHERE a.id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Advice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE advice SET
			pathology_id = $2, title = $3, content = $4, summary = $5, keywords = $6,
			public = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.PathologyID, a.Title, a.Content, a.Summary, a.Keywords, a.Public,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return mapWriteError(err)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedBy *uuid.UUID, publishedAt *time.Time) error {
	return affected(r.conn(ctx).Exec(ctx, `
		UPDATE advice SET
			status = $2,
			approved_by_id = COALESCE($3, approved_by_id),
			published_at = COALESCE($4, published_at),
			updated_at = NOW()
		WHERE id = $1`, id, status, approvedBy, publishedAt))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM advice WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Advice, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if f.PathologyID != nil {
		args = append(args, *f.PathologyID)
		where = append(where, fmt.Sprintf("a.pathology_id = $%d", len(args)))
	}
	if f.PublicOnly {
		where = append(where, "a.public AND a.status = 'published'")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM advice a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`%s%s ORDER BY COALESCE(a.published_at, a.created_at) DESC LIMIT $%d OFFSET $%d`,
		adviceSelect, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []*Advice{}
	for rows.Next() {
		a, err := scanAdvice(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, a)
	}
	return list, total, rows.Err()
}

func scanAdvice(row pgx.Row) (*Advice, error) {
	var a Advice
	err := row.Scan(&a.ID, &a.PathologyID, &a.AuthorID, &a.ApprovedByID, &a.Title, &a.Content, &a.Summary,
		&a.Keywords, &a.Status, &a.Public, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt,
		&a.PathologyName, &a.AuthorName, &a.ApprovedByName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// -- Sections --

func (r *repoPG) AddSection(ctx context.Context, s *Section) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO advice_section (id, advice_id, title, content, position) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.AdviceID, s.Title, s.Content, s.Position)
	return mapWriteError(err)
}

func (r *repoPG) UpdateSection(ctx context.Context, s *Section) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE advice_section SET title = $2, content = $3, position = $4
		WHERE id = $1 RETURNING advice_id`,
		s.ID, s.Title, s.Content, s.Position).Scan(&s.AdviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) DeleteSection(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM advice_section WHERE id = $1`, id))
}

func (r *repoPG) ListSections(ctx context.Context, adviceID uuid.UUID) ([]Section, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, advice_id, title, content, position FROM advice_section
		WHERE advice_id = $1 ORDER BY position, title`, adviceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Section])
}

// -- Resources --

func (r *repoPG) AddResource(ctx context.Context, res *Resource) error {
	res.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO advice_resource (id, advice_id, title, type, url, description) VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.AdviceID, res.Title, res.Type, res.URL, res.Description)
	return mapWriteError(err)
}

func (r *repoPG) UpdateResource(ctx context.Context, res *Resource) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE advice_resource SET title = $2, type = $3, url = $4, description = $5
		WHERE id = $1 RETURNING advice_id`,
		res.ID, res.Title, res.Type, res.URL, res.Description).Scan(&res.AdviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) DeleteResource(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM advice_resource WHERE id = $1`, id))
}

func (r *repoPG) ListResources(ctx context.Context, adviceID uuid.UUID) ([]Resource, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, advice_id, title, type, url, description FROM advice_resource
		WHERE advice_id = $1 ORDER BY title`, adviceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Resource])
}

// -- Recommendations --

func (r *repoPG) AddRecommendation(ctx context.Context, rec *Recommendation) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO advice_recommendation (id, advice_id, text, position) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.AdviceID, rec.Text, rec.Position)
	return mapWriteError(err)
}

func (r *repoPG) UpdateRecommendation(ctx context.Context, rec *Recommendation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE advice_recommendation SET text = $2, position = $3
		WHERE id = $1 RETURNING advice_id`,
		rec.ID, rec.Text, rec.Position).Scan(&rec.AdviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) DeleteRecommendation(ctx context.Context, id uuid.UUID) error {
	return affected(r.conn(ctx).Exec(ctx, `DELETE FROM advice_recommendation WHERE id = $1`, id))
}

func (r *repoPG) ListRecommendations(ctx context.Context, adviceID uuid.UUID) ([]Recommendation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, advice_id, text, position FROM advice_recommendation
		WHERE advice_id = $1 ORDER BY position`, adviceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Recommendation])
}
