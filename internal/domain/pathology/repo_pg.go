package pathology

import (
	"context"
	"errors"

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Category --

type categoryRepoPG struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepoPG{pool: pool}
}

const categoryColumns = `id, name, description, icon, position, active, created_at, updated_at`

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	c.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pathology_category (id, name, description, icon, position, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, c.Icon, c.Position, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	return scanCategory(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM pathology_category WHERE id = $1`, id))
}

func (r *categoryRepoPG) Update(ctx context.Context, c *Category) error {
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		UPDATE pathology_category SET
			name = $2, description = $3, icon = $4, position = $5, active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, c.Icon, c.Position, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *categoryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM pathology_category WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *categoryRepoPG) List(ctx context.Context, activeOnly bool) ([]*Category, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+categoryColumns+` FROM pathology_category
		WHERE active OR NOT $1
		ORDER BY position, name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []*Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Position, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -- Pathology --

type pathologyRepoPG struct {
	pool *pgxpool.Pool
}

func NewPathologyRepo(pool *pgxpool.Pool) PathologyRepository {
	return &pathologyRepoPG{pool: pool}
}

const pathologySelect = `
	SELECT p.id, p.category_id, c.name, p.name, p.slug, p.description, p.icon, p.position,
	       p.published, p.created_at, p.updated_at
	FROM pathology p
	JOIN pathology_category c ON c.id = p.category_id`

func (r *pathologyRepoPG) Create(ctx context.Context, p *Pathology) error {
	p.ID = uuid.New()
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pathology (id, category_id, name, slug, description, icon, position, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Icon, p.Position, p.Published,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapWriteError(err)
}

func (r *pathologyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pathology, error) {
	return scanPathology(connFor(ctx, r.pool).QueryRow(ctx, pathologySelect+` WHERE p.id = $1`, id))
}

func (r *pathologyRepoPG) GetBySlug(ctx context.Context, slug string) (*Pathology, error) {
	return scanPathology(connFor(ctx, r.pool).QueryRow(ctx, pathologySelect+` WHERE p.slug = $1`, slug))
}

func (r *pathologyRepoPG) Update(ctx context.Context, p *Pathology) error {
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		UPDATE pathology SET
			category_id = $2, name = $3, slug = $4, description = $5, icon = $6,
			position = $7, published = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.CategoryID, p.Name, p.Slug, p.Description, p.Icon, p.Position, p.Published,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return mapWriteError(err)
}

func (r *pathologyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `DELETE FROM pathology WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pathologyRepoPG) List(ctx context.Context, publishedOnly bool) ([]*Pathology, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		pathologySelect+` WHERE p.published OR NOT $1 ORDER BY c.position, p.position, p.name`, publishedOnly)
	if err != nil {
		return nil, err
	}
	return collectPathologies(rows)
}

func (r *pathologyRepoPG) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]*Pathology, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		pathologySelect+` WHERE p.category_id = $1 ORDER BY p.position, p.name`, categoryID)
	if err != nil {
		return nil, err
	}
	return collectPathologies(rows)
}

func (r *pathologyRepoPG) Related(ctx context.Context, id uuid.UUID) ([]Ref, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT p.id, p.name, p.slug
		FROM pathology_relation rel
		JOIN pathology p ON p.id = rel.target_id
		WHERE rel.source_id = $1
		ORDER BY p.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []Ref{}
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Slug); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SetRelated replaces the links of id. Callers run it in a transaction.
func (r *pathologyRepoPG) SetRelated(ctx context.Context, id uuid.UUID, related []uuid.UUID) error {
	q := connFor(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM pathology_relation WHERE source_id = $1`, id); err != nil {
		return err
	}
	if len(related) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		INSERT INTO pathology_relation (source_id, target_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, id, related)
	return mapWriteError(err)
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrSlugTaken
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func scanPathology(row pgx.Row) (*Pathology, error) {
	var p Pathology
	err := row.Scan(&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Slug, &p.Description, &p.Icon,
		&p.Position, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPathologies(rows pgx.Rows) ([]*Pathology, error) {
	defer rows.Close()
	list := []*Pathology{}
	for rows.Next() {
		p, err := scanPathology(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
