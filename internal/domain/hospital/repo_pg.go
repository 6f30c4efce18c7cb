package hospital

import (
	"context"
	"errors"
	"fmt"

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

const hospitalColumns = `id, name, code, address, phone, email, active, created_at, updated_at`

const serverColumns = `id, hospital_id, name, host, port, username, password, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital (id, name, code, address, phone, email, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		h.ID, h.Name, h.Code, h.Address, h.Phone, h.Email, h.Active,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalColumns+` FROM hospital WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, h *Hospital) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE hospital SET
			name = $2, code = $3, address = $4, phone = $5, email = $6, active = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		h.ID, h.Name, h.Code, h.Address, h.Phone, h.Email, h.Active,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospital WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+hospitalColumns+` FROM hospital ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	hospitals := []*Hospital{}
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		hospitals = append(hospitals, h)
	}
	return hospitals, total, rows.Err()
}

func (r *repoPG) AddServer(ctx context.Context, s *DicomServer) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dicom_server (id, hospital_id, name, host, port, username, password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.HospitalID, s.Name, s.Host, s.Port, s.Username, s.Password,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) ListServers(ctx context.Context, hospitalID uuid.UUID) ([]*DicomServer, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+serverColumns+` FROM dicom_server WHERE hospital_id = $1 ORDER BY created_at, id`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []*DicomServer{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (r *repoPG) DeleteServer(ctx context.Context, hospitalID, serverID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM dicom_server WHERE id = $1 AND hospital_id = $2`, serverID, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) PrimaryServers(ctx context.Context) ([]*HospitalServer, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT h.id, h.name, h.code, h.address, h.phone, h.email, h.active, h.created_at, h.updated_at,
		       s.id, s.hospital_id, s.name, s.host, s.port, s.username, s.password, s.created_at, s.updated_at
		FROM hospital h
		JOIN LATERAL (
			SELECT * FROM dicom_server d
			WHERE d.hospital_id = h.id
			ORDER BY d.created_at, d.id
			LIMIT 1
		) s ON TRUE
		WHERE h.active
		ORDER BY h.name, h.id`)
	if err != nil {
		return nil, fmt.Errorf("query archives: %w", err)
	}
	defer rows.Close()

	var out []*HospitalServer
	for rows.Next() {
		var h Hospital
		var s DicomServer
		if err := rows.Scan(
			&h.ID, &h.Name, &h.Code, &h.Address, &h.Phone, &h.Email, &h.Active, &h.CreatedAt, &h.UpdatedAt,
			&s.ID, &s.HospitalID, &s.Name, &s.Host, &s.Port, &s.Username, &s.Password, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &HospitalServer{Hospital: &h, Server: &s})
	}
	return out, rows.Err()
}

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Code, &h.Address, &h.Phone, &h.Email, &h.Active, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanServer(row pgx.Row) (*DicomServer, error) {
	var s DicomServer
	err := row.Scan(&s.ID, &s.HospitalID, &s.Name, &s.Host, &s.Port, &s.Username, &s.Password, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
