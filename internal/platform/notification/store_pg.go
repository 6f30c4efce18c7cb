package notification

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

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type storePG struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const logCols = `id, recipients, cc, bcc, sender, subject, html_body, text_body,
	status, error, attempts, created_by, created_at, sent_at`

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *storePG) Create(ctx context.Context, e *EmailLog) error {
	e.ID = uuid.New()
	return s.conn(ctx).QueryRow(ctx, `
		INSERT INTO email_log (id, recipients, cc, bcc, sender, subject, html_body, text_body,
			status, error, attempts, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`,
		e.ID, orEmpty(e.Recipients), orEmpty(e.Cc), orEmpty(e.Bcc), e.Sender, e.Subject, e.HTMLBody, e.TextBody,
		e.Status, e.Error, e.Attempts, e.CreatedBy, e.CreatedAt,
	).Scan(&e.CreatedAt)
}

func (s *storePG) Update(ctx context.Context, e *EmailLog) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE email_log SET status = $2, error = $3, attempts = $4, sent_at = $5
		WHERE id = $1`,
		e.ID, e.Status, e.Error, e.Attempts, e.SentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *storePG) GetByID(ctx context.Context, id uuid.UUID) (*EmailLog, error) {
	return scanLog(s.conn(ctx).QueryRow(ctx, `SELECT `+logCols+` FROM email_log WHERE id = $1`, id))
}

func (s *storePG) List(ctx context.Context, status Status, limit, offset int) ([]*EmailLog, int, error) {
	where, args := "", []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM email_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM email_log%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		logCols, where, len(args)-1, len(args))
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []*EmailLog{}
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func scanLog(row pgx.Row) (*EmailLog, error) {
	var e EmailLog
	err := row.Scan(&e.ID, &e.Recipients, &e.Cc, &e.Bcc, &e.Sender, &e.Subject, &e.HTMLBody, &e.TextBody,
		&e.Status, &e.Error, &e.Attempts, &e.CreatedBy, &e.CreatedAt, &e.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
