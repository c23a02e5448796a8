package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores reports in the reports table. Attachment
// references are kept as a JSONB array.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("reports: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db querier) *PostgresRepository {
	if db == nil {
		panic("reports: db required")
	}
	return &PostgresRepository{db: db}
}

const reportColumns = `id, name, age, mobile, attachments, created_at`

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	var raw []byte
	if err := row.Scan(&rep.ID, &rep.Name, &rep.Age, &rep.Mobile, &raw, &rep.CreatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rep.Attachments); err != nil {
			return nil, fmt.Errorf("reports: decode attachments: %w", err)
		}
	}
	if rep.Attachments == nil {
		rep.Attachments = []Attachment{}
	}
	return &rep, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rep *Report) (*Report, error) {
	attachments := rep.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("reports: marshal attachments: %w", err)
	}
	query := `
		INSERT INTO reports (name, age, mobile, attachments)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	saved := *rep
	saved.Attachments = attachments
	if err := r.db.QueryRow(ctx, query, rep.Name, rep.Age, rep.Mobile, data).Scan(&saved.ID, &saved.CreatedAt); err != nil {
		return nil, fmt.Errorf("reports: insert: %w", err)
	}
	return &saved, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reports: get: %w", err)
	}
	return rep, nil
}

// Search filters by name/mobile and created day, newest first.
func (r *PostgresRepository) Search(ctx context.Context, filter SearchFilter) ([]Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`
	var args []any
	argIdx := 1

	if q := strings.TrimSpace(filter.Query); q != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR mobile LIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+q+"%")
		argIdx++
	}
	if filter.Date != "" {
		query += fmt.Sprintf(" AND created_at::date = $%d::date", argIdx)
		args = append(args, filter.Date)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", filter.limit())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: search: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("reports: scan: %w", err)
		}
		out = append(out, *rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: search rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SearchPublic(ctx context.Context, query string, limit int) ([]Summary, error) {
	sql := `
		SELECT id, name, mobile, age
		FROM reports
		WHERE name ILIKE $1 OR mobile LIKE $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, sql, "%"+strings.TrimSpace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("reports: public search: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Mobile, &s.Age); err != nil {
			return nil, fmt.Errorf("reports: scan summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: public search rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reports: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
