package reports

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresRepositoryWithDB(mock), mock
}

var reportCols = []string{"id", "name", "age", "mobile", "attachments", "created_at"}

func TestPostgresRepository_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO reports").
		WithArgs("Karim", "40", "018", []byte(`[{"key":"k1","filename":"a.pdf","size":3}]`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))

	saved, err := repo.Insert(context.Background(), &Report{
		Name: "Karim", Age: "40", Mobile: "018",
		Attachments: []Attachment{{Key: "k1", Filename: "a.pdf", Size: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), saved.ID)
	assert.Equal(t, now, saved.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertWithoutAttachments(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("INSERT INTO reports").
		WithArgs("Karim", "", "018", []byte(`[]`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	saved, err := repo.Insert(context.Background(), &Report{Name: "Karim", Mobile: "018"})
	require.NoError(t, err)
	assert.NotNil(t, saved.Attachments)
}

func TestPostgresRepository_Get(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, age, mobile, attachments, created_at FROM reports WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(reportCols).AddRow(int64(5), "Karim", "40", "018", []byte(`[{"key":"k1","filename":"a.pdf","size":3}]`), now))
	rep, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rep.Attachments, 1)
	assert.Equal(t, "k1", rep.Attachments[0].Key)

	mock.ExpectQuery("FROM reports WHERE id").WithArgs(int64(6)).WillReturnError(pgx.ErrNoRows)
	_, err = repo.Get(context.Background(), 6)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestPostgresRepository_Search(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND \(name ILIKE \$1 OR mobile LIKE \$1\) AND created_at::date = \$2::date ORDER BY created_at DESC, id DESC LIMIT 500`).
		WithArgs("%kar%", "2025-11-03").
		WillReturnRows(pgxmock.NewRows(reportCols).AddRow(int64(2), "Karim", "", "018", []byte(`[]`), now))

	out, err := repo.Search(context.Background(), SearchFilter{Query: "kar", Date: "2025-11-03"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Karim", out[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SearchPublic(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, name, mobile, age").
		WithArgs("%017%", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "mobile", "age"}).AddRow(int64(3), "Rahim", "017", "30"))

	out, err := repo.SearchPublic(context.Background(), "017", 10)
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: 3, Name: "Rahim", Mobile: "017", Age: "30"}}, out)
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("DELETE FROM reports").WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.Delete(context.Background(), 3))

	mock.ExpectExec("DELETE FROM reports").WithArgs(int64(4)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4), ErrReportNotFound)
}
