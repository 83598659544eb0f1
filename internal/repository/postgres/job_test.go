package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freelance/internal/repository"
)

func TestJobRepository_MarkPaid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)
	at := time.Date(2019, 12, 19, 7, 21, 15, 0, time.UTC)

	mock.ExpectExec(`UPDATE jobs SET paid_at = COALESCE\(paid_at, \$2\) WHERE id = \$1`).
		WithArgs("42", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPaid(context.Background(), "42", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkSettled_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET settled_at = COALESCE\(settled_at, \$2\) WHERE id = \$1`).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSettled(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)
	created := time.Date(2019, 12, 19, 7, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, title, client_id, freelancer_id, budget, paid_at, settled_at, created_at FROM jobs WHERE id = \$1`).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "client_id", "freelancer_id", "budget", "paid_at", "settled_at", "created_at"}).
			AddRow("42", "Logo design", "client-1", nil, int64(1500), nil, nil, created))

	job, err := repo.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Logo design", job.Title)
	assert.Empty(t, job.FreelancerID)
	assert.False(t, job.HasBeenPaidFor())
	require.NoError(t, mock.ExpectationsWereMet())
}
