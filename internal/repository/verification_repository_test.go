package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/models"
)

func TestVerificationRepositoryInsertIfOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVerificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_data")+`(?s).*status IN \('pending', 'under_review'\) FOR SHARE\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	risk := 12
	signal := &models.VerificationSignal{SubmissionID: "sub-1", PlagiarismRisk: &risk, Status: models.SignalStatusPartial}
	require.NoError(t, repo.InsertIfOpen(context.Background(), signal))
	assert.NotEmpty(t, signal.ID)
	assert.False(t, signal.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationRepositoryInsertRefusedWhenFinal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVerificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_data")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.InsertIfOpen(context.Background(), &models.VerificationSignal{SubmissionID: "sub-1", Status: models.SignalStatusUnknown})
	assert.ErrorIs(t, err, ErrStatusMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVerificationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "submission_id", "plagiarism_risk", "ai_content_risk", "document_authenticity",
		"cross_reference", "status", "manual_review_only", "warnings", "created_at"}).
		AddRow("ver-2", "sub-1", 5, 10, 90, "title matched", "complete", false, "{}", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_data WHERE submission_id = $1 ORDER BY created_at DESC")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	signal, err := repo.Latest(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "ver-2", signal.ID)
	assert.True(t, signal.Complete())

	mock.ExpectQuery(regexp.QuoteMeta("FROM verification_data")).WithArgs("sub-2").WillReturnError(sql.ErrNoRows)
	_, err = repo.Latest(context.Background(), "sub-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
