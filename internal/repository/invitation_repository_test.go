package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
)

func duplicateKeyErr() error {
	return &pq.Error{Code: pq.ErrorCode(uniqueViolation)}
}

func newMockDB(t *testing.T) (*InvitationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewInvitationRepo(db), mock
}

func TestMarkAcceptedRequiresPending(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE invitations SET status='accepted', accepted_at=NOW() WHERE id=$1 AND status='pending'`)).
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkAccepted(context.Background(), "inv-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAcceptedLosesRace(t *testing.T) {
	repo, mock := newMockDB(t)

	// The row left pending between read and write: zero rows affected.
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE invitations SET status='accepted', accepted_at=NOW() WHERE id=$1 AND status='pending'`)).
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAccepted(context.Background(), "inv-1")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRequiresPending(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE invitations SET status='cancelled' WHERE id=$1 AND status='pending'`)).
		WithArgs("inv-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Cancel(context.Background(), "inv-2"), ErrInvalidStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReissueRejectsTerminalStates(t *testing.T) {
	repo, mock := newMockDB(t)
	expires := time.Now().Add(72 * time.Hour)

	mock.ExpectExec("UPDATE invitations SET status='pending'").
		WithArgs("inv-3", "newtoken", expires).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Reissue(context.Background(), "inv-3", "newtoken", expires), ErrInvalidStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicatePendingIsConflict(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectQuery("INSERT INTO invitations").
		WillReturnError(duplicateKeyErr())

	_, err := repo.Create(context.Background(), model.CreateInvitationData{
		Email:      "grower@example.com",
		PropertyID: "prop-1",
		Role:       rbac.RoleEmployee,
	}, "user-1", "token", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStripsTokens(t *testing.T) {
	repo, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{
		"id", "email", "property_id", "name", "invited_by", "full_name", "role",
		"status", "token", "expires_at", "created_at", "accepted_at", "message",
	}).AddRow("inv-1", "a@example.com", "prop-1", "North Farm", "user-1", "Ana Ruiz",
		"viewer", "pending", "secret-token", time.Now().Add(time.Hour), time.Now(), nil, "")

	mock.ExpectQuery("(?s)SELECT .+ FROM invitations").
		WithArgs("prop-1").
		WillReturnRows(rows)

	list, err := repo.ListByProperty(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Token)
	assert.Equal(t, "North Farm", list[0].PropertyName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOverdueReportsCount(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE invitations SET status='expired' WHERE status='pending' AND expires_at < NOW()`)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
