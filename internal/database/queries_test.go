package database

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lockEventQuery     = "SELECT capacity FROM events WHERE id = $1 FOR UPDATE"
	countAttendingStmt = "SELECT COUNT(*) FROM event_participations WHERE event_id = $1 AND status = $2"
	insertStmt         = "INSERT INTO event_participations (user_id, event_id, status, created_at, updated_at) " +
		"VALUES ($1, $2, $3, $4, $4) RETURNING id, user_id, event_id, status, created_at"
)

func newMockRepository(t *testing.T) (*PgRepository, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &PgRepository{conn: conn}, mock
}

func TestCreateParticipation(t *testing.T) {
	now := time.Now().UTC()

	t.Run("joins when below capacity", func(t *testing.T) {
		db, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockEventQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
		mock.ExpectQuery(regexp.QuoteMeta(countAttendingStmt)).
			WithArgs(3, StatusAttending).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery(regexp.QuoteMeta(insertStmt)).
			WithArgs(1, 3, StatusAttending, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_id", "status", "created_at"}).
				AddRow(7, 1, 3, StatusAttending, now))
		mock.ExpectCommit()

		p, err := db.CreateParticipation(1, 3, StatusAttending)
		assert.NoError(t, err)
		assert.Equal(t, Participation{Id: 7, UserId: 1, EventId: 3, Status: StatusAttending, CreatedAt: now}, p)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects when at capacity", func(t *testing.T) {
		db, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockEventQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
		mock.ExpectQuery(regexp.QuoteMeta(countAttendingStmt)).
			WithArgs(3, StatusAttending).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		_, err := db.CreateParticipation(1, 3, StatusAttending)
		assert.ErrorIs(t, err, ErrEventAtCapacity)
		assert.NoError(t, mock.ExpectationsWereMet(), "no insert runs for a full event")
	})

	t.Run("maps a duplicate join to ErrAlreadyJoined", func(t *testing.T) {
		db, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockEventQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(10))
		mock.ExpectQuery(regexp.QuoteMeta(countAttendingStmt)).
			WithArgs(3, StatusAttending).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery(regexp.QuoteMeta(insertStmt)).
			WithArgs(1, 3, StatusAttending, sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: uniqueViolation})
		mock.ExpectRollback()

		_, err := db.CreateParticipation(1, 3, StatusAttending)
		assert.ErrorIs(t, err, ErrAlreadyJoined)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("waitlisted joins skip the capacity check", func(t *testing.T) {
		db, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockEventQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(0))
		mock.ExpectQuery(regexp.QuoteMeta(insertStmt)).
			WithArgs(1, 3, StatusWaitlisted, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_id", "status", "created_at"}).
				AddRow(8, 1, 3, StatusWaitlisted, now))
		mock.ExpectCommit()

		p, err := db.CreateParticipation(1, 3, StatusWaitlisted)
		assert.NoError(t, err)
		assert.Equal(t, StatusWaitlisted, p.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails when the event is missing", func(t *testing.T) {
		db, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockEventQuery)).
			WithArgs(3).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := db.CreateParticipation(1, 3, StatusAttending)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
