package outbox

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crowdfund/pkg/domain"
)

func TestFetchUnpublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entryID := uuid.New()
	aggregateID := uuid.New()
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE published_at IS NULL")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "created_at"}).
			AddRow(entryID.String(), aggregateID.String(), "enrollment.created", []byte(`{"name":"Bob"}`), created))
	mock.ExpectCommit()

	s := NewPostgres(db)
	var got []Entry
	err = s.RunInTx(context.Background(), func(ctx context.Context) error {
		var err error
		got, err = s.FetchUnpublished(ctx, 50)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id.OutboxID(entryID), got[0].ID)
	assert.Equal(t, aggregateID.String(), got[0].AggregateID)
	assert.JSONEq(t, `{"name":"Bob"}`, string(got[0].Payload))
	assert.True(t, created.Equal(got[0].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublished(t *testing.T) {
	t.Run("stamps every id in one statement", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		at := time.Date(2025, 2, 1, 10, 0, 5, 0, time.UTC)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox SET published_at = $2")).
			WithArgs(sqlmock.AnyArg(), at).
			WillReturnResult(sqlmock.NewResult(0, 2))

		err = NewPostgres(db).MarkPublished(context.Background(),
			[]id.OutboxID{id.OutboxID(uuid.New()), id.OutboxID(uuid.New())}, at)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no ids is a no-op", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, NewPostgres(db).MarkPublished(context.Background(), nil, time.Now()))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
