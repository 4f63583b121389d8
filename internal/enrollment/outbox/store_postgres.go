package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "crowdfund/pkg/domain"
	txcontext "crowdfund/pkg/platform/tx"
)

// Entry is one pending event.
type Entry struct {
	ID          id.OutboxID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// PostgresStore reads and stamps rows of the outbox table written alongside
// each enrollment insert.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres builds an outbox store on db.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx runs fn in one transaction. Rows fetched inside it stay locked
// against other relays until it ends.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

// FetchUnpublished returns up to limit pending rows, oldest first, skipping
// rows another relay has locked.
func (s *PostgresStore) FetchUnpublished(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entryID, aggregateID uuid.UUID
			e                    Entry
		)
		if err := rows.Scan(&entryID, &aggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.ID = id.OutboxID(entryID)
		e.AggregateID = aggregateID.String()
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps published_at on the given rows.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []id.OutboxID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, 0, len(ids))
	for _, i := range ids {
		raw = append(raw, i.String())
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE outbox SET published_at = $2
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`, pq.Array(raw), at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
