package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"crowdfund/internal/enrollment/models"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
	txcontext "crowdfund/pkg/platform/tx"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists enrollments in PostgreSQL. Each insert also writes an
// outbox row in the same transaction for the Kafka relay.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `id, name, twitter_handle, profile_picture_url, profile_picture_key, published_on_chain, created_at`

// Insert stores a new record. A handle collision, including one lost in a
// race with a concurrent insert, returns sentinel.ErrAlreadyUsed.
func (s *PostgresStore) Insert(ctx context.Context, v models.Validated) (*models.Enrollment, error) {
	e := models.NewEnrollment(id.NewEnrollmentID(), v, time.Now())

	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Pick(ctx, s.db)

		var createdAt time.Time
		err := exec.QueryRowContext(ctx, `
			INSERT INTO enrollments (id, name, twitter_handle, profile_picture_url, profile_picture_key, published_on_chain)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			RETURNING created_at
		`, uuid.UUID(e.ID), e.Name, e.TwitterHandle, e.ProfileImage.URL, e.ProfileImage.Key).Scan(&createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}
		e.CreatedAt = createdAt.UTC().Truncate(time.Microsecond)

		payload, err := json.Marshal(models.NewCreatedEvent(e))
		if err != nil {
			return fmt.Errorf("marshal outbox payload: %w", err)
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), uuid.UUID(e.ID), models.EventTypeCreated, string(payload), e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindByID loads one record.
func (s *PostgresStore) FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM enrollments WHERE id = $1`, uuid.UUID(enrollmentID))
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return e, nil
}

// HandleExists reports whether the handle is enrolled, ignoring case. It
// uses the same expression as the unique index.
func (s *PostgresStore) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE lower(twitter_handle) = lower($1))`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check handle: %w", err)
	}
	return exists, nil
}

// Scan returns up to p.Limit records strictly after p.After, ordered by
// (p.OrderBy, id). Text columns compare bytewise (COLLATE "C") so cursors
// behave the same as in the memory store.
func (s *PostgresStore) Scan(ctx context.Context, p models.ScanParams) ([]*models.Enrollment, error) {
	query, args, err := buildScanQuery(p)
	if err != nil {
		return nil, err
	}

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan enrollments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Enrollment, 0, p.Limit)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

// MarkPublished sets published_on_chain and returns the updated record.
func (s *PostgresStore) MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		UPDATE enrollments SET published_on_chain = TRUE
		WHERE id = $1
		RETURNING `+selectColumns, uuid.UUID(enrollmentID))
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("mark published: %w", err)
	}
	return e, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func buildScanQuery(p models.ScanParams) (string, []any, error) {
	if !p.OrderBy.IsValid() || !p.Order.IsValid() {
		return "", nil, fmt.Errorf("%w: unsupported ordering", sentinel.ErrInvalidCursor)
	}

	sortExpr := pq.QuoteIdentifier(p.OrderBy.String())
	if p.OrderBy != models.SortCreatedAt {
		sortExpr += ` COLLATE "C"`
	}
	dir, op := "ASC", ">"
	if p.Order == models.OrderDesc {
		dir, op = "DESC", "<"
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM enrollments`)
	var args []any
	if p.After != nil {
		var cursor any = p.After.Value
		if p.OrderBy == models.SortCreatedAt {
			t, err := models.ParseTimeCursor(p.After.Value)
			if err != nil {
				return "", nil, err
			}
			cursor = t
		}
		args = append(args, cursor)
		if p.After.ID != nil {
			args = append(args, uuid.UUID(*p.After.ID))
			fmt.Fprintf(&b, ` WHERE (%s, id) %s ($1, $2)`, sortExpr, op)
		} else {
			fmt.Fprintf(&b, ` WHERE %s %s $1`, sortExpr, op)
		}
	}
	args = append(args, p.Limit)
	fmt.Fprintf(&b, ` ORDER BY %s %s, id %s LIMIT $%d`, sortExpr, dir, dir, len(args))
	return b.String(), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		rawID     uuid.UUID
		e         models.Enrollment
		createdAt time.Time
	)
	if err := row.Scan(&rawID, &e.Name, &e.TwitterHandle, &e.ProfileImage.URL, &e.ProfileImage.Key, &e.PublishedOnChain, &createdAt); err != nil {
		return nil, err
	}
	e.ID = id.EnrollmentID(rawID)
	e.CreatedAt = createdAt.UTC()
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
