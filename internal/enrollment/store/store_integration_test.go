//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crowdfund/internal/enrollment/models"
	"crowdfund/internal/enrollment/store"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
	"crowdfund/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox", "enrollments"))
}

func newValidated(name, handle string) models.Validated {
	return models.Validated{
		Name:          name,
		TwitterHandle: handle,
		ProfileImage:  models.ProfileImage{URL: "https://img/" + handle + ".png", Key: "k" + handle},
	}
}

// TestConcurrentSameHandle verifies the unique index arbitrates racing inserts.
func (s *PostgresStoreSuite) TestConcurrentSameHandle() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var okCount, conflictCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.Insert(ctx, newValidated(fmt.Sprintf("Racer %d", i), "@racer"))
			switch {
			case err == nil:
				okCount.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflictCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), okCount.Load(), "exactly one insert should win")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "every loser should see a uniqueness violation")

	var outboxRows int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM outbox`).Scan(&outboxRows))
	s.Equal(1, outboxRows, "losers must not leave outbox rows behind")
}

func (s *PostgresStoreSuite) TestCaseInsensitiveUniqueness() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, newValidated("Alice", "@Alice"))
	s.Require().NoError(err)

	_, err = s.store.Insert(ctx, newValidated("Alice Again", "@ALICE"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	exists, err := s.store.HandleExists(ctx, "@alice")
	s.Require().NoError(err)
	s.True(exists)
}

// TestPaginationCompleteness walks every page and expects each row exactly once.
func (s *PostgresStoreSuite) TestPaginationCompleteness() {
	ctx := context.Background()
	const total = 23
	for i := 0; i < total; i++ {
		// Duplicate names exercise the id tie-break.
		_, err := s.store.Insert(ctx, newValidated(fmt.Sprintf("Name %d", i%4), fmt.Sprintf("@user%02d", i)))
		s.Require().NoError(err)
	}

	for _, field := range []models.SortField{models.SortCreatedAt, models.SortName, models.SortTwitterHandle} {
		for _, order := range []models.SortOrder{models.OrderAsc, models.OrderDesc} {
			s.Run(fmt.Sprintf("%s %s", field, order), func() {
				seen := map[id.EnrollmentID]bool{}
				params := models.ListParams{Limit: 5, OrderBy: field, Order: order}
				for pages := 0; pages < 10; pages++ {
					rows, err := s.store.Scan(ctx, params.Scan())
					s.Require().NoError(err)
					page := models.BuildPage(rows, params)
					for _, e := range page.Items {
						s.False(seen[e.ID], "row repeated across pages")
						seen[e.ID] = true
					}
					if !page.HasMore {
						break
					}
					cid, err := id.ParseEnrollmentID(*page.NextCursorID)
					s.Require().NoError(err)
					params.Cursor = &models.Cursor{Value: *page.NextCursor, ID: &cid}
				}
				s.Len(seen, total)
			})
		}
	}
}

func (s *PostgresStoreSuite) TestCreatedAtCursorMatchesStoredPrecision() {
	ctx := context.Background()
	a, err := s.store.Insert(ctx, newValidated("A", "@a"))
	s.Require().NoError(err)
	time.Sleep(2 * time.Millisecond)
	b, err := s.store.Insert(ctx, newValidated("B", "@b"))
	s.Require().NoError(err)

	rows, err := s.store.Scan(ctx, models.ScanParams{
		OrderBy: models.SortCreatedAt,
		Order:   models.OrderAsc,
		After:   &models.Cursor{Value: models.FormatTime(a.CreatedAt)},
		Limit:   10,
	})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(b.ID, rows[0].ID)

	found, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.True(a.CreatedAt.Equal(found.CreatedAt))
}

func (s *PostgresStoreSuite) TestMarkPublished() {
	ctx := context.Background()
	e, err := s.store.Insert(ctx, newValidated("Pub", "@pub"))
	s.Require().NoError(err)

	updated, err := s.store.MarkPublished(ctx, e.ID)
	s.Require().NoError(err)
	s.True(updated.PublishedOnChain)
	s.Equal(e.Name, updated.Name)

	_, err = s.store.MarkPublished(ctx, id.NewEnrollmentID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTextSortIndexesMatchScanCollation() {
	ctx := context.Background()
	for _, name := range []string{"enrollments_name_c_id_idx", "enrollments_twitter_handle_c_id_idx"} {
		var def string
		err := s.postgres.DB.QueryRowContext(ctx,
			`SELECT indexdef FROM pg_indexes WHERE tablename = 'enrollments' AND indexname = $1`, name).Scan(&def)
		s.Require().NoError(err, name)
		s.Contains(def, `COLLATE "C"`, name)
	}
}

type CacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *store.InMemory
	cached  *store.Cached
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.backend = store.NewInMemory()
	s.cached = store.NewCached(s.backend, s.redis.Client, time.Minute)
}

func (s *CacheSuite) TestReadThroughAndWriteThrough() {
	ctx := context.Background()
	e, err := s.cached.Insert(ctx, newValidated("Bob", "@bob"))
	s.Require().NoError(err)

	first, err := s.cached.FindByID(ctx, e.ID)
	s.Require().NoError(err)

	n, err := s.redis.Client.Exists(ctx, "enrollment:"+e.ID.String()).Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n, "miss should fill the cache")

	second, err := s.cached.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(first, second, "cached copy must be identical to the stored record")

	_, err = s.cached.MarkPublished(ctx, e.ID)
	s.Require().NoError(err)

	raw, err := s.redis.Client.Get(ctx, "enrollment:"+e.ID.String()).Bytes()
	s.Require().NoError(err, "publish should write the new state through")
	var cachedCopy models.Enrollment
	s.Require().NoError(json.Unmarshal(raw, &cachedCopy))
	s.True(cachedCopy.PublishedOnChain)

	after, err := s.cached.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.True(after.PublishedOnChain)
}

// publishDuringRead returns the backend's copy only after a publish has gone
// through the cache, reproducing a read that raced the update.
type publishDuringRead struct {
	store.Backend
	publish func(id.EnrollmentID)
}

func (b *publishDuringRead) FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	stale, err := b.Backend.FindByID(ctx, enrollmentID)
	if err == nil && b.publish != nil {
		publish := b.publish
		b.publish = nil
		publish(enrollmentID)
	}
	return stale, err
}

func (s *CacheSuite) TestFillRacingPublishKeepsPublishedCopy() {
	ctx := context.Background()
	backend := &publishDuringRead{Backend: s.backend}
	cached := store.NewCached(backend, s.redis.Client, time.Minute)

	e, err := cached.Insert(ctx, newValidated("Racy", "@racy"))
	s.Require().NoError(err)
	backend.publish = func(enrollmentID id.EnrollmentID) {
		_, err := cached.MarkPublished(ctx, enrollmentID)
		s.Require().NoError(err)
	}

	stale, err := cached.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.False(stale.PublishedOnChain, "the racing reader saw the old row")

	fresh, err := cached.FindByID(ctx, e.ID)
	s.Require().NoError(err)
	s.True(fresh.PublishedOnChain, "the stale fill must not replace the published copy")
}
