package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund/internal/enrollment/models"
	"crowdfund/internal/enrollment/service"
	"crowdfund/internal/enrollment/store"
	"crowdfund/pkg/testutil"
)

// newDirectory wires the handler to a real service over the in-memory store.
// Creation times advance one second per insert.
func newDirectory(t *testing.T) chi.Router {
	t.Helper()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	st := store.NewInMemory(store.WithClock(func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(service.New(st, service.WithLogger(logger)), logger, nil).Register(r)
	return r
}

func enroll(t *testing.T, r chi.Router, name, handle string) CreatedBody {
	t.Helper()
	body := map[string]any{
		"name":           name,
		"twitterHandle":  handle,
		"profilePicture": map[string]string{"url": "https://img/x.png", "key": "k1"},
	}
	rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/enrollments", body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[CreateResponse](t, rr).Body
}

func TestDuplicateEnrollment(t *testing.T) {
	r := newDirectory(t)

	testutil.Given(t, "Bob has enrolled as @bob", func(t *testing.T) {
		enroll(t, r, "Bob", "@bob")

		testutil.When(t, "someone enrolls @bob again", func(t *testing.T) {
			body := map[string]any{
				"name":           "Robert",
				"twitterHandle":  "@bob",
				"profilePicture": map[string]string{"url": "https://img/y.png", "key": "k2"},
			}
			rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/enrollments", body))

			testutil.Then(t, "the request is rejected as a duplicate", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusBadRequest)
				resp := testutil.UnmarshalErrorResponse(t, rr)
				assert.Equal(t, models.KindDuplicateTwitter, resp["type"])
				assert.Equal(t, models.MsgDuplicateTwitter, resp["message"])
			})
		})
	})
}

func TestWalkingPages(t *testing.T) {
	r := newDirectory(t)

	testutil.Given(t, "records A, B and C enrolled in that order", func(t *testing.T) {
		a := enroll(t, r, "Alice", "@a")
		b := enroll(t, r, "Bella", "@b")
		c := enroll(t, r, "Carl", "@c")

		var first *ListResponse
		testutil.When(t, "the first page of two is requested oldest first", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/enrollments?limit=2&orderBy=created_at&order=asc"))
			require.Equal(t, http.StatusOK, rr.Code)
			first = testutil.UnmarshalResponse[ListResponse](t, rr)

			testutil.Then(t, "it holds A and B and points at B", func(t *testing.T) {
				require.Len(t, first.Data, 2)
				assert.Equal(t, a.ID, first.Data[0].ID)
				assert.Equal(t, b.ID, first.Data[1].ID)
				assert.True(t, first.HasMore)
				require.NotNil(t, first.NextCursor)
				assert.Equal(t, b.CreatedAt, *first.NextCursor)
			})
		})

		testutil.When(t, "the next page is requested with the cursor", func(t *testing.T) {
			require.NotNil(t, first)
			q := url.Values{}
			q.Set("limit", "2")
			q.Set("orderBy", "created_at")
			q.Set("order", "asc")
			q.Set("cursor", *first.NextCursor)
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/enrollments?"+q.Encode()))
			require.Equal(t, http.StatusOK, rr.Code)
			second := testutil.UnmarshalResponse[ListResponse](t, rr)

			testutil.Then(t, "it holds only C and ends the walk", func(t *testing.T) {
				require.Len(t, second.Data, 1)
				assert.Equal(t, c.ID, second.Data[0].ID)
				assert.False(t, second.HasMore)
				assert.Nil(t, second.NextCursor)
			})
		})
	})
}

func TestDetailIsStable(t *testing.T) {
	r := newDirectory(t)
	created := enroll(t, r, "Dana", "@dana")

	first := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/enrollments/"+created.ID))
	second := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/enrollments/"+created.ID))

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}
