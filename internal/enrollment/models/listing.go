package models

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
)

// SortField is a column the directory can be ordered by.
type SortField string

const (
	SortCreatedAt     SortField = "created_at"
	SortName          SortField = "name"
	SortTwitterHandle SortField = "twitter_handle"
)

// IsValid reports whether f is on the allow-list.
func (f SortField) IsValid() bool {
	switch f {
	case SortCreatedAt, SortName, SortTwitterHandle:
		return true
	}
	return false
}

func (f SortField) String() string { return string(f) }

// SortOrder is the scan direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// IsValid reports whether o is asc or desc.
func (o SortOrder) IsValid() bool {
	return o == OrderAsc || o == OrderDesc
}

func (o SortOrder) String() string { return string(o) }

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Cursor positions a scan strictly after a row. Value is the sort column of
// the last row seen; ID, when set, breaks ties on equal values.
type Cursor struct {
	Value string
	ID    *id.EnrollmentID
}

// ListParams is a validated listing request.
type ListParams struct {
	Cursor  *Cursor
	Limit   int
	OrderBy SortField
	Order   SortOrder
}

// ScanParams is what the paginator asks of the store: one row more than the
// page size so it can tell whether another page exists.
type ScanParams struct {
	OrderBy SortField
	Order   SortOrder
	After   *Cursor
	Limit   int
}

// Page is one page of the directory.
type Page struct {
	Items        []*Enrollment
	HasMore      bool
	NextCursor   *string
	NextCursorID *string
	Limit        int
	OrderBy      SortField
	Order        SortOrder
}

// ParseListParams validates the listing query string. Any malformed parameter
// rejects the whole request; nothing is clamped.
func ParseListParams(q url.Values) (ListParams, error) {
	p := ListParams{
		Limit:   DefaultLimit,
		OrderBy: SortCreatedAt,
		Order:   OrderDesc,
	}

	if q.Has("limit") {
		n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
		if err != nil {
			return ListParams{}, fmt.Errorf("limit: %w", err)
		}
		if n < 1 || n > MaxLimit {
			return ListParams{}, fmt.Errorf("limit %d out of range [1, %d]", n, MaxLimit)
		}
		p.Limit = n
	}

	if q.Has("orderBy") {
		f := SortField(q.Get("orderBy"))
		if !f.IsValid() {
			return ListParams{}, fmt.Errorf("orderBy %q not allowed", q.Get("orderBy"))
		}
		p.OrderBy = f
	}

	if q.Has("order") {
		o := SortOrder(q.Get("order"))
		if !o.IsValid() {
			return ListParams{}, fmt.Errorf("order %q not allowed", q.Get("order"))
		}
		p.Order = o
	}

	cursor := q.Get("cursor")
	rawID := q.Get("cursorId")
	switch {
	case cursor != "":
		p.Cursor = &Cursor{Value: cursor}
		if rawID != "" {
			cid, err := id.ParseEnrollmentID(rawID)
			if err != nil {
				return ListParams{}, fmt.Errorf("cursorId: %w", err)
			}
			p.Cursor.ID = &cid
		}
	case rawID != "":
		return ListParams{}, errors.New("cursorId requires cursor")
	}

	return p, nil
}

// Scan returns the store request for p: limit+1 rows after the cursor.
func (p ListParams) Scan() ScanParams {
	return ScanParams{
		OrderBy: p.OrderBy,
		Order:   p.Order,
		After:   p.Cursor,
		Limit:   p.Limit + 1,
	}
}

// CursorValue renders the sort column of e as a cursor string.
func CursorValue(e *Enrollment, field SortField) string {
	switch field {
	case SortName:
		return e.Name
	case SortTwitterHandle:
		return e.TwitterHandle
	default:
		return FormatTime(e.CreatedAt)
	}
}

// FormatTime renders a creation time as a created_at cursor.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

// ParseTimeCursor reads a created_at cursor. Unparsable values wrap
// sentinel.ErrInvalidCursor.
func ParseTimeCursor(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", sentinel.ErrInvalidCursor, err)
	}
	return t.UTC(), nil
}

// BuildPage trims rows fetched with ScanParams.Limit = limit+1 down to a page.
func BuildPage(rows []*Enrollment, p ListParams) *Page {
	page := &Page{
		Items:   rows,
		Limit:   p.Limit,
		OrderBy: p.OrderBy,
		Order:   p.Order,
	}
	if page.Items == nil {
		page.Items = []*Enrollment{}
	}
	if len(rows) > p.Limit {
		page.HasMore = true
		page.Items = rows[:p.Limit]
		last := page.Items[len(page.Items)-1]
		next := CursorValue(last, p.OrderBy)
		nextID := last.ID.String()
		page.NextCursor = &next
		page.NextCursorID = &nextID
	}
	return page
}
