package service

import (
	"context"
	"fmt"

	"crowdfund/internal/enrollment/models"
)

// paginator turns validated listing parameters into a page using the
// fetch-one-extra technique: limit+1 rows tell whether another page exists
// without a second query.
type paginator struct {
	store Store
}

// Page fetches the rows after p.Cursor and trims them to p.Limit.
func (pg *paginator) Page(ctx context.Context, p models.ListParams) (*models.Page, error) {
	if p.Cursor != nil && p.OrderBy == models.SortCreatedAt {
		if _, err := models.ParseTimeCursor(p.Cursor.Value); err != nil {
			return nil, err
		}
	}

	rows, err := pg.store.Scan(ctx, p.Scan())
	if err != nil {
		return nil, fmt.Errorf("scanning enrollments: %w", err)
	}
	return models.BuildPage(rows, p), nil
}
