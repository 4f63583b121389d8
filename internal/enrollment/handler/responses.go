package handler

import (
	"crowdfund/internal/enrollment/models"
)

const statusSuccess = "success"

// CreatedBody echoes the normalized fields of a new enrollment.
type CreatedBody struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	TwitterHandle  string         `json:"twitterHandle"`
	ProfilePicture ProfilePicture `json:"profilePicture"`
	CreatedAt      string         `json:"createdAt"`
}

// CreateResponse is returned by POST /enrollments.
type CreateResponse struct {
	Status string      `json:"status"`
	Body   CreatedBody `json:"body"`
}

// Record is the directory representation of an enrollment.
type Record struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	TwitterHandle     string `json:"twitter_handle"`
	ProfilePictureURL string `json:"profile_picture_url"`
	ProfilePictureKey string `json:"profile_picture_key"`
	PublishedOnChain  bool   `json:"published_on_chain"`
	CreatedAt         string `json:"created_at"`
}

// DetailRecord is a Record plus the profile_image alias served by the
// detail route.
type DetailRecord struct {
	Record
	ProfileImage string `json:"profile_image"`
}

// ListMeta echoes the effective listing parameters.
type ListMeta struct {
	Limit   int    `json:"limit"`
	OrderBy string `json:"orderBy"`
	Order   string `json:"order"`
}

// ListResponse is returned by GET /enrollments. NextCursor and NextCursorID
// are null on the last page.
type ListResponse struct {
	Status       string   `json:"status"`
	Data         []Record `json:"data"`
	HasMore      bool     `json:"hasMore"`
	NextCursor   *string  `json:"nextCursor"`
	NextCursorID *string  `json:"nextCursorId"`
	Meta         ListMeta `json:"meta"`
}

// DetailResponse wraps a single record.
type DetailResponse struct {
	Status string       `json:"status"`
	Data   DetailRecord `json:"data"`
}

func toCreated(e *models.Enrollment) CreateResponse {
	return CreateResponse{
		Status: statusSuccess,
		Body: CreatedBody{
			ID:             e.ID.String(),
			Name:           e.Name,
			TwitterHandle:  e.TwitterHandle,
			ProfilePicture: ProfilePicture{URL: e.ProfileImage.URL, Key: e.ProfileImage.Key},
			CreatedAt:      models.FormatTime(e.CreatedAt),
		},
	}
}

func toRecord(e *models.Enrollment) Record {
	return Record{
		ID:                e.ID.String(),
		Name:              e.Name,
		TwitterHandle:     e.TwitterHandle,
		ProfilePictureURL: e.ProfileImage.URL,
		ProfilePictureKey: e.ProfileImage.Key,
		PublishedOnChain:  e.PublishedOnChain,
		CreatedAt:         models.FormatTime(e.CreatedAt),
	}
}

func toDetail(e *models.Enrollment) DetailResponse {
	return DetailResponse{
		Status: statusSuccess,
		Data:   DetailRecord{Record: toRecord(e), ProfileImage: e.ProfileImage.URL},
	}
}

func toList(page *models.Page) ListResponse {
	data := make([]Record, 0, len(page.Items))
	for _, e := range page.Items {
		data = append(data, toRecord(e))
	}
	return ListResponse{
		Status:       statusSuccess,
		Data:         data,
		HasMore:      page.HasMore,
		NextCursor:   page.NextCursor,
		NextCursorID: page.NextCursorID,
		Meta: ListMeta{
			Limit:   page.Limit,
			OrderBy: page.OrderBy.String(),
			Order:   page.Order.String(),
		},
	}
}
