package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"crowdfund/internal/enrollment/models"
)

// ProfilePicture is the uploaded image reference submitted by the client.
type ProfilePicture struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// CreateEnrollmentRequest is the body of POST /enrollments.
type CreateEnrollmentRequest struct {
	Name           string          `json:"name"`
	TwitterHandle  string          `json:"twitterHandle"`
	ProfilePicture *ProfilePicture `json:"profilePicture"`
}

func (r *CreateEnrollmentRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.TwitterHandle = strings.TrimSpace(r.TwitterHandle)
	if r.ProfilePicture != nil {
		r.ProfilePicture.URL = strings.TrimSpace(r.ProfilePicture.URL)
		r.ProfilePicture.Key = strings.TrimSpace(r.ProfilePicture.Key)
	}
}

// Validate runs the enrollment validator so malformed payloads are rejected
// before any service call.
func (r *CreateEnrollmentRequest) Validate() error {
	_, err := models.ValidateCandidate(r.Candidate())
	return err
}

// DecodeError keeps decode failures inside the enrollment error kinds. A
// mistyped field fails the check for that field; anything else means the body
// could not be read.
func (r *CreateEnrollmentRequest) DecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if mapped := models.ErrFieldType(typeErr.Field); mapped != nil {
			return mapped
		}
	}
	return models.ErrUnreadableBody(err)
}

// Candidate converts the request into validator input.
func (r *CreateEnrollmentRequest) Candidate() models.Candidate {
	c := models.Candidate{
		Name:          r.Name,
		TwitterHandle: r.TwitterHandle,
	}
	if r.ProfilePicture != nil {
		c.ProfileImage = &models.ProfileImage{URL: r.ProfilePicture.URL, Key: r.ProfilePicture.Key}
	}
	return c
}
