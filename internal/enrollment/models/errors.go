package models

import (
	"strings"

	dErrors "crowdfund/pkg/domain-errors"
)

// Public error kinds returned in the "type" field of error responses.
const (
	KindInvalidName      = "INVALID_NAME"
	KindInvalidTwitter   = "INVALID_TWITTER"
	KindInvalidProfile   = "INVALID_PROFILE"
	KindDuplicateTwitter = "DUPLICATE_TWITTER"
	KindDatabaseError    = "DATABASE_ERROR"
	KindServerError      = "SERVER_ERROR"
)

// Public messages that callers and tests match on.
const (
	MsgDuplicateTwitter = "This Twitter handle is already enrolled"
	MsgSaveFailed       = "Failed to save enrollment"
	MsgNotFound         = "Enrollment not found"
	MsgInvalidQuery     = "Invalid query parameters"
	MsgFetchFailed      = "Failed to fetch enrollments"
	MsgServerError      = "Internal server error"
)

const (
	msgNameRequired    = "Name is required"
	msgHandleRequired  = "Twitter handle is required"
	msgProfileRequired = "Profile picture is required"
	msgProfileURL      = "Invalid profile picture URL"
	msgProfileKey      = "Invalid profile picture key"
)

func invalid(kind, message string) error {
	return dErrors.New(dErrors.CodeValidation, message).WithType(kind)
}

// ErrDuplicateHandle is returned when the handle is already enrolled.
func ErrDuplicateHandle(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeConflict, MsgDuplicateTwitter).WithType(KindDuplicateTwitter)
}

// ErrSaveFailed is returned when the store rejects an insert for any reason
// other than handle uniqueness.
func ErrSaveFailed(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeInternal, MsgSaveFailed).WithType(KindDatabaseError)
}

// ErrNotFound is returned when no record has the requested id.
func ErrNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, MsgNotFound)
}

// ErrInvalidQuery rejects a listing request wholesale.
func ErrInvalidQuery(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeBadRequest, MsgInvalidQuery)
}

// ErrFetchFailed is returned when a listing or detail read hits a store fault.
func ErrFetchFailed(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeInternal, MsgFetchFailed).WithType(KindDatabaseError)
}

// ErrFieldType reports a submission field whose JSON value had the wrong
// type. field is the dotted path from encoding/json; the error carries the
// kind of the check that field feeds, with the message that check gives a
// missing value. An empty path means the body itself was not an object.
func ErrFieldType(field string) error {
	head, rest, _ := strings.Cut(field, ".")
	switch head {
	case "", "name":
		return invalid(KindInvalidName, msgNameRequired)
	case "twitterHandle":
		return invalid(KindInvalidTwitter, msgHandleRequired)
	case "profilePicture":
		switch rest {
		case "url":
			return invalid(KindInvalidProfile, msgProfileURL)
		case "key":
			return invalid(KindInvalidProfile, msgProfileKey)
		}
		return invalid(KindInvalidProfile, msgProfileRequired)
	}
	return nil
}

// ErrUnreadableBody is returned when a submission body cannot be parsed at
// all.
func ErrUnreadableBody(cause error) error {
	return dErrors.Wrap(cause, dErrors.CodeInternal, MsgServerError).WithType(KindServerError)
}
