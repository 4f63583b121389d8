package models

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	nameMinLen = 2
	nameMaxLen = 50
)

var handlePattern = regexp.MustCompile(`^@[A-Za-z0-9_]{1,15}$`)

// Candidate is an enrollment submission before validation.
type Candidate struct {
	Name          string
	TwitterHandle string
	ProfileImage  *ProfileImage
}

// Validated is a candidate that passed every check, with whitespace trimmed.
type Validated struct {
	Name          string
	TwitterHandle string
	ProfileImage  ProfileImage
}

// ValidateCandidate checks name, then handle, then profile image, and returns
// only the first failure.
func ValidateCandidate(c Candidate) (Validated, error) {
	name, err := ValidateName(c.Name)
	if err != nil {
		return Validated{}, err
	}
	handle, err := ValidateHandle(c.TwitterHandle)
	if err != nil {
		return Validated{}, err
	}
	img, err := ValidateProfileImage(c.ProfileImage)
	if err != nil {
		return Validated{}, err
	}
	return Validated{Name: name, TwitterHandle: handle, ProfileImage: img}, nil
}

// ValidateName trims name and checks its length in code points.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return "", invalid(KindInvalidName, msgNameRequired)
	case n < nameMinLen:
		return "", invalid(KindInvalidName, "Name must be at least 2 characters")
	case n > nameMaxLen:
		return "", invalid(KindInvalidName, "Name must be less than 50 characters")
	}
	return name, nil
}

// ValidateHandle trims handle and checks it against the handle grammar.
func ValidateHandle(handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	switch {
	case handle == "":
		return "", invalid(KindInvalidTwitter, msgHandleRequired)
	case !strings.HasPrefix(handle, "@"):
		return "", invalid(KindInvalidTwitter, "Twitter handle must start with @")
	case !handlePattern.MatchString(handle):
		return "", invalid(KindInvalidTwitter, "Invalid Twitter handle format")
	}
	return handle, nil
}

// ValidateProfileImage requires a URL and key and checks the URL is absolute.
func ValidateProfileImage(img *ProfileImage) (ProfileImage, error) {
	if img == nil {
		return ProfileImage{}, invalid(KindInvalidProfile, msgProfileRequired)
	}
	rawURL := strings.TrimSpace(img.URL)
	key := strings.TrimSpace(img.Key)
	if rawURL == "" {
		return ProfileImage{}, invalid(KindInvalidProfile, msgProfileURL)
	}
	if key == "" {
		return ProfileImage{}, invalid(KindInvalidProfile, msgProfileKey)
	}
	if !isAbsoluteURL(rawURL) {
		return ProfileImage{}, invalid(KindInvalidProfile, "Invalid profile picture URL format")
	}
	return ProfileImage{URL: rawURL, Key: key}, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return false
	}
	// A bare scheme such as "https:" parses but names nothing.
	return u.Host != "" || u.Opaque != "" || u.Path != ""
}
