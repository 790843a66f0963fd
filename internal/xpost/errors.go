package xpost

import (
	"errors"
	"fmt"
	"strings"
)

// MissingEnvError is returned when required configuration is missing.
// It marks a disabled platform rather than a failure.
type MissingEnvError struct {
	Provider  string
	Variables []string
}

func (e MissingEnvError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Variables, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

// UploadError reports a failed media upload. StatusCode is zero for
// transport failures such as timeouts.
type UploadError struct {
	Platform   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	return describe(e.Platform, "upload media", e.StatusCode, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PublishError reports a failed status publish.
type PublishError struct {
	Platform   string
	StatusCode int
	Body       string
	Err        error
}

func (e *PublishError) Error() string {
	return describe(e.Platform, "publish status", e.StatusCode, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// NewUploadError wraps err, lifting the HTTP status and body when available.
func NewUploadError(platform string, err error) *UploadError {
	code, body := httpStatus(err)
	return &UploadError{Platform: platform, StatusCode: code, Body: body, Err: err}
}

// NewPublishError wraps err, lifting the HTTP status and body when available.
func NewPublishError(platform string, err error) *PublishError {
	code, body := httpStatus(err)
	return &PublishError{Platform: platform, StatusCode: code, Body: body, Err: err}
}

func httpStatus(err error) (int, string) {
	var status interface{ HTTPStatus() (int, string) }
	if errors.As(err, &status) {
		return status.HTTPStatus()
	}
	return 0, ""
}

func describe(platform, op string, code int, err error) string {
	if code != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", platform, op, code, err)
	}
	return fmt.Sprintf("%s: %s: %v", platform, op, err)
}
