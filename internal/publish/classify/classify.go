// Package classify maps raw provider and network failures into a closed
// taxonomy of error codes with user-safe, redacted messages.
package classify

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/publish/resilience"
)

// Code is the closed set of classified provider error kinds.
type Code string

const (
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeMissingScope  Code = "MISSING_SCOPE"
	CodeImageRequired Code = "IMAGE_REQUIRED"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeProviderError Code = "PROVIDER_ERROR"
	CodeNetworkError  Code = "NETWORK_ERROR"
	CodeServerError   Code = "SERVER_ERROR"
	CodeUnknown       Code = "UNKNOWN"
)

// ProviderError is a classified provider failure. UserMessage is always
// redacted and safe to surface; the raw message survives only for logs.
type ProviderError struct {
	Code        Code
	Platform    domain.Platform
	UserMessage string
	Status      int
	raw         string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.UserMessage)
}

// Raw returns the unredacted provider message, for logging only.
func (e *ProviderError) Raw() string { return e.raw }

// Permanent reports whether retrying cannot help: credential, permission and
// validation failures stay broken until a human intervenes.
func (e *ProviderError) Permanent() bool {
	switch e.Code {
	case CodeTokenExpired, CodeMissingScope, CodeImageRequired,
		CodeForbidden, CodeUnauthorized, CodeNotFound, CodeInvalidInput:
		return true
	}
	return false
}

// Transient reports whether the failure is worth an automatic retry.
func (e *ProviderError) Transient() bool {
	switch e.Code {
	case CodeRateLimited, CodeNetworkError, CodeServerError:
		return true
	}
	return false
}

// userMessages maps codes to the messages shown in the scheduling UI.
var userMessages = map[Code]string{
	CodeTokenExpired:  "The connection's access token has expired. Please reconnect the account.",
	CodeMissingScope:  "The connected account is missing a required permission. Please reconnect and grant all requested permissions.",
	CodeImageRequired: "This platform requires at least one image.",
	CodeRateLimited:   "The platform is rate limiting requests. The post will be retried automatically.",
	CodeForbidden:     "The platform refused the request. Check that the account still has access.",
	CodeUnauthorized:  "The platform rejected the connection's credentials. Please reconnect the account.",
	CodeNotFound:      "The target page or account was not found on the platform.",
	CodeInvalidInput:  "The platform rejected the post content.",
	CodeNetworkError:  "A network problem interrupted the request. The post will be retried automatically.",
	CodeServerError:   "The platform reported a temporary server problem. The post will be retried automatically.",
}

// Classify maps a raw error to a ProviderError. Already-classified errors
// pass through unchanged. Rules apply first-match-wins in the order stated.
func Classify(err error, platform domain.Platform) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	raw := err.Error()
	msg := strings.ToLower(raw)
	status := httpStatus(err)

	code := CodeUnknown
	switch {
	case status == 401:
		code = CodeUnauthorized
	case status == 403:
		code = CodeForbidden
	case status == 404:
		code = CodeNotFound
	case status == 429:
		code = CodeRateLimited
	case strings.Contains(msg, "expired token") ||
		strings.Contains(msg, "session has expired") ||
		strings.Contains(msg, "token has expired"):
		code = CodeTokenExpired
	case strings.Contains(msg, "missing permission") ||
		strings.Contains(msg, "insufficient permission"):
		code = CodeMissingScope
	case platform == domain.PlatformInstagram &&
		(strings.Contains(msg, "image is required") ||
			strings.Contains(msg, "requires at least one image") ||
			strings.Contains(msg, "media type requires")):
		code = CodeImageRequired
	case isNetworkMessage(err, msg):
		code = CodeNetworkError
	case status >= 500:
		code = CodeServerError
	case status >= 400:
		code = CodeProviderError
	}

	userMsg, ok := userMessages[code]
	if !ok {
		userMsg = Redact(raw)
	}

	return &ProviderError{
		Code:        code,
		Platform:    platform,
		UserMessage: userMsg,
		Status:      status,
		raw:         raw,
	}
}

// NewProviderError builds a pre-classified error, used for hard
// preconditions such as a missing required image.
func NewProviderError(code Code, platform domain.Platform, detail string) *ProviderError {
	userMsg, ok := userMessages[code]
	if !ok {
		userMsg = Redact(detail)
	}
	return &ProviderError{
		Code:        code,
		Platform:    platform,
		UserMessage: userMsg,
		raw:         detail,
	}
}

func httpStatus(err error) int {
	var hs resilience.HTTPStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return 0
}

func isNetworkMessage(err error, msg string) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if resilience.IsTimeout(err) {
		return true
	}
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out")
}
