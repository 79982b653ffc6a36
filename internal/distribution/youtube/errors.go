package youtube

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

type AuthReason string

const (
	ReasonMissingCredential  AuthReason = "missing_credential"
	ReasonCredentialRejected AuthReason = "credential_rejected"
	ReasonCredentialExpired  AuthReason = "credential_expired"
	ReasonTokenEndpoint      AuthReason = "token_endpoint"
)

// AuthError is returned when no access token could be obtained from the
// refresh credential. Operators should rotate credentials rather than retry.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	switch e.Reason {
	case ReasonCredentialExpired:
		return fmt.Sprintf("youtube auth: refresh token expired or revoked, obtain a new one: %v", e.Err)
	case ReasonCredentialRejected:
		return fmt.Sprintf("youtube auth: client credentials rejected: %v", e.Err)
	case ReasonMissingCredential:
		return fmt.Sprintf("youtube auth: %v", e.Err)
	default:
		return fmt.Sprintf("youtube auth: token exchange failed: %v", e.Err)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// SessionError is a terminal rejection while opening an upload session or an
// authentication failure inside one.
type SessionError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *SessionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube session rejected (%d %s): %v", e.StatusCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("youtube session rejected (%d): %v", e.StatusCode, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

type QuotaError struct {
	Reason string
	Err    error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("youtube quota exceeded (%s): %v", e.Reason, e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// UploadError is a terminal chunk failure, either rejected by the platform
// or transient errors that outlasted the retry policy.
type UploadError struct {
	Offset     int64
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("youtube upload failed at byte %d (%d): %v", e.Offset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("youtube upload failed at byte %d: %v", e.Offset, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

var quotaReasons = map[string]bool{
	"quotaExceeded":       true,
	"uploadLimitExceeded": true,
	"dailyLimitExceeded":  true,
}

// rateLimitReasons arrive as 403 but clear up on their own, like a 429.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

const reasonAuthError = "authError"

// apiError reads a non-success response into a googleapi.Error.
func apiError(resp *http.Response) *googleapi.Error {
	err := googleapi.CheckResponse(resp)
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr
	}
	return &googleapi.Error{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}

func firstReason(gErr *googleapi.Error) string {
	for _, item := range gErr.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return ""
}

// classifyRejection turns a terminal 4xx into auth, quota or the fallback.
func classifyRejection(gErr *googleapi.Error, fallback func(*googleapi.Error) error) error {
	reason := firstReason(gErr)
	switch {
	case quotaReasons[reason]:
		return &QuotaError{Reason: reason, Err: gErr}
	case gErr.Code == http.StatusUnauthorized || reason == reasonAuthError:
		return &SessionError{StatusCode: gErr.Code, Reason: reason, Err: gErr}
	default:
		return fallback(gErr)
	}
}

func rateLimited(gErr *googleapi.Error) bool {
	return rateLimitReasons[firstReason(gErr)]
}

func classifyTokenError(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant":
			return &AuthError{Reason: ReasonCredentialExpired, Err: err}
		case "invalid_client", "unauthorized_client":
			return &AuthError{Reason: ReasonCredentialRejected, Err: err}
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized {
			return &AuthError{Reason: ReasonCredentialRejected, Err: err}
		}
	}
	return &AuthError{Reason: ReasonTokenEndpoint, Err: err}
}
