package authsession

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rvpalivoda/authsession/internal/transport"
)

var (
	// ErrInvalidCredentials is returned when login or recovery is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCaptchaRejected is returned when the server refuses the captcha answer.
	ErrCaptchaRejected = errors.New("captcha rejected")
	// ErrUnauthenticated means there is no usable refresh credential or
	// renewal failed. The session is Anonymous afterwards.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedResponse means a response body did not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRequestFailed is the kind of any other non-success HTTP outcome.
	ErrRequestFailed = errors.New("request failed")
	// ErrNetworkUnavailable means no response was received.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrInvalidRequest means the caller's arguments were rejected before
	// anything was sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionNotReady is returned by methods called on a nil Session.
	ErrSessionNotReady = errors.New("session not ready")
)

// RequestError is an HTTP outcome the server answered with. It unwraps to
// its Kind, so errors.Is(err, ErrRequestFailed) and errors.As(err,
// *RequestError) both work.
type RequestError struct {
	Status  int
	Message string
	Kind    error
}

func (e *RequestError) Error() string {
	kind := ErrRequestFailed
	if e.Kind != nil {
		kind = e.Kind
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", kind, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", kind, e.Status, e.Message)
}

func (e *RequestError) Unwrap() error {
	if e.Kind == nil {
		return ErrRequestFailed
	}
	return e.Kind
}

func requestFailed(status int, message string) error {
	return &RequestError{Status: status, Message: message, Kind: ErrRequestFailed}
}

// credentialRejection maps a refused login, registration or recovery.
func credentialRejection(status int, message string) error {
	kind := ErrRequestFailed
	switch {
	case strings.Contains(strings.ToLower(message), "captcha"):
		kind = ErrCaptchaRejected
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrInvalidCredentials
	}
	return &RequestError{Status: status, Message: message, Kind: kind}
}

// mapTransportError converts transport-level failures to the public taxonomy.
func mapTransportError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	case errors.Is(err, transport.ErrMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	default:
		return err
	}
}
