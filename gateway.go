package authsession

import (
	"context"
	"net/http"

	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/jwt"
)

// Outcome is what one attempt of an authenticated call observed.
type Outcome int

const (
	// OutcomeDone means the attempt finished; the caller interprets the
	// response.
	OutcomeDone Outcome = iota
	// OutcomeUnauthorized means the server rejected the access credential.
	OutcomeUnauthorized
)

// Attempt performs one try of an authenticated call with the given access
// credential, which is empty when the session is Anonymous.
type Attempt func(ctx context.Context, access string) (Outcome, error)

// Authorize runs attempt under the renew-once, retry-once policy:
//
//   - attempt runs with the current access credential (after a proactive
//     renewal when enabled and the credential is about to expire);
//   - on OutcomeUnauthorized with a refresh credential held and no renewal
//     yet for this call, the session renews and attempt runs once more;
//   - renewal failure tears the session down and returns an error matching
//     ErrUnauthenticated;
//   - an OutcomeUnauthorized with nothing to renew returns
//     ErrUnauthenticated.
//
// An OutcomeUnauthorized from the retry is returned to the caller as is.
func (s *Session) Authorize(ctx context.Context, attempt Attempt) (Outcome, error) {
	if s == nil {
		return OutcomeDone, ErrSessionNotReady
	}

	creds, ok := s.Credentials()
	renewed := false

	if ok && s.shouldRenewEarly(creds.Access) {
		next, err := s.renew(ctx, creds.Access)
		if err != nil {
			return OutcomeDone, err
		}
		creds, renewed = next, true
	}

	outcome, err := attempt(ctx, creds.Access)
	if err != nil || outcome != OutcomeUnauthorized {
		return outcome, err
	}
	if renewed {
		return outcome, nil
	}
	if !ok || creds.Refresh == "" {
		return outcome, ErrUnauthenticated
	}

	next, err := s.renew(ctx, creds.Access)
	if err != nil {
		return outcome, err
	}

	s.metrics.Inc(MetricGatewayRetry)
	return attempt(ctx, next.Access)
}

func (s *Session) shouldRenewEarly(access string) bool {
	if !s.config.Renewal.Proactive {
		return false
	}
	exp, ok := jwt.ExpiresAt(access)
	if !ok {
		return false
	}
	return !s.clock.Now().Before(exp.Add(-s.config.Renewal.Skew))
}

// Gateway sends JSON requests as the session's user.
type Gateway struct {
	s *Session
}

// Request sends body (JSON-encoded when non-nil) to path and decodes a 2xx
// response into out; a nil out discards the body.
//
// A 401 triggers at most one renewal and one retry. Errors: transport
// failures match ErrNetworkUnavailable, undecodable bodies
// ErrMalformedResponse, renewal failures ErrUnauthenticated, and any other
// non-2xx a *RequestError matching ErrRequestFailed.
func (g *Gateway) Request(ctx context.Context, method, path string, body, out any) error {
	if g == nil || g.s == nil {
		return ErrSessionNotReady
	}
	s := g.s
	start := s.clock.Now()
	defer func() { s.metrics.Observe(MetricRequestLatency, s.clock.Since(start)) }()

	var last *transport.Response
	_, err := s.Authorize(ctx, func(ctx context.Context, access string) (Outcome, error) {
		res, err := s.client.Do(ctx, transport.Request{
			Method: method,
			Path:   path,
			Body:   body,
			Bearer: access,
		})
		if err != nil {
			return OutcomeDone, mapTransportError(err)
		}
		last = res
		if res.Status == http.StatusUnauthorized {
			return OutcomeUnauthorized, nil
		}
		return OutcomeDone, nil
	})
	if err != nil {
		return err
	}

	if !last.OK() {
		return requestFailed(last.Status, last.Message())
	}
	if err := last.Decode(out); err != nil {
		return mapTransportError(err)
	}
	return nil
}
