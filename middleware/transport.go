package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rvpalivoda/authsession"
)

// Authorizer runs an attempt under a session's renewal policy.
// *authsession.Session implements it.
type Authorizer interface {
	Authorize(ctx context.Context, attempt authsession.Attempt) (authsession.Outcome, error)
}

var _ http.RoundTripper = (*Transport)(nil)

// Transport authorizes requests through a session.
//
// A 401 is retried once after renewal when the request body can be
// replayed (no body, or GetBody set). When the session cannot renew, the
// final 401 response is returned rather than an error, so callers see the
// status the server sent.
type Transport struct {
	Session Authorizer
	// Base performs the round-trips; nil means http.DefaultTransport.
	Base http.RoundTripper
}

func NewTransport(s Authorizer, base http.RoundTripper) *Transport {
	return &Transport{Session: s, Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t == nil || t.Session == nil {
		closeBody(req)
		return nil, authsession.ErrSessionNotReady
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var (
		last     *http.Response
		attempts int
	)
	_, err := t.Session.Authorize(req.Context(), func(ctx context.Context, access string) (authsession.Outcome, error) {
		out, err := prepare(req, attempts)
		if err != nil {
			return authsession.OutcomeDone, err
		}
		attempts++
		if access != "" {
			out.Header.Set("Authorization", "Bearer "+access)
		} else {
			out.Header.Del("Authorization")
		}

		if last != nil {
			drain(last)
			last = nil
		}
		res, err := base.RoundTrip(out)
		if err != nil {
			return authsession.OutcomeDone, err
		}
		last = res
		if res.StatusCode == http.StatusUnauthorized && replayable(req) {
			return authsession.OutcomeUnauthorized, nil
		}
		return authsession.OutcomeDone, nil
	})

	if attempts == 0 {
		closeBody(req)
	}
	switch {
	case err == nil:
		return last, nil
	case last != nil && last.StatusCode == http.StatusUnauthorized && errors.Is(err, authsession.ErrUnauthenticated):
		return last, nil
	default:
		if last != nil {
			drain(last)
		}
		return nil, err
	}
}

// prepare returns the request to send on the given attempt. The first
// attempt reuses the caller's body; later ones rewind it through GetBody.
func prepare(req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(req.Context())
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func closeBody(req *http.Request) {
	if req != nil && req.Body != nil {
		_ = req.Body.Close()
	}
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
	_ = res.Body.Close()
}
