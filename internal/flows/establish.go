package flows

import (
	"context"
	"fmt"

	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/session"
)

// EstablishFailureKind classifies login and recovery failures for
// root-level mapping.
type EstablishFailureKind int

const (
	EstablishFailureNone EstablishFailureKind = iota
	EstablishFailureTransport
	EstablishFailureRejected
	EstablishFailureMalformed
	EstablishFailurePersist
)

// EstablishResult carries either the new session or failure metadata.
// Status and Message are set for EstablishFailureRejected.
type EstablishResult struct {
	Failure     EstablishFailureKind
	Err         error
	Status      int
	Message     string
	Credentials session.Credentials
	Identity    session.Identity
}

// EstablishDeps captures login/recovery dependencies.
type EstablishDeps struct {
	Client  Doer
	Stores  Stores
	Subject func(access string) string
	// FetchProfile is optional. Its failure is reported through Warn and
	// does not fail the flow.
	FetchProfile func(ctx context.Context, access string) (session.Identity, error)
	Warn         func(msg string, err error)
}

// LoginInput is the login request.
type LoginInput struct {
	Path     string
	Username string
	Password string
	Captcha  string
}

// RecoverInput is the recovery request. NewPassword is sent only when set.
type RecoverInput struct {
	Path        string
	Username    string
	Words       []string
	Indices     []int
	Captcha     string
	NewPassword string
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

type recoverBody struct {
	Username    string   `json:"username"`
	Words       []string `json:"words"`
	Indices     []int    `json:"indices"`
	Captcha     string   `json:"captcha"`
	NewPassword string   `json:"new_password,omitempty"`
}

// RunLogin exchanges username and password for a credential pair and
// persists the resulting session.
func RunLogin(ctx context.Context, in LoginInput, deps EstablishDeps) EstablishResult {
	req := post(in.Path, loginBody{
		Username: in.Username,
		Password: in.Password,
		Captcha:  in.Captcha,
	})
	return runEstablish(ctx, req, in.Username, deps)
}

// RunRecover proves knowledge of the requested recovery words and persists
// the resulting session exactly like RunLogin.
func RunRecover(ctx context.Context, in RecoverInput, deps EstablishDeps) EstablishResult {
	req := post(in.Path, recoverBody{
		Username:    in.Username,
		Words:       in.Words,
		Indices:     in.Indices,
		Captcha:     in.Captcha,
		NewPassword: in.NewPassword,
	})
	return runEstablish(ctx, req, in.Username, deps)
}

func runEstablish(ctx context.Context, req transport.Request, username string, deps EstablishDeps) EstablishResult {
	res, err := deps.Client.Do(ctx, req)
	if err != nil {
		return EstablishResult{Failure: EstablishFailureTransport, Err: err}
	}
	if !res.OK() {
		return EstablishResult{
			Failure: EstablishFailureRejected,
			Err:     fmt.Errorf("status %d: %s", res.Status, res.Message()),
			Status:  res.Status,
			Message: res.Message(),
		}
	}

	var tokens tokenResponse
	if err := res.Decode(&tokens); err != nil {
		return EstablishResult{Failure: EstablishFailureMalformed, Err: err}
	}
	creds := tokens.credentials()
	if !creds.Valid() {
		return EstablishResult{
			Failure: EstablishFailureMalformed,
			Err:     fmt.Errorf("%w: token pair incomplete", transport.ErrMalformed),
		}
	}

	identity := DeriveIdentity(creds.Access, username, deps.Subject)
	if deps.FetchProfile != nil {
		profile, err := deps.FetchProfile(ctx, creds.Access)
		if err != nil {
			if deps.Warn != nil {
				deps.Warn("profile fetch failed", err)
			}
		} else {
			identity = MergeProfile(identity, profile)
		}
	}

	// The server has issued a pair; finish persisting it regardless of the
	// caller going away.
	persistCtx := context.WithoutCancel(ctx)
	if err := Persist(persistCtx, creds, identity, deps.Stores); err != nil {
		return EstablishResult{Failure: EstablishFailurePersist, Err: err}
	}

	return EstablishResult{
		Failure:     EstablishFailureNone,
		Credentials: creds,
		Identity:    identity,
	}
}
