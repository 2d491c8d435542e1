package flows

import (
	"context"
	"net/http"

	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/session"
)

// Doer sends one request to the auth server.
type Doer interface {
	Do(ctx context.Context, r transport.Request) (*transport.Response, error)
}

// CredentialStore is the slice of session.TokenStore the flows write to.
type CredentialStore interface {
	Save(ctx context.Context, c session.Credentials) error
	Clear(ctx context.Context) error
}

// IdentityStore is the slice of session.IdentityStore the flows write to.
type IdentityStore interface {
	Save(ctx context.Context, id session.Identity) error
	Clear(ctx context.Context) error
}

// Stores pairs the two persisted records.
type Stores struct {
	Tokens     CredentialStore
	Identities IdentityStore
}

// Deps groups flow dependency sets. The root session builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Establish EstablishDeps
	Renew     RenewDeps
	Logout    LogoutDeps
	Profile   ProfileDeps
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (t tokenResponse) credentials() session.Credentials {
	return session.Credentials{Access: t.AccessToken, Refresh: t.RefreshToken}
}

func post(path string, body any) transport.Request {
	return transport.Request{Method: http.MethodPost, Path: path, Body: body}
}
