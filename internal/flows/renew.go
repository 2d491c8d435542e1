package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/session"
)

// RenewFailureKind classifies renewal failures for root-level mapping.
type RenewFailureKind int

const (
	RenewFailureNone RenewFailureKind = iota
	RenewFailureNoRefresh
	RenewFailureTransport
	RenewFailureRejected
	RenewFailureMalformed
	RenewFailurePersist
)

// RenewResult carries either the rotated pair or failure metadata.
type RenewResult struct {
	Failure     RenewFailureKind
	Err         error
	Status      int
	Message     string
	Credentials session.Credentials
	Identity    session.Identity
}

// RenewDeps captures renewal dependencies.
type RenewDeps struct {
	Client  Doer
	Path    string
	Stores  Stores
	Subject func(access string) string
}

// RenewInput is the state the renewal starts from.
type RenewInput struct {
	Current  session.Credentials
	Prior    session.Identity
	HasPrior bool
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

var errNoRefresh = errors.New("no refresh credential")

// RunRenew exchanges the current refresh credential for a rotated pair and
// persists it. It never tears the session down; callers decide that from
// the failure kind.
func RunRenew(ctx context.Context, in RenewInput, deps RenewDeps) RenewResult {
	if in.Current.Refresh == "" {
		return RenewResult{Failure: RenewFailureNoRefresh, Err: errNoRefresh}
	}

	res, err := deps.Client.Do(ctx, post(deps.Path, refreshBody{RefreshToken: in.Current.Refresh}))
	if err != nil {
		return RenewResult{Failure: RenewFailureTransport, Err: err}
	}
	if !res.OK() {
		return RenewResult{
			Failure: RenewFailureRejected,
			Err:     fmt.Errorf("status %d: %s", res.Status, res.Message()),
			Status:  res.Status,
			Message: res.Message(),
		}
	}

	var tokens tokenResponse
	if err := res.Decode(&tokens); err != nil {
		return RenewResult{Failure: RenewFailureMalformed, Err: err}
	}
	next := tokens.credentials()
	if !next.Valid() {
		return RenewResult{
			Failure: RenewFailureMalformed,
			Err:     fmt.Errorf("%w: token pair incomplete", transport.ErrMalformed),
		}
	}

	identity := RederiveIdentity(next.Access, in.Prior, in.HasPrior, deps.Subject)
	if err := Persist(context.WithoutCancel(ctx), next, identity, deps.Stores); err != nil {
		return RenewResult{Failure: RenewFailurePersist, Err: err}
	}

	return RenewResult{
		Failure:     RenewFailureNone,
		Credentials: next,
		Identity:    identity,
	}
}
