package flows

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/session"
)

// ProfileDeps captures profile fetch dependencies.
type ProfileDeps struct {
	Client Doer
	Path   string
}

type profileResponse struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	TwoFAEnabled bool   `json:"twofa_enabled"`
	PinCodeSet   bool   `json:"pincode_set"`
}

// ProfileError is a non-2xx profile response.
type ProfileError struct {
	Status  int
	Message string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("profile: status %d: %s", e.Status, e.Message)
}

// RunFetchProfile loads the server's view of the account using access as
// the bearer. It does not renew.
func RunFetchProfile(ctx context.Context, access string, deps ProfileDeps) (session.Identity, error) {
	res, err := deps.Client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   deps.Path,
		Bearer: access,
	})
	if err != nil {
		return session.Identity{}, err
	}
	if !res.OK() {
		return session.Identity{}, &ProfileError{Status: res.Status, Message: res.Message()}
	}
	var p profileResponse
	if err := res.Decode(&p); err != nil {
		return session.Identity{}, err
	}
	return ProfileIdentity(p.Username, p.Name, p.TwoFAEnabled, p.PinCodeSet), nil
}

// ProfileIdentity converts profile fields into a snapshot.
func ProfileIdentity(username, name string, twoFA, pin bool) session.Identity {
	return session.Identity{
		Username:     username,
		DisplayName:  name,
		TwoFAEnabled: twoFA,
		PinCodeSet:   pin,
	}
}
