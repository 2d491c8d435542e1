package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/rvpalivoda/authsession/session"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Client  Doer
	Path    string
	Timeout time.Duration
	Stores  Stores
}

// LogoutResult reports the two halves of a logout separately: the server
// notification is best effort, the local clear is not.
type LogoutResult struct {
	Notified  bool
	NotifyErr error
	ClearErr  error
}

// RunLogout tells the server to drop the refresh credential and clears both
// stores. The notification runs alongside the clear and is bounded by
// Timeout; it never renews and never delays the local teardown.
func RunLogout(ctx context.Context, creds session.Credentials, deps LogoutDeps) LogoutResult {
	var notify chan error
	if creds.Refresh != "" && deps.Client != nil {
		notify = make(chan error, 1)
		nctx := context.WithoutCancel(ctx)
		cancel := context.CancelFunc(func() {})
		if deps.Timeout > 0 {
			nctx, cancel = context.WithTimeout(nctx, deps.Timeout)
		}
		go func() {
			defer cancel()
			req := post(deps.Path, refreshBody{RefreshToken: creds.Refresh})
			req.Bearer = creds.Access
			res, err := deps.Client.Do(nctx, req)
			switch {
			case err != nil:
				notify <- err
			case !res.OK():
				notify <- fmt.Errorf("logout notification: status %d: %s", res.Status, res.Message())
			default:
				notify <- nil
			}
		}()
	}

	out := LogoutResult{ClearErr: Teardown(context.WithoutCancel(ctx), deps.Stores)}

	if notify != nil {
		select {
		case err := <-notify:
			out.NotifyErr = err
			out.Notified = err == nil
		case <-ctx.Done():
			out.NotifyErr = ctx.Err()
		}
	}
	return out
}
