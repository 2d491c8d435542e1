package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/rvpalivoda/authsession/session"
)

// DeriveIdentity builds the identity snapshot for a freshly issued access
// credential. The subject becomes the display name; username falls back to
// the subject when the caller does not know it.
func DeriveIdentity(access, username string, subject func(string) string) session.Identity {
	sub := ""
	if subject != nil {
		sub = subject(access)
	}
	id := session.Identity{Username: username, DisplayName: sub}
	if id.Username == "" {
		id.Username = sub
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Username
	}
	return id
}

// RederiveIdentity recomputes the snapshot after rotation. Fields the access
// credential cannot supply are kept from prior.
func RederiveIdentity(access string, prior session.Identity, hasPrior bool, subject func(string) string) session.Identity {
	if !hasPrior {
		return DeriveIdentity(access, "", subject)
	}
	next := prior
	if subject != nil {
		if sub := subject(access); sub != "" {
			next.DisplayName = sub
			if next.Username == "" {
				next.Username = sub
			}
		}
	}
	return next
}

// MergeProfile overlays server profile fields on a derived snapshot.
func MergeProfile(base, profile session.Identity) session.Identity {
	if profile.Username != "" {
		base.Username = profile.Username
	}
	if profile.DisplayName != "" {
		base.DisplayName = profile.DisplayName
	}
	base.TwoFAEnabled = profile.TwoFAEnabled
	base.PinCodeSet = profile.PinCodeSet
	return base
}

// Persist writes credentials, then identity. If the identity write fails
// the credentials are rolled back so the operation fails as a whole.
func Persist(ctx context.Context, creds session.Credentials, id session.Identity, st Stores) error {
	if err := st.Tokens.Save(ctx, creds); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	if err := st.Identities.Save(ctx, id); err != nil {
		if clearErr := st.Tokens.Clear(ctx); clearErr != nil {
			return errors.Join(fmt.Errorf("persist identity: %w", err), clearErr)
		}
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}

// Teardown clears identity, then credentials. Both clears are attempted.
func Teardown(ctx context.Context, st Stores) error {
	var errs []error
	if err := st.Identities.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear identity: %w", err))
	}
	if err := st.Tokens.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear credentials: %w", err))
	}
	return errors.Join(errs...)
}
