package authsession

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rvpalivoda/authsession/internal/flows"
	"github.com/rvpalivoda/authsession/session"
)

// Account mutations go through the gateway. None of them change the session
// state; server errors are returned unchanged.

type passwordBody struct {
	Password string `json:"password"`
}

// ChangePassword replaces the account password.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	if s == nil {
		return ErrSessionNotReady
	}
	return s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.ChangePassword, struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{current, next}, nil)
}

// VerifyPassword asks the server whether password is correct.
func (s *Session) VerifyPassword(ctx context.Context, password string) (bool, error) {
	if s == nil {
		return false, ErrSessionNotReady
	}
	var out struct {
		Verified bool `json:"verified"`
	}
	if err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.VerifyPassword, passwordBody{password}, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

func (s *Session) SetPinCode(ctx context.Context, password, pin string) error {
	if s == nil {
		return ErrSessionNotReady
	}
	err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.SetPinCode, struct {
		Password string `json:"password"`
		PinCode  string `json:"pin_code"`
	}{password, pin}, nil)
	if err != nil {
		return err
	}
	s.updateIdentity(ctx, func(id *session.Identity) { id.PinCodeSet = true })
	return nil
}

// Enable2FA starts two-factor enrollment. It takes effect after Verify2FA
// accepts a code generated from the returned secret.
func (s *Session) Enable2FA(ctx context.Context, password string) (TwoFactorSetup, error) {
	if s == nil {
		return TwoFactorSetup{}, ErrSessionNotReady
	}
	var out TwoFactorSetup
	if err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.Enable2FA, passwordBody{password}, &out); err != nil {
		return TwoFactorSetup{}, err
	}
	if out.Secret == "" && out.OTPAuthURL == "" {
		return TwoFactorSetup{}, fmt.Errorf("%w: empty 2fa setup", ErrMalformedResponse)
	}
	return out, nil
}

func (s *Session) Verify2FA(ctx context.Context, code string) (bool, error) {
	if s == nil {
		return false, ErrSessionNotReady
	}
	var out struct {
		Verified bool `json:"verified"`
	}
	err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.Verify2FA, struct {
		Code string `json:"code"`
	}{code}, &out)
	if err != nil {
		return false, err
	}
	if out.Verified {
		s.updateIdentity(ctx, func(id *session.Identity) { id.TwoFAEnabled = true })
	}
	return out.Verified, nil
}

func (s *Session) Disable2FA(ctx context.Context, password string) error {
	if s == nil {
		return ErrSessionNotReady
	}
	if err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.Disable2FA, passwordBody{password}, nil); err != nil {
		return err
	}
	s.updateIdentity(ctx, func(id *session.Identity) { id.TwoFAEnabled = false })
	return nil
}

// RegenerateWords replaces the recovery words. The new words are returned
// once and never persisted.
func (s *Session) RegenerateWords(ctx context.Context, password string) (Mnemonic, error) {
	if s == nil {
		return nil, ErrSessionNotReady
	}
	var out struct {
		Mnemonic Mnemonic `json:"mnemonic"`
	}
	if err := s.Gateway().Request(ctx, http.MethodPost, s.config.Endpoints.RegenerateWords, passwordBody{password}, &out); err != nil {
		return nil, err
	}
	if len(out.Mnemonic) == 0 {
		return nil, fmt.Errorf("%w: no mnemonic", ErrMalformedResponse)
	}
	return out.Mnemonic, nil
}

// RefreshProfile reloads the server profile into the cached identity.
func (s *Session) RefreshProfile(ctx context.Context) (Identity, error) {
	if s == nil {
		return Identity{}, ErrSessionNotReady
	}
	var out struct {
		Username     string `json:"username"`
		Name         string `json:"name"`
		TwoFAEnabled bool   `json:"twofa_enabled"`
		PinCodeSet   bool   `json:"pincode_set"`
	}
	if err := s.Gateway().Request(ctx, http.MethodGet, s.config.Endpoints.Profile, nil, &out); err != nil {
		return Identity{}, err
	}
	profile := flows.ProfileIdentity(out.Username, out.Name, out.TwoFAEnabled, out.PinCodeSet)
	s.updateIdentity(ctx, func(id *session.Identity) { *id = flows.MergeProfile(*id, profile) })

	id, _ := s.Identity()
	return id, nil
}
