package authsession

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rvpalivoda/authsession/internal/flows"
	"github.com/rvpalivoda/authsession/internal/transport"
)

// Login exchanges username and password for a credential pair. On success
// the session is Authenticated and both records are persisted; on failure
// nothing changes.
func (s *Session) Login(ctx context.Context, username, password, captcha string) error {
	if s == nil {
		return ErrSessionNotReady
	}
	res := flows.RunLogin(ctx, flows.LoginInput{
		Path:     s.config.Endpoints.Login,
		Username: username,
		Password: password,
		Captcha:  captcha,
	}, s.flows.Establish)

	err := s.finishEstablish(res)
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
	} else {
		s.metrics.Inc(MetricLoginSuccess)
	}
	s.audit.record(ctx, AuditLogin, username, err, nil)
	s.logResult("login", username, err)
	return err
}

// Recover signs in by proving knowledge of the recovery words the server
// asked for (see RecoveryChallenge). It behaves like Login on success.
func (s *Session) Recover(ctx context.Context, req RecoverRequest) error {
	if s == nil {
		return ErrSessionNotReady
	}
	if len(req.Words) != len(req.Indices) {
		return fmt.Errorf("%w: recover: %d words for %d indices", ErrInvalidRequest, len(req.Words), len(req.Indices))
	}
	res := flows.RunRecover(ctx, flows.RecoverInput{
		Path:        s.config.Endpoints.Recover,
		Username:    req.Username,
		Words:       req.Words,
		Indices:     req.Indices,
		Captcha:     req.Captcha,
		NewPassword: req.NewPassword,
	}, s.flows.Establish)

	err := s.finishEstablish(res)
	if err != nil {
		s.metrics.Inc(MetricRecoverFailure)
	} else {
		s.metrics.Inc(MetricRecoverSuccess)
	}
	s.audit.record(ctx, AuditRecover, req.Username, err, map[string]string{
		"password_reset": fmt.Sprint(req.NewPassword != ""),
	})
	s.logResult("recover", req.Username, err)
	return err
}

func (s *Session) finishEstablish(res flows.EstablishResult) error {
	switch res.Failure {
	case flows.EstablishFailureNone:
		s.install(res.Credentials, res.Identity)
		return nil
	case flows.EstablishFailureRejected:
		return credentialRejection(res.Status, res.Message)
	case flows.EstablishFailureTransport, flows.EstablishFailureMalformed:
		return mapTransportError(res.Err)
	default:
		return res.Err
	}
}

// RecoveryChallenge asks the server which recovery word positions to
// prompt for.
func (s *Session) RecoveryChallenge(ctx context.Context, username string) (RecoveryChallenge, error) {
	if s == nil {
		return RecoveryChallenge{}, ErrSessionNotReady
	}
	path := strings.ReplaceAll(s.config.Endpoints.RecoveryChallenge, usernamePlaceholder, url.PathEscape(username))

	var out RecoveryChallenge
	if err := s.anonymous(ctx, http.MethodGet, path, nil, &out); err != nil {
		return RecoveryChallenge{}, err
	}
	if len(out.Positions) == 0 {
		return RecoveryChallenge{}, fmt.Errorf("%w: no positions", ErrMalformedResponse)
	}
	return out, nil
}

type registerBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Captcha  string `json:"captcha"`
}

// Register creates an account and returns its recovery words. The session
// stays Anonymous: tokens in the response are ignored and the words are
// never persisted.
func (s *Session) Register(ctx context.Context, username, password, captcha string) (Mnemonic, error) {
	if s == nil {
		return nil, ErrSessionNotReady
	}
	var out struct {
		Mnemonic Mnemonic `json:"mnemonic"`
	}
	err := s.anonymous(ctx, http.MethodPost, s.config.Endpoints.Register, registerBody{
		Username: username,
		Password: password,
		Captcha:  captcha,
	}, &out)
	if err == nil && len(out.Mnemonic) == 0 {
		err = fmt.Errorf("%w: no mnemonic", ErrMalformedResponse)
	}

	if err != nil {
		s.metrics.Inc(MetricRegisterFailure)
	} else {
		s.metrics.Inc(MetricRegisterSuccess)
	}
	s.audit.record(ctx, AuditRegister, username, err, nil)
	s.logResult("register", username, err)
	if err != nil {
		return nil, err
	}
	return out.Mnemonic, nil
}

// anonymous sends an unauthenticated request. Rejections map through
// credentialRejection since these endpoints gate on user input.
func (s *Session) anonymous(ctx context.Context, method, path string, body, out any) error {
	res, err := s.client.Do(ctx, transport.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return mapTransportError(err)
	}
	if !res.OK() {
		return credentialRejection(res.Status, res.Message())
	}
	if err := res.Decode(out); err != nil {
		return mapTransportError(err)
	}
	return nil
}

// Logout ends the session. The server is notified on a best-effort basis
// within Logout.Timeout; local state is cleared regardless. The returned
// error reports only a failure to clear local storage.
func (s *Session) Logout(ctx context.Context) error {
	if s == nil {
		return ErrSessionNotReady
	}

	s.mu.Lock()
	creds, hasCreds := s.creds, s.hasCreds
	username := s.identity.Username
	s.creds, s.hasCreds = Credentials{}, false
	s.identity, s.hasIdentity = Identity{}, false
	s.epoch++
	s.mu.Unlock()

	if !hasCreds {
		creds = Credentials{}
	}
	res := flows.RunLogout(ctx, creds, s.flows.Logout)

	s.metrics.Inc(MetricLogout)
	if res.NotifyErr != nil {
		s.metrics.Inc(MetricLogoutNotifyFailure)
		s.log.Warn().Err(res.NotifyErr).Str("op", "logout").Msg("server notification failed")
	}
	if res.ClearErr != nil {
		s.log.Error().Err(res.ClearErr).Str("op", "logout").Msg("clearing persisted session failed")
	}
	s.audit.record(ctx, AuditLogout, username, res.ClearErr, map[string]string{
		"notified": fmt.Sprint(res.Notified),
	})
	return res.ClearErr
}

func (s *Session) logResult(op, username string, err error) {
	if err != nil {
		s.log.Info().Err(err).Str("op", op).Str("username", username).Msg("operation failed")
		return
	}
	s.log.Info().Str("op", op).Str("username", username).Msg("operation succeeded")
}
