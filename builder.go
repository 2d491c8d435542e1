package authsession

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/rvpalivoda/authsession/internal/flows"
	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/jwt"
	"github.com/rvpalivoda/authsession/session"
	"github.com/rvpalivoda/authsession/storage"
)

// Builder assembles a Session. Configure it during initialization and call
// Build once.
type Builder struct {
	config     Config
	store      storage.KV
	clock      clockwork.Clock
	logger     *zerolog.Logger
	httpClient *http.Client
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. Without it the session lives in
// memory only.
func (b *Builder) WithStore(kv storage.KV) *Builder {
	b.store = kv
	return b
}

func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// WithHTTPClient sets the client used for every request. Its Timeout wins
// over HTTP.Timeout when both are set.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and restores the persisted session.
//
// An identity record without a credential pair is stale and is removed. A
// credential pair without an identity gets one derived from its subject.
func (b *Builder) Build(ctx context.Context) (*Session, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if b.logger != nil {
		log = *b.logger
	}
	log = log.With().Str("component", "authsession").Logger()

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	kv := b.store
	if kv == nil {
		kv = storage.NewMemory()
	}

	client, err := transport.New(transport.Options{
		BaseURL:    cfg.HTTP.BaseURL,
		HTTPClient: b.httpClient,
		Timeout:    cfg.HTTP.Timeout,
		UserAgent:  cfg.HTTP.UserAgent,
		Tracing:    cfg.HTTP.Tracing,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:  cfg,
		log:     log,
		clock:   clock,
		client:  client,
		tokens:  session.NewTokenStore(kv, cfg.Storage.TokenKey, log),
		ids:     session.NewIdentityStore(kv, cfg.Storage.IdentityKey, log),
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink, clock),
	}
	s.gateway = &Gateway{s: s}
	s.flows = s.buildFlowDeps()
	s.restore(ctx)

	b.built = true

	return s, nil
}

func (s *Session) buildFlowDeps() flows.Deps {
	stores := flows.Stores{Tokens: s.tokens, Identities: s.ids}
	profile := flows.ProfileDeps{Client: s.client, Path: s.config.Endpoints.Profile}

	establish := flows.EstablishDeps{
		Client:  s.client,
		Stores:  stores,
		Subject: jwt.ExtractSubject,
		Warn: func(msg string, err error) {
			s.log.Warn().Err(err).Str("op", "login").Msg(msg)
		},
	}
	if s.config.Profile.FetchOnLogin {
		establish.FetchProfile = func(ctx context.Context, access string) (session.Identity, error) {
			return flows.RunFetchProfile(ctx, access, profile)
		}
	}

	return flows.Deps{
		Establish: establish,
		Renew: flows.RenewDeps{
			Client:  s.client,
			Path:    s.config.Endpoints.Refresh,
			Stores:  stores,
			Subject: jwt.ExtractSubject,
		},
		Logout: flows.LogoutDeps{
			Client:  s.client,
			Path:    s.config.Endpoints.Logout,
			Timeout: s.config.Logout.Timeout,
			Stores:  stores,
		},
		Profile: profile,
	}
}

// restore loads the persisted records into memory.
func (s *Session) restore(ctx context.Context) {
	creds, hasCreds := s.tokens.Load(ctx)
	id, hasID := s.ids.Load(ctx)

	switch {
	case hasID && !hasCreds:
		if err := s.ids.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Str("op", "restore").Msg("clearing stale identity failed")
		}
		hasID = false
	case hasCreds && !hasID:
		id = flows.DeriveIdentity(creds.Access, "", jwt.ExtractSubject)
		if err := s.ids.Save(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("op", "restore").Msg("persisting derived identity failed")
		}
		hasID = true
	}

	s.mu.Lock()
	s.creds, s.hasCreds = creds, hasCreds
	s.identity, s.hasIdentity = id, hasID
	s.epoch = 1
	s.mu.Unlock()

	s.log.Debug().Str("op", "restore").Bool("authenticated", hasCreds).Msg("session restored")
}
