package authsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rvpalivoda/authsession/internal/flows"
	"github.com/rvpalivoda/authsession/internal/transport"
	"github.com/rvpalivoda/authsession/session"
)

const renewKey = "renew"

// Session is the credential state machine for one end user. It is the only
// writer of the persisted records and is safe for concurrent use.
type Session struct {
	config  Config
	log     zerolog.Logger
	clock   clockwork.Clock
	client  *transport.Client
	tokens  *session.TokenStore
	ids     *session.IdentityStore
	flows   flows.Deps
	metrics *Metrics
	audit   *auditDispatcher
	gateway *Gateway

	mu          sync.RWMutex
	creds       session.Credentials
	hasCreds    bool
	identity    session.Identity
	hasIdentity bool
	// epoch advances on every establish and teardown, so a renewal that
	// finishes after one of them does not resurrect a replaced session.
	epoch uint64
	// idWrites orders identity saves so storage ends on the value memory
	// holds.
	idWrites sync.Mutex

	renewals singleflight.Group
}

// IsAuthenticated reports whether a credential pair is held.
func (s *Session) IsAuthenticated() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCreds
}

func (s *Session) State() State {
	if s.IsAuthenticated() {
		return Authenticated
	}
	return Anonymous
}

// Credentials returns the current pair.
func (s *Session) Credentials() (Credentials, bool) {
	if s == nil {
		return Credentials{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.hasCreds
}

// Identity returns the cached profile snapshot.
func (s *Session) Identity() (Identity, bool) {
	if s == nil {
		return Identity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.hasIdentity
}

// Gateway returns the authenticated request gateway bound to s.
func (s *Session) Gateway() *Gateway {
	if s == nil {
		return nil
	}
	return s.gateway
}

// MetricsSnapshot satisfies the exporter source interface.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return s.metrics.Snapshot()
}

// AuditDropped reports events discarded because the audit buffer was full.
func (s *Session) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// Close flushes pending audit events. The session stays usable but emits
// no further audit events.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.audit.Close()
}

// install replaces the in-memory session after a successful establish.
func (s *Session) install(creds session.Credentials, id session.Identity) {
	s.mu.Lock()
	s.creds, s.hasCreds = creds, true
	s.identity, s.hasIdentity = id, true
	s.epoch++
	s.mu.Unlock()
}

// Renew exchanges the refresh credential for a rotated pair. Concurrent
// callers share one round-trip and see the same outcome. On failure the
// session is torn down and the error matches ErrUnauthenticated.
func (s *Session) Renew(ctx context.Context) (Credentials, error) {
	if s == nil {
		return Credentials{}, ErrSessionNotReady
	}
	return s.renew(ctx, "")
}

// renew coordinates a single renewal. observed is the access credential the
// caller saw rejected; when the session has already moved past it, the
// current pair is returned without a round-trip. Waiters may give up through
// ctx, but the renewal itself always runs to completion.
func (s *Session) renew(ctx context.Context, observed string) (session.Credentials, error) {
	var started bool
	ch := s.renewals.DoChan(renewKey, func() (any, error) {
		started = true
		return s.runRenew(context.WithoutCancel(ctx), observed)
	})

	select {
	case r := <-ch:
		if r.Shared && !started {
			s.metrics.Inc(MetricRenewShared)
		}
		if r.Err != nil {
			return session.Credentials{}, r.Err
		}
		return r.Val.(session.Credentials), nil
	case <-ctx.Done():
		return session.Credentials{}, ctx.Err()
	}
}

func (s *Session) runRenew(ctx context.Context, observed string) (session.Credentials, error) {
	s.mu.RLock()
	current, hasCreds := s.creds, s.hasCreds
	prior, hasPrior := s.identity, s.hasIdentity
	epoch := s.epoch
	s.mu.RUnlock()

	if hasCreds && observed != "" && current.Access != observed {
		return current, nil
	}
	if !hasCreds {
		return session.Credentials{}, ErrUnauthenticated
	}

	res := flows.RunRenew(ctx, flows.RenewInput{
		Current:  current,
		Prior:    prior,
		HasPrior: hasPrior,
	}, s.flows.Renew)

	if res.Failure != flows.RenewFailureNone {
		s.metrics.Inc(MetricRenewFailure)
		s.audit.record(ctx, AuditRenew, prior.Username, res.Err, map[string]string{"failure": renewFailureName(res.Failure)})
		s.log.Warn().Err(res.Err).Str("op", "renew").Str("failure", renewFailureName(res.Failure)).Msg("renewal failed")
		s.teardown(ctx, "renew_failed", epoch)
		return session.Credentials{}, fmt.Errorf("%w: %w", ErrUnauthenticated, renewCause(res))
	}

	s.idWrites.Lock()
	s.mu.Lock()
	if s.epoch != epoch {
		// Logged out or logged in again while the round-trip was in
		// flight. Storage must follow memory, not the rotated pair.
		s.mu.Unlock()
		s.idWrites.Unlock()
		return s.resync(ctx)
	}
	// Rederive from the live snapshot; it may have changed during the
	// round-trip.
	id := flows.RederiveIdentity(res.Credentials.Access, s.identity, s.hasIdentity, s.flows.Renew.Subject)
	s.creds, s.hasCreds = res.Credentials, true
	s.identity, s.hasIdentity = id, true
	s.mu.Unlock()

	if id != res.Identity {
		if err := s.ids.Save(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("op", "renew").Msg("persisting identity failed")
		}
	}
	s.idWrites.Unlock()

	s.metrics.Inc(MetricRenewSuccess)
	s.audit.record(ctx, AuditRenew, id.Username, nil, nil)
	s.log.Debug().Str("op", "renew").Msg("credentials rotated")
	return res.Credentials, nil
}

func renewCause(res flows.RenewResult) error {
	switch res.Failure {
	case flows.RenewFailureRejected:
		return requestFailed(res.Status, res.Message)
	case flows.RenewFailureTransport, flows.RenewFailureMalformed:
		return mapTransportError(res.Err)
	default:
		return res.Err
	}
}

func renewFailureName(k flows.RenewFailureKind) string {
	switch k {
	case flows.RenewFailureNoRefresh:
		return "no_refresh"
	case flows.RenewFailureTransport:
		return "transport"
	case flows.RenewFailureRejected:
		return "rejected"
	case flows.RenewFailureMalformed:
		return "malformed"
	case flows.RenewFailurePersist:
		return "persist"
	default:
		return "none"
	}
}

// teardown drops the session in memory and in storage. When epoch is
// non-zero and no longer current, a newer session has been installed and
// is left alone.
func (s *Session) teardown(ctx context.Context, reason string, epoch uint64) {
	s.mu.Lock()
	if epoch != 0 && s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	username := s.identity.Username
	s.creds, s.hasCreds = session.Credentials{}, false
	s.identity, s.hasIdentity = session.Identity{}, false
	s.epoch++
	s.mu.Unlock()

	if err := flows.Teardown(context.WithoutCancel(ctx), s.flows.Logout.Stores); err != nil {
		s.log.Warn().Err(err).Str("op", "teardown").Msg("clearing persisted session failed")
	}

	s.metrics.Inc(MetricTeardown)
	s.audit.record(ctx, AuditTeardown, username, nil, map[string]string{"reason": reason})
}

// updateIdentity applies fn to the cached identity and persists the result.
// Persistence failures are logged; the snapshot is advisory.
func (s *Session) updateIdentity(ctx context.Context, fn func(*session.Identity)) {
	s.idWrites.Lock()
	defer s.idWrites.Unlock()

	s.mu.Lock()
	if !s.hasIdentity {
		s.mu.Unlock()
		return
	}
	next := s.identity
	fn(&next)
	s.identity = next
	s.mu.Unlock()

	if err := s.ids.Save(context.WithoutCancel(ctx), next); err != nil {
		s.log.Warn().Err(err).Str("op", "identity").Msg("persisting identity failed")
	}
}

// resync rewrites storage from the in-memory session.
func (s *Session) resync(ctx context.Context) (session.Credentials, error) {
	s.mu.RLock()
	creds, hasCreds := s.creds, s.hasCreds
	id := s.identity
	s.mu.RUnlock()

	stores := s.flows.Renew.Stores
	if !hasCreds {
		if err := flows.Teardown(ctx, stores); err != nil {
			s.log.Warn().Err(err).Str("op", "renew").Msg("discarding superseded pair failed")
		}
		return session.Credentials{}, ErrUnauthenticated
	}
	if err := flows.Persist(ctx, creds, id, stores); err != nil {
		s.log.Warn().Err(err).Str("op", "renew").Msg("restoring current pair failed")
	}
	return creds, nil
}
