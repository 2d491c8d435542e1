package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rvpalivoda/authsession/storage"
)

const (
	// DefaultTokenKey is the key the credential pair is stored under.
	DefaultTokenKey = "authsession_tokens"
	// DefaultIdentityKey is the key the identity snapshot is stored under.
	DefaultIdentityKey = "authsession_user_info"
)

type record[T any] struct {
	kv     storage.KV
	key    string
	encode func(T) (string, error)
	decode func(string) (T, error)
	log    zerolog.Logger
}

func (r record[T]) load(ctx context.Context) (T, bool) {
	var zero T

	raw, err := r.kv.Get(ctx, r.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return zero, false
	case err != nil:
		r.log.Debug().Err(err).Str("key", r.key).Msg("stored record unreadable, treating as absent")
		return zero, false
	}

	v, err := r.decode(raw)
	if err != nil {
		r.log.Debug().Err(err).Str("key", r.key).Msg("stored record corrupt, treating as absent")
		return zero, false
	}
	return v, true
}

func (r record[T]) save(ctx context.Context, v T) error {
	raw, err := r.encode(v)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.key, raw)
}

func (r record[T]) clear(ctx context.Context) error {
	return r.kv.Remove(ctx, r.key)
}

// TokenStore reads and writes the persisted credential pair.
type TokenStore struct {
	rec record[Credentials]
}

// NewTokenStore returns a store for the credential record under key
// (DefaultTokenKey when empty).
func NewTokenStore(kv storage.KV, key string, log zerolog.Logger) *TokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &TokenStore{rec: record[Credentials]{
		kv:     kv,
		key:    key,
		encode: EncodeCredentials,
		decode: DecodeCredentials,
		log:    log,
	}}
}

// Load returns the stored pair, or false when it is missing or unusable.
func (s *TokenStore) Load(ctx context.Context) (Credentials, bool) {
	return s.rec.load(ctx)
}

// Save overwrites the stored pair. Incomplete pairs are rejected.
func (s *TokenStore) Save(ctx context.Context, c Credentials) error {
	return s.rec.save(ctx, c)
}

// Clear removes the stored pair.
func (s *TokenStore) Clear(ctx context.Context) error {
	return s.rec.clear(ctx)
}

// IdentityStore reads and writes the persisted identity snapshot.
type IdentityStore struct {
	rec record[Identity]
}

// NewIdentityStore returns a store for the identity record under key
// (DefaultIdentityKey when empty).
func NewIdentityStore(kv storage.KV, key string, log zerolog.Logger) *IdentityStore {
	if key == "" {
		key = DefaultIdentityKey
	}
	return &IdentityStore{rec: record[Identity]{
		kv:     kv,
		key:    key,
		encode: EncodeIdentity,
		decode: DecodeIdentity,
		log:    log,
	}}
}

func (s *IdentityStore) Load(ctx context.Context) (Identity, bool) {
	return s.rec.load(ctx)
}

func (s *IdentityStore) Save(ctx context.Context, i Identity) error {
	return s.rec.save(ctx, i)
}

func (s *IdentityStore) Clear(ctx context.Context) error {
	return s.rec.clear(ctx)
}
