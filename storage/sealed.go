package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var _ KV = (*Sealed)(nil)

// Sealed encrypts every value with XChaCha20-Poly1305 before handing it to
// the wrapped store. The key name is bound as associated data, so a value
// copied under another key fails to open.
type Sealed struct {
	next KV
	aead cipher.AEAD
}

// NewSealed wraps next with a 32-byte key.
func NewSealed(next KV, key []byte) (*Sealed, error) {
	if next == nil {
		return nil, fmt.Errorf("storage/sealed: nil backing store")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("storage/sealed: %w", err)
	}
	return &Sealed{next: next, aead: aead}, nil
}

// GenerateKey returns a random key suitable for NewSealed.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return "", err
	}
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return "", fmt.Errorf("%w: short ciphertext", ErrCorrupt)
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(plain), nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("storage/sealed: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.next.Set(ctx, key, base64.RawURLEncoding.EncodeToString(out))
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	return s.next.Remove(ctx, key)
}
