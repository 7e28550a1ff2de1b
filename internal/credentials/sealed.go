package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// sealedStore wraps another store and seals the secret field at rest with
// nacl/secretbox. The nonce is prepended to the ciphertext and the result is
// base64-encoded, so inner backends keep storing plain strings.
type sealedStore struct {
	inner Store
	key   [32]byte
}

// Sealed decorates inner so secrets are encrypted before they reach the
// backend and decrypted on the way out. key must be exactly 32 bytes.
func Sealed(inner Store, key []byte) (Store, error) {
	if inner == nil {
		return nil, errors.New("credentials: inner store must not be nil")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials: seal key must be 32 bytes, got %d", len(key))
	}
	s := &sealedStore{inner: inner}
	copy(s.key[:], key)
	return s, nil
}

func (s *sealedStore) Get(ctx context.Context, userID string) (Credentials, error) {
	creds, err := s.inner.Get(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	secret, err := s.open(creds.Secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials: unseal secret for %s: %w", userID, err)
	}
	creds.Secret = secret
	return creds, nil
}

func (s *sealedStore) Upsert(ctx context.Context, userID string, creds Credentials) error {
	sealed, err := s.seal(creds.Secret)
	if err != nil {
		return fmt.Errorf("credentials: seal secret for %s: %w", userID, err)
	}
	creds.Secret = sealed
	return s.inner.Upsert(ctx, userID, creds)
}

func (s *sealedStore) seal(secret string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(secret), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *sealedStore) open(sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(box) < 24 {
		return "", errors.New("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed value failed to open")
	}
	return string(plain), nil
}
