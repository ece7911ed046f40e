// Package securestore keeps small values on the device in a form that can't be
// read or tampered with without the app's keys.
package securestore

import (
	"context"
	"fmt"

	"github.com/gorilla/securecookie"
)

// KV is the plain storage underneath.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store seals every value with securecookie before handing it to the KV.
//
// The key doubles as the securecookie name, so a value copied under another key
// won't decode.
type Store struct {
	kv    KV
	codec *securecookie.SecureCookie
}

// New needs a 32 or 64 byte hash key; the block key turns on encryption when
// it's 16, 24 or 32 bytes, and may be empty.
func New(kv KV, hashKey, blockKey []byte) *Store {
	if len(blockKey) == 0 {
		blockKey = nil // securecookie only skips encryption for a nil key
	}
	codec := securecookie.New(hashKey, blockKey).MaxAge(0) // Never expire
	return &Store{kv: kv, codec: codec}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	sealed, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}

	var value string
	if err := s.codec.Decode(key, sealed, &value); err != nil {
		return "", fmt.Errorf("error unsealing %q: %w", key, err)
	}

	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.codec.Encode(key, value)
	if err != nil {
		return fmt.Errorf("error sealing %q: %w", key, err)
	}

	return s.kv.Set(ctx, key, sealed)
}

// Delete forgets a value. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
