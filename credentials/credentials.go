// Package credentials stores the access-info profiles (keys, tokens,
// endpoints) that the mirror package needs to reach external storage
// backends, keyed by a credential_key named in a job's mirror spec.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned when no profile is stored under the given key.
var ErrNotFound = errors.New("credentials: not found")

// Store is a pebble-backed profile of string-keyed access info, one
// record per credential_key.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a credential store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("credentials: open %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the access-info map stored under key.
func (s *Store) Get(key string) (map[string]string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, fmt.Errorf("credentials: key %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("credentials: get %s: %w", key, err)
	}
	defer closer.Close()

	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, fmt.Errorf("credentials: decode %s: %w", key, err)
	}
	return creds, nil
}

// Put stores an access-info profile under key, overwriting any
// existing profile there.
func (s *Store) Put(key string, creds map[string]string) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("credentials: encode %s: %w", key, err)
	}
	return s.db.Set([]byte(key), data, pebble.Sync)
}

// Delete removes the profile stored under key.
func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}
