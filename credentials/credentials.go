// Package credentials keeps named publish-target credentials, e.g. "s3-prod"
// -> {"region": ..., "bucket": ...}, so batches can refer to them by key.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"webpconv/logger"
)

// ErrNotFound is returned for an unknown credentials key.
var ErrNotFound = errors.New("credentials not found")

var db *pebble.DB

// OpenDB opens the Pebble DB for credentials at the specified path
func OpenDB(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open credentials store: %v", err)
		return err
	}
	return nil
}

// CloseDB closes the DB
func CloseDB() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// GetCredentials returns the credentials stored under key.
func GetCredentials(key string) (map[string]string, error) {
	if db == nil {
		return nil, fmt.Errorf("credentials store not initialized")
	}
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return nil, err
	}
	defer closer.Close()
	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, fmt.Errorf("credentials %q are corrupt: %w", key, err)
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func StoreCredentials(key string, creds map[string]string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	if key == "" {
		return fmt.Errorf("credentials key must not be empty")
	}
	encodedCreds, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), encodedCreds, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func DeleteCredentials(key string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// ListKeys returns the stored keys in order. Values are not exposed.
func ListKeys() ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("credentials store not initialized")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	sort.Strings(keys)
	return keys, iter.Error()
}
