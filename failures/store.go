package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"webpconv/models"
)

// FailureRecord is a conversion that failed after validation.
type FailureRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input"`
	Output    string    `json:"output,omitempty"`
	Kind      string    `json:"kind"` // see models.ErrorKind
	Error     string    `json:"error"`
}

var db *pebble.DB

// Init initializes the failure store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open failure store: %w", err)
	}
	return nil
}

// Close closes the failure store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreFailure records the error a job ended with.
func StoreFailure(id string, job models.ConversionJob, output string, err error) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	if id == "" || err == nil {
		return fmt.Errorf("failure record needs a job id and an error")
	}

	record := FailureRecord{
		ID:        id,
		Timestamp: time.Now(),
		Input:     job.Input,
		Output:    output,
		Kind:      models.ErrorKind(err),
		Error:     err.Error(),
	}

	data, jsonErr := json.Marshal(record)
	if jsonErr != nil {
		return fmt.Errorf("failed to marshal failure record: %w", jsonErr)
	}
	return db.Set([]byte(id), data, pebble.Sync)
}

// GetFailure retrieves a failure record by job ID. A missing record is nil, nil.
func GetFailure(id string) (*FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	data, closer, err := db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func DeleteFailure(id string) error {
	if db == nil {
		return fmt.Errorf("failure store not initialized")
	}
	return db.Delete([]byte(id), pebble.Sync)
}

// ListFailures returns every failure record, oldest first.
func ListFailures() ([]FailureRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("failure store not initialized")
	}

	var failures []FailureRecord
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Timestamp.Before(failures[j].Timestamp) })
	return failures, nil
}

// CleanupOldRecords removes failures older than maxAge and reports how many
// were deleted.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	records, err := ListFailures()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			break
		}
		if err := db.Delete([]byte(r.ID), pebble.Sync); err != nil {
			return removed, fmt.Errorf("failed to delete old failure record: %w", err)
		}
		removed++
	}
	return removed, nil
}
