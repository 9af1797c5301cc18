package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"webpconv/models"
)

// SuccessRecord is one completed conversion.
type SuccessRecord struct {
	ID         string                   `json:"id"`
	Timestamp  time.Time                `json:"timestamp"`
	Input      string                   `json:"input"`
	Output     string                   `json:"output"`
	Mode       string                   `json:"mode"` // "static" or "animated"
	FrameCount int                      `json:"frame_count"`
	Settings   models.EffectiveSettings `json:"settings"`
	Published  string                   `json:"published,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
}

var db *pebble.DB

// Init initializes the success store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open success store: %w", err)
	}
	return nil
}

// Close closes the success store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreSuccess stores a completed conversion keyed by its job ID.
func StoreSuccess(record SuccessRecord) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	if record.ID == "" {
		return fmt.Errorf("success record has no job id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return db.Set([]byte(record.ID), data, pebble.Sync)
}

// GetSuccess retrieves a success record by job ID. A missing record is nil, nil.
func GetSuccess(id string) (*SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// DeleteSuccess removes a success record
func DeleteSuccess(id string) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return db.Delete([]byte(id), pebble.Sync)
}

// ListSuccessRecords returns every record, oldest first.
func ListSuccessRecords() ([]SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	var records []SuccessRecord
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}

// CleanupOldRecords removes records older than maxAge and reports how many
// were deleted.
func CleanupOldRecords(maxAge time.Duration) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("success store not initialized")
	}

	cutoff := time.Now().Add(-maxAge)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	batch := db.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete old success record: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to delete old success records: %w", err)
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the success database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("success database not initialized")
	}

	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
