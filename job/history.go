package job

import (
	"webpconv/failures"
	"webpconv/models"
	"webpconv/success"
)

// History receives the outcome of every processed job. Validation failures
// never reach it because no job ran.
type History interface {
	RecordSuccess(record success.SuccessRecord) error
	RecordFailure(id string, j models.ConversionJob, output string, err error) error
}

// StoreHistory writes to the pebble-backed success and failures stores,
// which must already be open.
type StoreHistory struct{}

func (StoreHistory) RecordSuccess(record success.SuccessRecord) error {
	return success.StoreSuccess(record)
}

func (StoreHistory) RecordFailure(id string, j models.ConversionJob, output string, err error) error {
	return failures.StoreFailure(id, j, output, err)
}
