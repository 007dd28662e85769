package store

import "errors"

// Sentinel errors returned by the job store independent of the gorm dialect.
var (
	ErrRecordNotFound = errors.New("job not found")
	ErrDuplicateKey   = errors.New("job id already exists")
)
