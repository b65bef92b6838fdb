package store

import (
	"github.com/xtxerr/tally/internal/errors"
)

var (
	ErrNotFound        = errors.ErrNotFound
	ErrStationNotFound = errors.ErrStationNotFound
	ErrBucketNotFound  = errors.ErrBucketNotFound
	ErrDatabase        = errors.ErrDatabase
)
