package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrImageRequired     = errors.New("image is required")
	ErrProviderFailure   = errors.New("provider failure")
	ErrStatusUnconfirmed = errors.New("could not confirm status")
	ErrJobFailed         = errors.New("job failed")
	ErrWaitTimeout       = errors.New("wait timed out")
)
