package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateJob     = errors.New("duplicate job")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrProviderFailure  = errors.New("provider failure")
)
