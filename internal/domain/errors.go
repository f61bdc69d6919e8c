package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMissingSource    = errors.New("missing source")
	ErrMissingDirective = errors.New("missing directive")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrAlreadyClaimed   = errors.New("job already claimed")
	ErrAlreadyTerminal  = errors.New("job already terminal")
	ErrStoreUnavailable = errors.New("job store unavailable")
	ErrProviderFailure  = errors.New("provider failure")
	ErrProviderTimeout  = errors.New("provider timed out")
)
