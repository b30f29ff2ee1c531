package domain

import "errors"

var (
	// ErrTransientSource marks a mail provider failure while listing or fetching.
	// Callers treat it as an empty result and keep going.
	ErrTransientSource = errors.New("transient source error")

	// ErrExtractionMismatch marks a message that triggered an institution rule
	// but did not contain the expected fields.
	ErrExtractionMismatch = errors.New("extraction mismatch")

	// ErrConfigurationMissing marks a required configuration value that is absent.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrInvalidArgument marks a caller-supplied value that cannot be used.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a lookup by id that matched nothing.
	ErrNotFound = errors.New("not found")
)
