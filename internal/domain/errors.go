package domain

import "errors"

var (
	// ErrValidation is wrapped by every error caused by a malformed definition.
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCronExpr    = errors.New("invalid cron expression")
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrDefinitionExists   = errors.New("definition with this id already exists")
	ErrInvalidCursor      = errors.New("invalid cursor")

	// ErrDelivery is wrapped by every dispatch failure.
	ErrDelivery               = errors.New("delivery failed")
	ErrTransportNotConfigured = errors.New("transport not configured")
)
