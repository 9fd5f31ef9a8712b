package permission

import "errors"

var (
	// ErrInvalidMapping is returned when a role mapping fails validation.
	ErrInvalidMapping = errors.New("invalid role mapping")
	// ErrDuplicateRole is returned when an active mapping already uses the Discord role id.
	ErrDuplicateRole = errors.New("discord role already mapped")
	// ErrMappingNotFound is returned when no mapping has the requested id.
	ErrMappingNotFound = errors.New("role mapping not found")
	// ErrConfigNotFound is returned by a ConfigStore that holds no document yet.
	ErrConfigNotFound = errors.New("role config not found")
	// ErrConfigUnavailable wraps storage failures while reading or writing the document.
	ErrConfigUnavailable = errors.New("role config store unavailable")
)
