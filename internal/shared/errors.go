package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Upstream extraction errors
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrSourceRestricted  = fmt.Errorf("source restricted")
	ErrInvalidLocator    = fmt.Errorf("invalid media locator")

	// Cache errors
	ErrCapacityUnavailable = fmt.Errorf("capacity unavailable")
	ErrBusy                = fmt.Errorf("cache busy")
	ErrNotCached           = fmt.Errorf("not cached")
	ErrInvalidKey          = fmt.Errorf("invalid cache key")

	// ErrPending is not a failure: the media is being downloaded and the caller should retry.
	ErrPending = fmt.Errorf("media pending")

	// Playback errors
	ErrUnplayable   = fmt.Errorf("no playable platform")
	ErrMediaBlocked = fmt.Errorf("playback rejected by runtime")

	// Authorization (enforced by an external collaborator)
	ErrUnauthorized = fmt.Errorf("unauthorized")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrOutOfRange      = fmt.Errorf("value out of range")
)
