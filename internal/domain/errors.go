package domain

import "errors"

var (
	// ErrPermissionDenied is returned when the host platform refuses an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when the target message, member or ban no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrTransient covers network, auth and quota failures of remote APIs.
	ErrTransient = errors.New("transient api failure")
	// ErrConfiguration is surfaced to the command caller and never retried.
	ErrConfiguration = errors.New("configuration error")
)

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
