package session

import "errors"

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")
