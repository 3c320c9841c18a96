package workspace

import "errors"

// ErrNotFound is returned when a workspace id does not exist.
var ErrNotFound = errors.New("workspace not found")
