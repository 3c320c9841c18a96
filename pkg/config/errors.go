package config

import "errors"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadError wraps a failure to load or parse a specific config file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return "config: failed to load " + e.File + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError wraps err with the file that failed to load.
func NewLoadError(file string, err error) error {
	return &LoadError{File: file, Err: err}
}
