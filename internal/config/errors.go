package config

import (
	"errors"
	"fmt"
)

// Config error operations.
const (
	OpRead     = "read"
	OpDecode   = "decode"
	OpValidate = "validate"
)

// ConfigError reports a configuration document that is missing, unreadable,
// malformed or semantically invalid. It is fatal for the loop.
type ConfigError struct {
	Path string
	Op   string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }
