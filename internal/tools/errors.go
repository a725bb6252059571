package tools

import (
	"errors"
	"fmt"
)

var (
	ErrMissingName        = errors.New("tool has no name")
	ErrMissingExecute     = errors.New("tool has no execute function")
	ErrAlreadyRegistered  = errors.New("tool already registered")
	ErrToolNotFound       = errors.New("tool not found")
)

// MissingArgError reports a required parameter that was not supplied.
type MissingArgError struct {
	Tool  string
	Param string
}

func (e *MissingArgError) Error() string {
	return fmt.Sprintf("tool %s: missing required argument %q", e.Tool, e.Param)
}
