// Package errs holds the error kinds the HTTP boundary knows how to classify.
// Wrap them with github.com/pkg/errors so errors.Is keeps working.
package errs

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrMalformed  = errors.New("malformed input")
	ErrDuplicate  = errors.New("duplicated")
	ErrValidation = errors.New("validation failed")
)

func NotFound(what string, id any) error {
	return errors.Wrapf(ErrNotFound, "%s %v", what, id)
}

func Malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}

func Duplicate(format string, args ...any) error {
	return errors.Wrapf(ErrDuplicate, format, args...)
}

func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(ErrValidation, err.Error())
}
