package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrStorage          = errors.New("storage error")
	ErrInference        = errors.New("inference error")
	ErrIdentityDecode   = errors.New("identity decode error")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotPending    = errors.New("job is not pending")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Invalid builds a validation error from a plain message.
func Invalid(operation, format string, args ...any) error {
	return WrapError(ErrValidation, operation, fmt.Errorf(format, args...))
}
