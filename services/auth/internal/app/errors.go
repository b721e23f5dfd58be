package app

import (
	"errors"
	"fmt"

	"inspirestack/pkg/domain"
)

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = fmt.Errorf("%w: email and password required", domain.ErrInvalidArgument)
	ErrUserAlreadyExists        = fmt.Errorf("%w: username or email already registered", domain.ErrConflict)
	ErrInvalidTheme             = fmt.Errorf("%w: theme must be light, dark or system", domain.ErrInvalidArgument)
	ErrUserNotFound             = fmt.Errorf("%w: user not found", domain.ErrNotFound)
	ErrEmailRequired            = fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
)
