package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the client packages
var (
	// Authentication errors. Every sub-kind is reported together with ErrAuth.
	ErrAuth                  = errors.New("authentication error")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyRegistered = errors.New("user already registered")
	ErrInvalidEmail          = errors.New("invalid email")
	ErrWeakPassword          = errors.New("weak password")
	ErrPasswordMismatch      = errors.New("passwords do not match")
	ErrInvalidRecoveryToken  = errors.New("invalid or expired recovery token")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrMissingField          = errors.New("required field missing")

	// Location errors
	ErrPermissionDenied         = errors.New("location permission denied")
	ErrLocationServicesDisabled = errors.New("location services disabled")
	ErrLocationUnavailable      = errors.New("location unavailable")
	ErrMissingUserID            = errors.New("user id not provided")

	// Punch errors
	ErrAlreadyRecorded = errors.New("punch already recorded today")
	ErrInvalidKind     = errors.New("invalid punch kind")

	// General errors
	ErrNetwork  = errors.New("network error")
	ErrNotFound = errors.New("not found")
)

// AuthErr tags a sub-kind (e.g. ErrInvalidCredentials) as an ErrAuth with a message.
func AuthErr(kind error, msg string) error {
	if msg == "" {
		return fmt.Errorf("%w: %w", ErrAuth, kind)
	}
	return fmt.Errorf("%w: %w: %s", ErrAuth, kind, msg)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrMissingField):
		return "Please fill in all the fields."
	case Is(err, ErrUserAlreadyRegistered):
		return "This email is already registered."
	case Is(err, ErrInvalidEmail):
		return "The email address is invalid."
	case Is(err, ErrWeakPassword):
		return "The password must be at least 6 characters long."
	case Is(err, ErrPasswordMismatch):
		return "The password and its confirmation must match."
	case Is(err, ErrUserNotFound):
		return "No account exists for this email."
	case Is(err, ErrInvalidCredentials):
		return "Incorrect password."
	case Is(err, ErrInvalidRecoveryToken):
		return "The recovery link is invalid or has expired. Request a new one."
	case Is(err, ErrNotAuthenticated):
		return "You need to be logged in."
	case Is(err, ErrLocationServicesDisabled):
		return "Location is turned off on this device. Enable it in the device settings."
	case Is(err, ErrPermissionDenied):
		return "Location permission was denied. Grant it and try again."
	case Is(err, ErrAlreadyRecorded):
		return "This punch was already recorded today."
	case Is(err, ErrLocationUnavailable):
		return "Could not get your current location. Check that GPS is on and try again."
	case Is(err, ErrNetwork):
		return "Could not reach the server. Check your connection and try again."
	case Is(err, ErrAuth):
		return "Authentication failed."
	default:
		return "Something went wrong. Please try again."
	}
}
