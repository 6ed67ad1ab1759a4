package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-punch-clock/backend"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
)

// Auth service error codes the store distinguishes.
const (
	codeInvalidCredentials = "invalid_credentials"
	codeUserNotFound       = "user_not_found"
	codeUserAlreadyExists  = "user_already_exists"
	codeEmailExists        = "email_exists"
	codeEmailInvalid       = "email_address_invalid"
	codeWeakPassword       = "weak_password"
	codeBadJWT             = "bad_jwt"
	codeSessionNotFound    = "session_not_found"
	codeOTPExpired         = "otp_expired"
	codeRefreshNotFound    = "refresh_token_not_found"
	codeRefreshAlreadyUsed = "refresh_token_already_used"
)

// mapAuthError translates a backend failure into the error taxonomy. Errors
// that are not backend responses (network, context) pass through unchanged.
func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *backend.APIError
	if !apperrors.As(err, &apiErr) {
		return err
	}

	text := apiErr.Text()
	lower := strings.ToLower(text)
	switch {
	case apiErr.ErrorCode == codeUserAlreadyExists || apiErr.ErrorCode == codeEmailExists ||
		strings.Contains(lower, "already registered"):
		return apperrors.AuthErr(apperrors.ErrUserAlreadyRegistered, text)
	case apiErr.ErrorCode == codeUserNotFound || strings.Contains(lower, "user not found"):
		return apperrors.AuthErr(apperrors.ErrUserNotFound, text)
	case apiErr.ErrorCode == codeInvalidCredentials || strings.Contains(lower, "invalid login credentials"):
		return apperrors.AuthErr(apperrors.ErrInvalidCredentials, text)
	case apiErr.ErrorCode == codeEmailInvalid || strings.Contains(lower, "invalid email") ||
		strings.Contains(lower, "unable to validate email"):
		return apperrors.AuthErr(apperrors.ErrInvalidEmail, text)
	case apiErr.ErrorCode == codeWeakPassword || strings.Contains(lower, "password should be"):
		return apperrors.AuthErr(apperrors.ErrWeakPassword, text)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrAuth, err)
}

// refreshRejected reports whether the backend refused the refresh token
// itself. Transport failures and server errors leave the token usable.
func refreshRejected(err error) bool {
	var apiErr *backend.APIError
	if !apperrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode {
	case codeRefreshNotFound, codeRefreshAlreadyUsed, codeBadJWT, codeSessionNotFound:
		return true
	}
	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// mapRecoveryError reports rejected recovery tokens as ErrInvalidRecoveryToken.
func mapRecoveryError(err error) error {
	var apiErr *backend.APIError
	if apperrors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden,
			apiErr.ErrorCode == codeBadJWT, apiErr.ErrorCode == codeSessionNotFound, apiErr.ErrorCode == codeOTPExpired:
			return apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, apiErr.Text())
		}
	}
	return mapAuthError(err)
}
