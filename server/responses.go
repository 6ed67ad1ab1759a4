package server

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Auth API error codes
const (
	codeValidationFailed     = "validation_failed"
	codeInvalidCredentials   = "invalid_credentials"
	codeUserNotFound         = "user_not_found"
	codeUserAlreadyExists    = "user_already_exists"
	codeEmailInvalid         = "email_address_invalid"
	codeEmailNotConfirmed    = "email_not_confirmed"
	codeWeakPassword         = "weak_password"
	codeSamePassword         = "same_password"
	codeRefreshTokenNotFound = "refresh_token_not_found"
	codeUnsupportedGrant     = "unsupported_grant_type"
	codeNoAuthorization      = "no_authorization"
	codeBadJWT               = "bad_jwt"
	codeSessionNotFound      = "session_not_found"
	codeUnexpectedFailure    = "unexpected_failure"
)

type authError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
}

// restError is the error body of the tables and procedures.
type restError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeAuthError(w http.ResponseWriter, status int, errorCode, msg string) {
	writeJSON(w, status, authError{Code: status, ErrorCode: errorCode, Msg: msg})
}

func writeRestError(w http.ResponseWriter, status int, e restError) {
	writeJSON(w, status, e)
}
