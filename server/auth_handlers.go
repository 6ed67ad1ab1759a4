package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-punch-clock/token"
	"github.com/jrsteele09/go-punch-clock/token/jwt"
	"github.com/jrsteele09/go-punch-clock/users"
	"github.com/rs/zerolog/log"
)

type userResponse struct {
	ID               string         `json:"id"`
	Aud              string         `json:"aud"`
	Role             string         `json:"role"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func newUserResponse(u *users.User) userResponse {
	resp := userResponse{
		ID:           u.ID,
		Aud:          jwt.AudienceAuthenticated,
		Role:         jwt.RoleAuthenticated,
		Email:        u.Email,
		UserMetadata: u.Metadata,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if resp.UserMetadata == nil {
		resp.UserMetadata = map[string]any{}
	}
	if u.Confirmed() {
		confirmedAt := u.ConfirmedAt
		resp.EmailConfirmedAt = &confirmedAt
	}
	if !u.LastSignIn.IsZero() {
		lastSignIn := u.LastSignIn
		resp.LastSignInAt = &lastSignIn
	}
	return resp
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func newTokenResponse(grant *token.Grant, u *users.User) tokenResponse {
	return tokenResponse{
		AccessToken:  grant.AccessToken,
		TokenType:    grant.TokenType,
		ExpiresIn:    grant.ExpiresIn,
		ExpiresAt:    grant.ExpiresAt.Unix(),
		RefreshToken: grant.RefreshToken,
		User:         newUserResponse(u),
	}
}

type credentialsRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeAuthError(w, http.StatusBadRequest, codeValidationFailed, "Could not parse request body as JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) validEmail(w http.ResponseWriter, email string) bool {
	if email == "" {
		writeAuthError(w, http.StatusBadRequest, codeValidationFailed, "An email address is required")
		return false
	}
	if err := s.validate.Var(email, "email"); err != nil {
		writeAuthError(w, http.StatusBadRequest, codeEmailInvalid, "Unable to validate email address: invalid format")
		return false
	}
	return true
}

func validPassword(w http.ResponseWriter, password string) bool {
	if err := users.ValidatePasswordStrength(password); err != nil {
		writeAuthError(w, http.StatusUnprocessableEntity, codeWeakPassword, "Password should be at least 6 characters.")
		return false
	}
	return true
}

// SignupHandler registers a user. Without email confirmation the response is
// a session; with it, the bare user and a confirmation mail.
func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		email := strings.TrimSpace(req.Email)
		if !s.validEmail(w, email) || !validPassword(w, req.Password) {
			return
		}
		if _, err := s.users.GetByEmail(email); err == nil {
			writeAuthError(w, http.StatusUnprocessableEntity, codeUserAlreadyExists, "User already registered")
			return
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, "Error hashing password")
			return
		}
		now := s.opts.nowTime()
		user := &users.User{
			Email:        email,
			PasswordHash: hash,
			Metadata:     req.Data,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if !s.opts.confirmEmail {
			user.ConfirmedAt = now
			user.LastSignIn = now
		}
		if err := s.users.Upsert(user); err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, "Database error saving new user")
			return
		}

		if s.opts.confirmEmail {
			s.outbox.Send(Mail{To: email, Subject: "Confirm Your Signup", Link: s.opts.siteURL, SentAt: now})
			log.Info().Str("user_id", user.ID).Msg("Emulator: user signed up, confirmation pending")
			writeJSON(w, http.StatusOK, newUserResponse(user))
			return
		}

		grant, err := s.tokens.IssueSession(user, jwt.MethodPassword)
		if err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
			return
		}
		log.Info().Str("user_id", user.ID).Msg("Emulator: user signed up")
		writeJSON(w, http.StatusOK, newTokenResponse(grant, user))
	}
}

// TokenHandler serves the password and refresh_token grants.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch grantType := r.URL.Query().Get("grant_type"); grantType {
		case "password":
			s.passwordGrant(w, r)
		case "refresh_token":
			s.refreshGrant(w, r)
		default:
			writeAuthError(w, http.StatusBadRequest, codeUnsupportedGrant, "unsupported_grant_type: "+grantType)
		}
	}
}

// passwordGrant reports unknown addresses as user_not_found and wrong
// passwords as invalid_credentials.
func (s *Server) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, codeValidationFailed, "missing email or password")
		return
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, codeUserNotFound, "User not found")
		return
	}
	if !user.CheckPassword(req.Password) {
		writeAuthError(w, http.StatusBadRequest, codeInvalidCredentials, "Invalid login credentials")
		return
	}
	if !user.Confirmed() {
		writeAuthError(w, http.StatusBadRequest, codeEmailNotConfirmed, "Email not confirmed")
		return
	}

	user.LastSignIn = s.opts.nowTime()
	if err := s.users.Upsert(user); err != nil {
		writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
		return
	}
	grant, err := s.tokens.IssueSession(user, jwt.MethodPassword)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(grant, user))
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var owner *users.User
	grant, err := s.tokens.Refresh(req.RefreshToken, func(userID string) (*users.User, error) {
		u, err := s.users.GetByID(userID)
		owner = u
		return u, err
	})
	if err != nil {
		log.Debug().Err(err).Msg("Emulator: refresh rejected")
		writeAuthError(w, http.StatusBadRequest, codeRefreshTokenNotFound, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(grant, owner))
}

// LogoutHandler revokes the bearer's session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if err := s.tokens.Revoke(claims.SessionID); err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
			return
		}
		log.Info().Str("user_id", claims.Subject).Msg("Emulator: session revoked")
		w.WriteHeader(http.StatusNoContent)
	}
}

// RecoverHandler mails a recovery link carrying a fresh recovery session.
// Unknown addresses get the same empty success.
func (s *Server) RecoverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		email := strings.TrimSpace(req.Email)
		if !s.validEmail(w, email) {
			return
		}

		user, err := s.users.GetByEmail(email)
		if err != nil {
			log.Info().Str("email", email).Msg("Emulator: recovery requested for unknown email")
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}

		grant, err := s.tokens.IssueSession(user, jwt.MethodRecovery)
		if err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
			return
		}
		link := recoveryLink(r.URL.Query().Get("redirect_to"), s.opts.siteURL, grant)
		s.outbox.Send(Mail{To: user.Email, Subject: "Reset Your Password", Link: link, SentAt: s.opts.nowTime()})
		log.Info().Str("user_id", user.ID).Msg("Emulator: recovery link sent")
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

// recoveryLink appends the session to redirectTo, or to fallback when
// redirectTo is not a usable absolute URL.
func recoveryLink(redirectTo, fallback string, grant *token.Grant) string {
	u, err := url.Parse(redirectTo)
	if redirectTo == "" || err != nil || u.Scheme == "" {
		u, err = url.Parse(fallback)
		if err != nil {
			u = &url.URL{}
		}
	}
	q := u.Query()
	q.Set("access_token", grant.AccessToken)
	q.Set("refresh_token", grant.RefreshToken)
	q.Set("expires_in", strconv.FormatInt(grant.ExpiresIn, 10))
	q.Set("token_type", grant.TokenType)
	q.Set("type", "recovery")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	claims := claimsFrom(r.Context())
	user, err := s.users.GetByID(claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			writeAuthError(w, http.StatusNotFound, codeUserNotFound, "User from sub claim in JWT does not exist")
			return nil, false
		}
		writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
		return nil, false
	}
	return user, true
}

func (s *Server) GetUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(user))
	}
}

// UpdateUserHandler changes the bearer's email, password or metadata.
func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		var req credentialsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.Password != "" {
			if !validPassword(w, req.Password) {
				return
			}
			if user.CheckPassword(req.Password) {
				writeAuthError(w, http.StatusUnprocessableEntity, codeSamePassword, "New password should be different from the old password.")
				return
			}
			hash, err := users.HashPassword(req.Password)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, "Error hashing password")
				return
			}
			user.PasswordHash = hash
		}
		if email := strings.TrimSpace(req.Email); email != "" && !strings.EqualFold(email, user.Email) {
			if !s.validEmail(w, email) {
				return
			}
			if _, err := s.users.GetByEmail(email); err == nil {
				writeAuthError(w, http.StatusUnprocessableEntity, codeUserAlreadyExists, "A user with this email address has already been registered")
				return
			}
			user.Email = email
		}
		user.MergeMetadata(req.Data)
		user.UpdatedAt = s.opts.nowTime()

		if err := s.users.Upsert(user); err != nil {
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
			return
		}
		log.Info().Str("user_id", user.ID).Bool("password", req.Password != "").Msg("Emulator: user updated")
		writeJSON(w, http.StatusOK, newUserResponse(user))
	}
}

// JWKSHandler publishes the public half of the signing key.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.tokens.GetJWKS()
		if err != nil {
			log.Error().Err(err).Msg("Emulator: failed to build JWKS")
			writeAuthError(w, http.StatusInternalServerError, codeUnexpectedFailure, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) SettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"external":           map[string]bool{"email": true},
			"disable_signup":     false,
			"mailer_autoconfirm": !s.opts.confirmEmail,
		})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
