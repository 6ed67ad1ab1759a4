package server

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jrsteele09/go-punch-clock/token/jwt"
	"github.com/rs/zerolog/log"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

const (
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowedHeaders = "apikey, authorization, content-type, prefer, x-client-info"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the standard chain of every project endpoint, followed by mw.
func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CorsMiddleware,
		s.APIKeyMiddleware,
	}
	return append(chainedMiddleWare, mw...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		if s.env == "DEV" {
			logRoute(r.Method, r.URL.Path)
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Handler panicked")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
			}
		}()
		next(w, r)
	}
}

func (s *Server) CorsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// No Origin header = same-origin request, no CORS headers needed
		if r.Header.Get("Origin") == "" {
			next(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// APIKeyMiddleware rejects requests without the project's anon key.
func (s *Server) APIKeyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.anonKey == "" {
			next(w, r)
			return
		}
		key := r.Header.Get("apikey")
		if key == "" {
			key = r.URL.Query().Get("apikey")
		}
		switch {
		case key == "":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No API key found in request"})
			return
		case key != s.opts.anonKey:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		next(w, r)
	}
}

// RequireUser admits requests bearing a valid user access token and puts its
// claims on the request context.
func (s *Server) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" || bearer == s.opts.anonKey {
			writeAuthError(w, http.StatusUnauthorized, codeNoAuthorization, "This endpoint requires a Bearer token")
			return
		}
		claims, err := s.tokens.Authenticate(bearer)
		if err != nil {
			if errors.Is(err, jwt.ErrSessionRevoked) {
				writeAuthError(w, http.StatusForbidden, codeSessionNotFound, "Session from session_id claim in JWT does not exist")
				return
			}
			writeAuthError(w, http.StatusForbidden, codeBadJWT, "invalid JWT: unable to parse or verify signature")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), contextKeyClaims, claims)))
	}
}

// ResolveRole is RequireUser for the tables: a missing bearer or the anon key
// continue as the anonymous role, without claims.
func (s *Server) ResolveRole(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" || bearer == s.opts.anonKey {
			next(w, r)
			return
		}
		claims, err := s.tokens.Authenticate(bearer)
		if err != nil {
			writeRestError(w, http.StatusUnauthorized, restError{Code: "PGRST301", Message: "JWT is invalid or expired"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), contextKeyClaims, claims)))
	}
}

// claimsFrom returns the caller's claims, nil for the anonymous role.
func claimsFrom(ctx context.Context) *jwt.AccessClaims {
	claims, _ := ctx.Value(contextKeyClaims).(*jwt.AccessClaims)
	return claims
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
