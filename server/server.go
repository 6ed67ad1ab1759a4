package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-punch-clock/internal/config"
	"github.com/jrsteele09/go-punch-clock/token"
	"github.com/jrsteele09/go-punch-clock/token/keys"
	"github.com/jrsteele09/go-punch-clock/token/refresh"
	"github.com/jrsteele09/go-punch-clock/users"
	"github.com/rs/zerolog/log"
)

const signingKeyID = "punchclock-emulator"

// Server emulates the hosted backend the client talks to: the auth API under
// /auth/v1 and the punch and location tables under /rest/v1. State lives in
// the given repos and in memory.
type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	opts     options
	users    users.UserRepo
	tokens   *token.Manager
	tables   *Tables
	outbox   *Outbox
	validate *validator.Validate

	rpcDisabled atomic.Bool
}

type options struct {
	anonKey           string
	siteURL           string
	issuer            string
	keyPath           string
	confirmEmail      bool
	accessTokenExpiry time.Duration
	nowTime           func() time.Time
}

type Option func(*options)

// WithAnonKey requires every request to carry key in the apikey header.
func WithAnonKey(key string) Option {
	return func(o *options) {
		o.anonKey = key
	}
}

// WithSiteURL is the recovery redirect used when a request names none.
func WithSiteURL(url string) Option {
	return func(o *options) {
		o.siteURL = url
	}
}

func WithIssuer(issuer string) Option {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithSigningKeyFile persists the signing key at path.
func WithSigningKeyFile(path string) Option {
	return func(o *options) {
		o.keyPath = path
	}
}

// WithEmailConfirmation makes sign up withhold the session until ConfirmEmail.
func WithEmailConfirmation(required bool) Option {
	return func(o *options) {
		o.confirmEmail = required
	}
}

func WithAccessTokenExpiry(d time.Duration) Option {
	return func(o *options) {
		o.accessTokenExpiry = d
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowTime = nowFunc
	}
}

func New(cfg config.EnvConfig, userRepo users.UserRepo, refreshRepo refresh.Repo, options ...Option) (*Server, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("[Server New] user repo is required")
	}

	o := buildOptions(options)
	keyPair, err := keys.LoadOrGenerateKeyPair(o.keyPath, signingKeyID)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to load signing key: %w", err)
	}
	tokens, err := token.New(refreshRepo, keys.NewKeyPairSigner(keyPair),
		token.WithIssuer(o.issuer),
		token.WithTokenExpiry(o.accessTokenExpiry, 0),
		token.WithNowFunc(o.nowTime),
	)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create token manager: %w", err)
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		opts:     o,
		users:    userRepo,
		tokens:   tokens,
		tables:   NewTables(),
		outbox:   NewOutbox(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func buildOptions(opts []Option) options {
	o := options{
		siteURL:           "http://localhost:3000",
		issuer:            "http://localhost:54321/auth/v1",
		accessTokenExpiry: time.Hour,
		nowTime:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// SetRPCEnabled switches the registrar_localizacao procedure on or off. While
// off the procedure is reported missing, as on a project without it.
func (s *Server) SetRPCEnabled(enabled bool) {
	s.rpcDisabled.Store(!enabled)
}

// Tables exposes the stored rows.
func (s *Server) Tables() *Tables {
	return s.tables
}

// Outbox exposes the mails the auth API has sent.
func (s *Server) Outbox() *Outbox {
	return s.outbox
}

// ConfirmEmail marks the user's address as confirmed, as following the
// confirmation mail would.
func (s *Server) ConfirmEmail(email string) error {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return fmt.Errorf("[Server.ConfirmEmail] %w", err)
	}
	user.ConfirmedAt = s.opts.nowTime()
	return s.users.Upsert(user)
}

// CleanupRevokedSessions drops revocations whose tokens have expired.
func (s *Server) CleanupRevokedSessions() {
	s.tokens.CleanupRevokedSessions()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

// ANSI colours for the route listing printed at debug level.
const (
	ansiReset = "\033[0m"
	ansiGray  = "\033[90m"
)

var methodColors = map[string]string{
	"GET":    "\033[32m",
	"POST":   "\033[34m",
	"PATCH":  "\033[35m",
	"DELETE": "\033[33m",
}

func logRoute(method, path string) {
	color, ok := methodColors[method]
	if !ok {
		color = ansiGray
	}
	log.Debug().Msgf("[%s %-7s%s] %s", color, method, ansiReset, path)
}
