package auth

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jrsteele09/go-punch-clock/backend"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Event is a session change notification.
type Event string

const (
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
)

// SessionChange is delivered to listeners. Session is nil after sign out.
type SessionChange struct {
	Event   Event
	Session *sessions.Session
}

type Listener func(SessionChange)

// AuthAPI is the subset of the backend auth API the store uses.
type AuthAPI interface {
	SignUp(ctx context.Context, email, password string, metadata sessions.Metadata) (*sessions.Session, *sessions.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*sessions.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*sessions.Session, error)
	Logout(ctx context.Context, accessToken string) error
	Recover(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, accessToken string) (*sessions.User, error)
	UpdateUser(ctx context.Context, accessToken string, update backend.UserUpdate) (*sessions.User, error)
}

var (
	_ AuthAPI            = (*backend.AuthClient)(nil)
	_ oauth2.TokenSource = (*Store)(nil)
)

// Store is the single source of truth for the current session. It persists
// the session through sessions.Storage and notifies listeners of changes.
type Store struct {
	api         AuthAPI
	storage     sessions.Storage
	validator   *Validator
	verifier    TokenVerifier
	redirectURL string
	leeway      time.Duration
	nowTime     func() time.Time

	lock    sync.RWMutex
	session *sessions.Session
	loaded  bool

	refreshLock sync.Mutex

	listenersLock sync.Mutex
	listeners     map[int]Listener
	nextListener  int
}

type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithRedirectURL sets where recovery links send the user back to.
func WithRedirectURL(url string) StoreOption {
	return func(s *Store) {
		s.redirectURL = url
	}
}

// WithTokenVerifier enables signature checks on sessions adopted through SetSession.
func WithTokenVerifier(v TokenVerifier) StoreOption {
	return func(s *Store) {
		s.verifier = v
	}
}

// WithRefreshLeeway refreshes tokens that expire within d.
func WithRefreshLeeway(d time.Duration) StoreOption {
	return func(s *Store) {
		s.leeway = d
	}
}

func NewStore(api AuthAPI, storage sessions.Storage, options ...StoreOption) (*Store, error) {
	if api == nil {
		return nil, errors.New("[NewStore] auth api is required")
	}
	if storage == nil {
		return nil, errors.New("[NewStore] session storage is required")
	}

	s := &Store{
		api:       api,
		storage:   storage,
		validator: NewValidator(),
		leeway:    time.Minute,
		nowTime:   time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// GetSession returns the current session, restoring it from storage on first
// use. A nil session with a nil error means nobody is signed in.
func (s *Store) GetSession(ctx context.Context) (*sessions.Session, error) {
	s.lock.RLock()
	if s.loaded {
		session := s.session
		s.lock.RUnlock()
		return session, nil
	}
	s.lock.RUnlock()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.loaded {
		return s.session, nil
	}
	session, err := s.storage.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.GetSession] restoring session")
	}
	s.session = session
	s.loaded = true
	return session, nil
}

// SignIn opens a session with email and password.
func (s *Store) SignIn(ctx context.Context, email, password string) (*sessions.Session, error) {
	input := &CredentialsInput{Email: email, Password: password}
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	session, err := s.api.SignInWithPassword(ctx, input.Email, input.Password)
	if err != nil {
		log.Info().Str("email", input.Email).Err(err).Msg("Sign in rejected")
		return nil, mapAuthError(err)
	}
	s.replace(ctx, session, EventSignedIn)
	log.Info().Str("user_id", session.UserID()).Msg("Signed in")
	return session, nil
}

// SignUp registers a user with their full name. When the backend issues a
// session straight away the user is signed in and the session returned;
// otherwise email confirmation is pending and the session is nil.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) (*sessions.Session, *sessions.User, error) {
	input := &SignUpInput{Email: email, Password: password, FullName: fullName}
	if err := s.validator.Validate(input); err != nil {
		return nil, nil, err
	}

	session, user, err := s.api.SignUp(ctx, input.Email, input.Password, sessions.Metadata{FullName: input.FullName})
	if err != nil {
		return nil, nil, mapAuthError(err)
	}
	if session == nil {
		log.Info().Str("user_id", user.ID).Msg("Signed up, waiting for email confirmation")
		return nil, user, nil
	}
	s.replace(ctx, session, EventSignedIn)
	log.Info().Str("user_id", session.UserID()).Msg("Signed up")
	return session, &session.User, nil
}

// SignOut ends the session. Remote revocation is best effort; the local
// session is always cleared and SIGNED_OUT always emitted.
func (s *Store) SignOut(ctx context.Context) error {
	session, err := s.GetSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Sign out: could not read session")
	}
	if session != nil {
		if err := s.api.Logout(ctx, session.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Sign out: remote revocation failed")
		}
	}
	s.replace(ctx, nil, EventSignedOut)
	log.Info().Str("user_id", session.UserID()).Msg("Signed out")
	return nil
}

// RequestPasswordReset sends a recovery link to email. Unknown addresses
// report success so accounts cannot be enumerated.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) error {
	input := &ResetInput{Email: email}
	if err := s.validator.Validate(input); err != nil {
		return err
	}

	err := mapAuthError(s.api.Recover(ctx, input.Email, s.redirectURL))
	if apperrors.Is(err, apperrors.ErrUserNotFound) {
		log.Info().Str("email", input.Email).Msg("Password reset requested for unknown email")
		return nil
	}
	return err
}

// SetSession adopts the session carried by a recovery link.
func (s *Store) SetSession(ctx context.Context, accessToken, refreshToken string) (*sessions.Session, error) {
	if accessToken == "" {
		return nil, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, "missing access token")
	}
	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, accessToken); err != nil {
			log.Warn().Err(err).Msg("Rejected access token signature")
			return nil, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, "signature verification failed")
		}
	}

	claims, err := parseAccessClaims(accessToken)
	if err != nil {
		return nil, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, err.Error())
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
		if !s.nowTime().Before(expiresAt) {
			return nil, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, "token expired")
		}
	}

	user, err := s.api.GetUser(ctx, accessToken)
	if err != nil {
		return nil, mapRecoveryError(err)
	}
	if claims.Subject != "" && claims.Subject != user.ID {
		return nil, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, "token subject does not match user")
	}

	session := &sessions.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         *user,
	}
	event := EventSignedIn
	if claims.Recovery() {
		event = EventPasswordRecovery
	}
	s.replace(ctx, session, event)
	log.Info().Str("user_id", user.ID).Str("event", string(event)).Msg("Session adopted")
	return session, nil
}

// UpdatePassword sets a new password for the signed in user.
func (s *Store) UpdatePassword(ctx context.Context, password, confirmation string) error {
	input := &PasswordUpdateInput{Password: password, Confirmation: confirmation}
	if err := s.validator.Validate(input); err != nil {
		return err
	}

	token, err := s.Token()
	if err != nil {
		return err
	}
	user, err := s.api.UpdateUser(ctx, token.AccessToken, backend.UserUpdate{Password: input.Password})
	if err != nil {
		return mapAuthError(err)
	}

	s.lock.RLock()
	current := s.session
	s.lock.RUnlock()
	if current == nil {
		return apperrors.ErrNotAuthenticated
	}
	updated := *current
	updated.User = *user
	s.replace(ctx, &updated, EventUserUpdated)
	log.Info().Str("user_id", user.ID).Msg("Password updated")
	return nil
}

// Token returns the access token of the current session, refreshing it when
// it expires within the leeway. A refresh token the backend rejects signs the
// user out; any other refresh failure keeps the session for the next attempt.
func (s *Store) Token() (*oauth2.Token, error) {
	ctx := context.Background()

	s.refreshLock.Lock()
	defer s.refreshLock.Unlock()

	session, err := s.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	if !session.Expired(s.nowTime(), s.leeway) {
		return session.Token(), nil
	}

	refreshed, err := s.api.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if !refreshRejected(err) {
			log.Warn().Err(err).Str("user_id", session.UserID()).Msg("Token refresh failed, keeping session")
			return nil, fmt.Errorf("[Store.Token] session refresh failed: %w", mapAuthError(err))
		}
		log.Warn().Err(err).Str("user_id", session.UserID()).Msg("Refresh token rejected, signing out")
		s.replace(ctx, nil, EventSignedOut)
		return nil, fmt.Errorf("%w: session refresh failed: %v", apperrors.ErrNotAuthenticated, err)
	}
	s.replace(ctx, refreshed, EventTokenRefreshed)
	return refreshed.Token(), nil
}

// OnSessionChange registers listener and returns the function removing it.
// Listeners run synchronously on the goroutine that changed the session.
func (s *Store) OnSessionChange(listener Listener) func() {
	s.listenersLock.Lock()
	defer s.listenersLock.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersLock.Lock()
			defer s.listenersLock.Unlock()
			delete(s.listeners, id)
		})
	}
}

// replace swaps the current session, persists it and notifies listeners.
func (s *Store) replace(ctx context.Context, session *sessions.Session, event Event) {
	s.lock.Lock()
	s.session = session
	s.loaded = true
	s.lock.Unlock()

	var err error
	if session == nil {
		err = s.storage.Clear(ctx)
	} else {
		err = s.storage.Save(ctx, session)
	}
	if err != nil {
		// The in-memory session stays authoritative for this process.
		log.Error().Err(err).Str("event", string(event)).Msg("Persisting session failed")
	}

	s.emit(SessionChange{Event: event, Session: session})
}

func (s *Store) emit(change SessionChange) {
	s.listenersLock.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersLock.Unlock()

	for _, l := range listeners {
		l(change)
	}
}
