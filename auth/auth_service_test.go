package auth_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/auth"
	"github.com/jrsteele09/go-punch-clock/backend"
	"github.com/jrsteele09/go-punch-clock/internal/config"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/server"
	"github.com/jrsteele09/go-punch-clock/sessions"
	fakesessionstorage "github.com/jrsteele09/go-punch-clock/sessions/repofakes"
	refreshrepofake "github.com/jrsteele09/go-punch-clock/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-punch-clock/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	anonKey     = "test-anon-key"
	redirectURL = "seuapp://novaSenha"
	email       = "ana@empresa.com"
	password    = "segredo1"
)

type harness struct {
	emulator *server.Server
	api      *backend.AuthClient
	storage  *fakesessionstorage.FakeStorage
	store    *auth.Store
	events   *eventLog
}

type eventLog struct {
	lock   sync.Mutex
	events []auth.Event
}

func (l *eventLog) record(change auth.SessionChange) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, change.Event)
}

func (l *eventLog) all() []auth.Event {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]auth.Event(nil), l.events...)
}

func setup(t *testing.T, serverOpts []server.Option, storeOpts ...auth.StoreOption) *harness {
	t.Helper()
	serverOpts = append([]server.Option{server.WithAnonKey(anonKey)}, serverOpts...)
	emulator, err := server.New(config.EnvVars{}, fakeuserrepo.NewFakeUserRepo(), refreshrepofake.NewFakeRefreshTokenRepo(), serverOpts...)
	require.NoError(t, err)
	ts := httptest.NewServer(emulator)
	t.Cleanup(ts.Close)

	h := &harness{
		emulator: emulator,
		api:      backend.NewAuthClient(ts.URL, anonKey),
		storage:  fakesessionstorage.NewFakeStorage(),
		events:   &eventLog{},
	}
	h.store = h.newStore(t, h.storage, storeOpts...)
	return h
}

func (h *harness) newStore(t *testing.T, storage *fakesessionstorage.FakeStorage, opts ...auth.StoreOption) *auth.Store {
	t.Helper()
	opts = append([]auth.StoreOption{auth.WithRedirectURL(redirectURL)}, opts...)
	store, err := auth.NewStore(h.api, storage, opts...)
	require.NoError(t, err)
	store.OnSessionChange(h.events.record)
	return store
}

func TestNewStore_RequiresDependencies(t *testing.T) {
	_, err := auth.NewStore(nil, fakesessionstorage.NewFakeStorage())
	require.Error(t, err)
	_, err = auth.NewStore(backend.NewAuthClient("http://localhost", anonKey), nil)
	require.Error(t, err)
}

func TestSignUp_SignsInWithFullName(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()

	session, user, err := h.store.SignUp(ctx, " "+email+" ", password, "Ana Silva")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, email, user.Email)
	require.Equal(t, "Ana Silva", user.Metadata.FullName)
	require.Equal(t, user.ID, session.UserID())
	require.Equal(t, "Ana Silva", session.User.Metadata.FullName)

	current, err := h.store.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, session, current)
	require.Equal(t, []auth.Event{auth.EventSignedIn}, h.events.all())

	stored, err := h.storage.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, session.AccessToken, stored.AccessToken)

	_, _, err = h.store.SignUp(ctx, email, password, "Ana Silva")
	require.ErrorIs(t, err, apperrors.ErrUserAlreadyRegistered)
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	h := setup(t, []server.Option{server.WithEmailConfirmation(true)})
	ctx := context.Background()

	pending, user, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	require.Nil(t, pending)
	require.NotEmpty(t, user.ID)

	session, err := h.store.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, session)
	require.Empty(t, h.events.all())
}

func TestSignIn_DistinguishesFailures(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	require.NoError(t, h.store.SignOut(ctx))

	_, err = h.store.SignIn(ctx, email, "errada")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, "Incorrect password.", apperrors.UserMessage(err))

	_, err = h.store.SignIn(ctx, "ninguem@empresa.com", password)
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)

	_, err = h.store.SignIn(ctx, "", password)
	require.ErrorIs(t, err, apperrors.ErrMissingField)

	session, err := h.store.SignIn(ctx, email, password)
	require.NoError(t, err)
	require.Equal(t, email, session.User.Email)
}

func TestSignOut_ClearsSession(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)

	require.NoError(t, h.store.SignOut(ctx))
	session, err := h.store.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, session)

	stored, err := h.storage.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, stored)
	require.Equal(t, []auth.Event{auth.EventSignedIn, auth.EventSignedOut}, h.events.all())

	_, err = h.store.Token()
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestGetSession_RestoresFromStorage(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)

	restored := h.newStore(t, h.storage)
	session, err := restored.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, email, session.User.Email)
}

func TestRequestPasswordReset(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, h.store.RequestPasswordReset(ctx, "ninguem@empresa.com"))
	require.Empty(t, h.emulator.Outbox().Messages())

	require.ErrorIs(t, h.store.RequestPasswordReset(ctx, "ana"), apperrors.ErrInvalidEmail)
}

func recoveryLink(t *testing.T, h *harness) url.Values {
	t.Helper()
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	require.NoError(t, h.store.SignOut(ctx))

	require.NoError(t, h.store.RequestPasswordReset(ctx, email))
	mail, ok := h.emulator.Outbox().Last(email)
	require.True(t, ok)
	link, err := url.Parse(mail.Link)
	require.NoError(t, err)
	require.Equal(t, "seuapp", link.Scheme)
	return link.Query()
}

func TestSetSession_RecoveryLinkAndNewPassword(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()
	params := recoveryLink(t, h)

	device := h.newStore(t, fakesessionstorage.NewFakeStorage(), auth.WithTokenVerifier(auth.NewJWKSVerifier(ctx, h.api.JWKSURL())))
	session, err := device.SetSession(ctx, params.Get("access_token"), params.Get("refresh_token"))
	require.NoError(t, err)
	require.Equal(t, email, session.User.Email)
	require.Equal(t, auth.EventPasswordRecovery, h.events.all()[len(h.events.all())-1])

	err = device.UpdatePassword(ctx, "novasenha", "outrasenha")
	require.ErrorIs(t, err, apperrors.ErrPasswordMismatch)
	err = device.UpdatePassword(ctx, "123", "123")
	require.ErrorIs(t, err, apperrors.ErrWeakPassword)

	require.NoError(t, device.UpdatePassword(ctx, "novasenha", "novasenha"))
	require.Equal(t, auth.EventUserUpdated, h.events.all()[len(h.events.all())-1])

	_, err = h.store.SignIn(ctx, email, password)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = h.store.SignIn(ctx, email, "novasenha")
	require.NoError(t, err)
}

func TestSetSession_RejectsBadTokens(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()
	params := recoveryLink(t, h)
	device := h.newStore(t, fakesessionstorage.NewFakeStorage(), auth.WithTokenVerifier(auth.NewJWKSVerifier(ctx, h.api.JWKSURL())))

	_, err := device.SetSession(ctx, "", params.Get("refresh_token"))
	require.ErrorIs(t, err, apperrors.ErrInvalidRecoveryToken)

	access := params.Get("access_token")
	tampered := access[:len(access)-6] + "AAAAAA"
	_, err = device.SetSession(ctx, tampered, params.Get("refresh_token"))
	require.ErrorIs(t, err, apperrors.ErrInvalidRecoveryToken)

	_, err = device.SetSession(ctx, "not-a-jwt", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidRecoveryToken)

	later := h.newStore(t, fakesessionstorage.NewFakeStorage(), auth.WithNowTime(func() time.Time { return time.Now().Add(2 * time.Hour) }))
	_, err = later.SetSession(ctx, access, params.Get("refresh_token"))
	require.ErrorIs(t, err, apperrors.ErrInvalidRecoveryToken)
	require.Equal(t, "The recovery link is invalid or has expired. Request a new one.", apperrors.UserMessage(err))
}

func TestToken_RefreshesExpiringSession(t *testing.T) {
	h := setup(t, nil, auth.WithNowTime(func() time.Time { return time.Now().Add(2 * time.Hour) }))
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	before, err := h.store.GetSession(ctx)
	require.NoError(t, err)

	token, err := h.store.Token()
	require.NoError(t, err)
	require.NotEqual(t, before.RefreshToken, token.RefreshToken)
	require.Equal(t, []auth.Event{auth.EventSignedIn, auth.EventTokenRefreshed}, h.events.all())

	after, err := h.store.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, before.UserID(), after.UserID())
}

func TestToken_FailedRefreshSignsOut(t *testing.T) {
	h := setup(t, nil, auth.WithNowTime(func() time.Time { return time.Now().Add(2 * time.Hour) }))
	ctx := context.Background()
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	session, err := h.store.GetSession(ctx)
	require.NoError(t, err)

	// Rotating the refresh token elsewhere leaves the store holding a used one.
	_, err = h.api.RefreshSession(ctx, session.RefreshToken)
	require.NoError(t, err)

	_, err = h.store.Token()
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Equal(t, []auth.Event{auth.EventSignedIn, auth.EventSignedOut}, h.events.all())

	current, err := h.store.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, current)
}

// scriptedAPI passes calls through to the emulator unless an error is set.
type scriptedAPI struct {
	*backend.AuthClient
	signInErr  error
	refreshErr error
}

func (a *scriptedAPI) SignInWithPassword(ctx context.Context, email, password string) (*sessions.Session, error) {
	if a.signInErr != nil {
		return nil, a.signInErr
	}
	return a.AuthClient.SignInWithPassword(ctx, email, password)
}

func (a *scriptedAPI) RefreshSession(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	if a.refreshErr != nil {
		return nil, a.refreshErr
	}
	return a.AuthClient.RefreshSession(ctx, refreshToken)
}

func TestToken_TransientRefreshFailureKeepsSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport failure", fmt.Errorf("%w: dial tcp: connection refused", apperrors.ErrNetwork)},
		{"server error", &backend.APIError{Status: 503, Msg: "Service Unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, nil)
			api := &scriptedAPI{AuthClient: h.api}
			storage := fakesessionstorage.NewFakeStorage()
			store, err := auth.NewStore(api, storage, auth.WithNowTime(func() time.Time { return time.Now().Add(2 * time.Hour) }))
			require.NoError(t, err)
			events := &eventLog{}
			store.OnSessionChange(events.record)

			ctx := context.Background()
			_, _, err = store.SignUp(ctx, email, password, "Ana Silva")
			require.NoError(t, err)
			before, err := store.GetSession(ctx)
			require.NoError(t, err)

			api.refreshErr = tt.err
			_, err = store.Token()
			require.ErrorIs(t, err, apperrors.ErrNetwork)
			require.NotErrorIs(t, err, apperrors.ErrNotAuthenticated)
			require.Equal(t, []auth.Event{auth.EventSignedIn}, events.all())

			current, err := store.GetSession(ctx)
			require.NoError(t, err)
			require.Equal(t, before, current)
			stored, err := storage.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, stored)
			require.Equal(t, before.RefreshToken, stored.RefreshToken)

			// The kept refresh token still works once the backend is back.
			api.refreshErr = nil
			token, err := store.Token()
			require.NoError(t, err)
			require.NotEqual(t, before.RefreshToken, token.RefreshToken)
			require.Equal(t, []auth.Event{auth.EventSignedIn, auth.EventTokenRefreshed}, events.all())
		})
	}
}

func TestSignIn_ServerErrorIsNetworkError(t *testing.T) {
	h := setup(t, nil)
	api := &scriptedAPI{
		AuthClient: h.api,
		signInErr:  &backend.APIError{Status: 500, ErrorCode: "unexpected_failure", Msg: "Database error querying schema"},
	}
	store, err := auth.NewStore(api, fakesessionstorage.NewFakeStorage())
	require.NoError(t, err)

	_, err = store.SignIn(context.Background(), email, password)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.NotErrorIs(t, err, apperrors.ErrAuth)
	require.Equal(t, "Could not reach the server. Check your connection and try again.", apperrors.UserMessage(err))
}

func TestOnSessionChange_Unsubscribe(t *testing.T) {
	h := setup(t, nil)
	ctx := context.Background()

	var count int
	unsubscribe := h.store.OnSessionChange(func(auth.SessionChange) { count++ })
	_, _, err := h.store.SignUp(ctx, email, password, "Ana Silva")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	require.NoError(t, h.store.SignOut(ctx))
	require.Equal(t, 1, count)
}
