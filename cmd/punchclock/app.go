package main

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jrsteele09/go-punch-clock/auth"
	"github.com/jrsteele09/go-punch-clock/backend"
	"github.com/jrsteele09/go-punch-clock/deeplink"
	"github.com/jrsteele09/go-punch-clock/internal/config"
	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/location/simulated"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// app builds the client stack once per process. Flags override the
// configured backend before the first component is built.
type app struct {
	cfg config.Config
	out io.Writer
	in  io.Reader

	backendURL string
	anonKey    string
	dataFolder string

	lock     sync.Mutex
	store    *auth.Store
	rest     *backend.RestClient
	provider location.Provider
	closers  []func() error
}

func newApp(cfg config.Config, out io.Writer, in io.Reader) *app {
	return &app{
		cfg:        cfg,
		out:        out,
		in:         in,
		backendURL: cfg.GetBackendURL(),
		anonKey:    cfg.GetAnonKey(),
		dataFolder: cfg.GetDataFolder(),
	}
}

func (a *app) authAPI() *backend.AuthClient {
	return backend.NewAuthClient(a.backendURL, a.anonKey, backend.WithTimeout(a.cfg.GetHTTPTimeout()))
}

// sessionStorage is Redis when configured, else a file in the data folder.
func (a *app) sessionStorage(ctx context.Context) (sessions.Storage, error) {
	redisURL := a.cfg.GetRedisURL()
	if redisURL == "" {
		return sessions.NewFileStorage(a.dataFolder), nil
	}
	deviceID, _ := os.Hostname()
	storage, err := sessions.NewRedisStorage(ctx, redisURL, deviceID)
	if err != nil {
		return nil, errors.Wrap(err, "[app.sessionStorage]")
	}
	a.closers = append(a.closers, storage.Close)
	return storage, nil
}

func (a *app) sessionStore(ctx context.Context) (*auth.Store, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.store != nil {
		return a.store, nil
	}

	storage, err := a.sessionStorage(ctx)
	if err != nil {
		return nil, err
	}
	opts := []auth.StoreOption{
		auth.WithRedirectURL(deeplink.RedirectURL(a.cfg.GetAppScheme())),
		auth.WithRefreshLeeway(a.cfg.GetRefreshLeeway()),
	}
	if jwksURL := a.cfg.GetJWKSURL(); jwksURL != "" {
		opts = append(opts, auth.WithTokenVerifier(auth.NewJWKSVerifier(context.WithoutCancel(ctx), jwksURL)))
	}
	store, err := auth.NewStore(a.authAPI(), storage, opts...)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) restClient(ctx context.Context) (*backend.RestClient, error) {
	store, err := a.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.rest == nil {
		a.rest = backend.NewRestClient(a.backendURL, a.anonKey, store, backend.WithTimeout(a.cfg.GetHTTPTimeout()))
	}
	return a.rest, nil
}

// locationProvider stands in for the device GPS.
func (a *app) locationProvider() location.Provider {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.provider == nil {
		lat, lon := a.cfg.GetSimulatedPosition()
		a.provider = simulated.New(lat, lon)
	}
	return a.provider
}

func (a *app) recorder(ctx context.Context) (*punches.Recorder, error) {
	store, err := a.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	rest, err := a.restClient(ctx)
	if err != nil {
		return nil, err
	}
	return punches.NewRecorder(rest, store, location.NewLocator(a.locationProvider()), punches.WithTimezone(a.cfg.GetTimezone()))
}

func (a *app) history(ctx context.Context) (*punches.History, error) {
	rest, err := a.restClient(ctx)
	if err != nil {
		return nil, err
	}
	return punches.NewHistory(rest, a.cfg.GetTimezone()), nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Closing resource")
		}
	}
}
