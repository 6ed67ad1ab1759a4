package coordinator

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-punch-clock/auth"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// AppState is the lifecycle state reported by the host application.
type AppState string

const (
	AppActive     AppState = "active"
	AppInactive   AppState = "inactive"
	AppBackground AppState = "background"
)

// UIState is what the permission UI renders.
type UIState struct {
	LocationEnabled               bool
	ShowPermissionModal           bool
	DeviceLocationServicesEnabled bool
}

// SessionSource is the part of the session store the coordinator observes.
type SessionSource interface {
	GetSession(ctx context.Context) (*sessions.Session, error)
	OnSessionChange(listener auth.Listener) (unsubscribe func())
}

// Monitor is the location monitor lifecycle the coordinator drives.
type Monitor interface {
	CheckDeviceLocationEnabled(ctx context.Context) bool
	RequestPermissions(ctx context.Context) location.PermissionResult
	ForegroundPermissionGranted(ctx context.Context) bool
	Start(ctx context.Context, userID string) error
	Stop(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// Notifier raises non-blocking alerts.
type Notifier interface {
	Alert(title, message string)
}

var (
	_ SessionSource = (*auth.Store)(nil)
	_ Monitor       = (*location.Monitor)(nil)
)

type logNotifier struct{}

func (logNotifier) Alert(title, message string) {
	log.Warn().Str("title", title).Msg(message)
}

const (
	triggerSignIn = "sign-in"
	triggerResume = "resume"

	startFailedTitle   = "Attention"
	startFailedMessage = "There was a problem starting location monitoring. Some features may be limited."
)

type Option func(*Coordinator)

// WithNotifier sets where start failures are reported.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithQueueSize bounds the number of pending session events.
func WithQueueSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// Coordinator ties location monitoring to the session: it starts monitoring
// for a signed in user, stops it on sign out and heals it when the app
// returns to the foreground. Triggers run one at a time.
type Coordinator struct {
	sessions  SessionSource
	monitor   Monitor
	notifier  Notifier
	queueSize int

	seq    sync.Mutex
	flight singleflight.Group

	lock     sync.RWMutex
	state    UIState
	userID   string
	appState AppState
}

func New(sessionSource SessionSource, monitor Monitor, options ...Option) (*Coordinator, error) {
	if sessionSource == nil {
		return nil, errors.New("[coordinator.New] session source is required")
	}
	if monitor == nil {
		return nil, errors.New("[coordinator.New] location monitor is required")
	}
	c := &Coordinator{
		sessions:  sessionSource,
		monitor:   monitor,
		notifier:  logNotifier{},
		queueSize: 16,
		appState:  AppActive,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Run evaluates the restored session, then handles session changes in order
// until ctx ends, when monitoring is stopped.
func (c *Coordinator) Run(ctx context.Context) error {
	queue := make(chan auth.SessionChange, c.queueSize)
	unsubscribe := c.sessions.OnSessionChange(func(change auth.SessionChange) {
		select {
		case queue <- change:
		default:
			log.Error().Str("event", string(change.Event)).Msg("Coordinator: event queue full, dropping session event")
		}
	})
	defer unsubscribe()

	session, err := c.sessions.GetSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Coordinator: reading initial session")
	}
	if session != nil {
		c.HandleSessionEvent(ctx, auth.SessionChange{Event: auth.EventSignedIn, Session: session})
	} else {
		c.signOut(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			stopCtx := context.WithoutCancel(ctx)
			c.seq.Lock()
			err := c.monitor.Stop(stopCtx)
			c.seq.Unlock()
			if err != nil {
				log.Warn().Err(err).Msg("Coordinator: stopping monitor on shutdown")
			}
			return ctx.Err()
		case change := <-queue:
			c.HandleSessionEvent(ctx, change)
		}
	}
}

// HandleSessionEvent reacts to a session change. Sign in starts monitoring,
// sign out stops it; other events only track the current user.
func (c *Coordinator) HandleSessionEvent(ctx context.Context, change auth.SessionChange) {
	log.Debug().Str("event", string(change.Event)).Str("user_id", change.Session.UserID()).Msg("Coordinator: session event")
	switch change.Event {
	case auth.EventSignedIn:
		userID := change.Session.UserID()
		if userID == "" {
			return
		}
		c.setUser(userID)
		c.do(triggerSignIn, userID, func() { c.signInSequence(ctx, userID) })
	case auth.EventSignedOut:
		c.signOut(ctx)
	default:
		if userID := change.Session.UserID(); userID != "" {
			c.setUser(userID)
		}
	}
}

// HandleAppStateChange heals monitoring when the app comes back to the
// foreground with a signed in user.
func (c *Coordinator) HandleAppStateChange(ctx context.Context, next AppState) {
	c.lock.Lock()
	previous := c.appState
	c.appState = next
	userID := c.userID
	c.lock.Unlock()

	log.Debug().Str("from", string(previous)).Str("to", string(next)).Msg("Coordinator: app state changed")
	if next != AppActive || (previous != AppInactive && previous != AppBackground) {
		return
	}
	if userID == "" {
		enabled := c.monitor.CheckDeviceLocationEnabled(ctx)
		c.updateState(func(s *UIState) { s.DeviceLocationServicesEnabled = enabled })
		return
	}
	c.do(triggerResume, userID, func() { c.verifyMonitoring(ctx, userID) })
}

// Retry re-runs the sign in sequence for the current user.
func (c *Coordinator) Retry(ctx context.Context) error {
	c.lock.RLock()
	userID := c.userID
	c.lock.RUnlock()
	if userID == "" {
		return apperrors.ErrNotAuthenticated
	}
	c.do(triggerSignIn, userID, func() { c.signInSequence(ctx, userID) })
	return nil
}

// DismissPermissionModal hides the permission modal.
func (c *Coordinator) DismissPermissionModal() {
	c.updateState(func(s *UIState) { s.ShowPermissionModal = false })
}

func (c *Coordinator) State() UIState {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

// UserID returns the signed in user the coordinator acts for.
func (c *Coordinator) UserID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.userID
}

// do runs fn under the sequence lock. Concurrent calls with the same trigger
// and user share one run.
func (c *Coordinator) do(trigger, userID string, fn func()) {
	_, _, _ = c.flight.Do(trigger+":"+userID, func() (any, error) {
		c.seq.Lock()
		defer c.seq.Unlock()
		fn()
		return nil, nil
	})
}

func (c *Coordinator) signInSequence(ctx context.Context, userID string) {
	if !c.stillSignedIn(userID) {
		return
	}
	if !c.monitor.CheckDeviceLocationEnabled(ctx) {
		log.Info().Str("user_id", userID).Msg("Coordinator: device location services disabled")
		c.updateState(func(s *UIState) {
			s.DeviceLocationServicesEnabled = false
			s.LocationEnabled = false
			s.ShowPermissionModal = true
		})
		return
	}
	c.updateState(func(s *UIState) { s.DeviceLocationServicesEnabled = true })

	permissions := c.monitor.RequestPermissions(ctx)
	if !permissions.Granted {
		log.Info().Err(permissions.Err).Str("user_id", userID).Msg("Coordinator: location permission not granted")
		c.updateState(func(s *UIState) {
			s.LocationEnabled = false
			s.ShowPermissionModal = true
		})
		return
	}

	c.start(ctx, userID, true)
}

func (c *Coordinator) verifyMonitoring(ctx context.Context, userID string) {
	if !c.stillSignedIn(userID) {
		return
	}
	enabled := c.monitor.CheckDeviceLocationEnabled(ctx)
	c.updateState(func(s *UIState) { s.DeviceLocationServicesEnabled = enabled })
	if !enabled {
		log.Info().Str("user_id", userID).Msg("Coordinator: device location services disabled on resume")
		c.updateState(func(s *UIState) {
			s.LocationEnabled = false
			s.ShowPermissionModal = true
		})
		return
	}

	active := c.monitor.IsActive(ctx)
	c.updateState(func(s *UIState) { s.LocationEnabled = active })
	if active {
		return
	}
	if !c.monitor.ForegroundPermissionGranted(ctx) {
		log.Info().Str("user_id", userID).Msg("Coordinator: monitoring inactive without permission")
		c.updateState(func(s *UIState) { s.ShowPermissionModal = true })
		return
	}
	log.Info().Str("user_id", userID).Msg("Coordinator: monitoring inactive, restarting")
	c.start(ctx, userID, false)
}

func (c *Coordinator) start(ctx context.Context, userID string, alert bool) {
	err := c.monitor.Start(ctx, userID)
	if err == nil {
		c.updateState(func(s *UIState) {
			s.LocationEnabled = true
			s.ShowPermissionModal = false
		})
		return
	}

	log.Error().Err(err).Str("user_id", userID).Msg("Coordinator: starting location monitoring")
	servicesOff := apperrors.Is(err, apperrors.ErrLocationServicesDisabled)
	c.updateState(func(s *UIState) {
		s.LocationEnabled = false
		s.ShowPermissionModal = true
		if servicesOff {
			s.DeviceLocationServicesEnabled = false
		}
	})
	if alert && !servicesOff {
		c.notifier.Alert(startFailedTitle, startFailedMessage)
	}
}

func (c *Coordinator) signOut(ctx context.Context) {
	c.lock.Lock()
	c.userID = ""
	c.lock.Unlock()

	c.seq.Lock()
	err := c.monitor.Stop(ctx)
	c.seq.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Coordinator: stopping monitor after sign out")
	}

	c.lock.Lock()
	c.state = UIState{DeviceLocationServicesEnabled: c.state.DeviceLocationServicesEnabled}
	c.lock.Unlock()
}

// stillSignedIn drops sequences queued behind a sign out or a user change.
func (c *Coordinator) stillSignedIn(userID string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.userID == userID
}

func (c *Coordinator) setUser(userID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.userID = userID
}

func (c *Coordinator) updateState(update func(*UIState)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	update(&c.state)
}
