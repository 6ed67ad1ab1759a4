package location

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-punch-clock/internal/config"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State of a Monitor.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateActive   State = "active"
)

// Options configures a Monitor.
type Options struct {
	Platform     string
	Interval     time.Duration
	Distance     float64
	TaskName     string
	Notification config.Notification
	InboxSize    int
}

// OptionsFromConfig reads the monitor options from configuration.
func OptionsFromConfig(cfg config.LocationConfig) Options {
	return Options{
		Platform:     cfg.GetPlatform(),
		Interval:     cfg.GetTrackingInterval(),
		Distance:     cfg.GetTrackingDistance(),
		TaskName:     cfg.GetBackgroundTaskName(),
		Notification: cfg.GetNotification(),
		InboxSize:    cfg.GetInboxSize(),
	}
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.Distance <= 0 {
		o.Distance = 10
	}
	if o.TaskName == "" {
		o.TaskName = "background-location-task"
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 32
	}
	return o
}

// PermissionResult is the outcome of RequestPermissions.
type PermissionResult struct {
	Granted    bool
	Background bool
	Err        error
}

// Monitor owns at most one location monitoring session: a foreground watch,
// an optional background task and the goroutine that drains their inbox.
// Start and Stop are serialised, so a new owner always starts after the
// previous one has been fully stopped.
type Monitor struct {
	provider Provider
	sink     *Sink
	opts     Options

	seq sync.Mutex // held for the whole of Start and Stop

	lock                 sync.RWMutex
	state                State
	owner                string
	watch                Subscription
	backgroundRegistered bool
	cancelDrain          context.CancelFunc
	drainDone            chan struct{}
}

func NewMonitor(provider Provider, sink *Sink, opts Options) (*Monitor, error) {
	if provider == nil {
		return nil, errors.New("[NewMonitor] provider is required")
	}
	if sink == nil {
		return nil, errors.New("[NewMonitor] sink is required")
	}
	return &Monitor{
		provider: provider,
		sink:     sink,
		opts:     opts.withDefaults(),
		state:    StateStopped,
	}, nil
}

// CheckDeviceLocationEnabled reports whether device location services are on.
// Provider errors count as disabled.
func (m *Monitor) CheckDeviceLocationEnabled(ctx context.Context) bool {
	enabled, err := m.provider.ServicesEnabled(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Monitor: checking location services")
		return false
	}
	return enabled
}

// RequestPermissions asks for foreground permission and, on platforms that
// ask separately, background permission. Background denial is not fatal.
func (m *Monitor) RequestPermissions(ctx context.Context) PermissionResult {
	if !m.CheckDeviceLocationEnabled(ctx) {
		return PermissionResult{Err: apperrors.ErrLocationServicesDisabled}
	}

	fg, err := m.provider.RequestForegroundPermission(ctx)
	if err != nil {
		return PermissionResult{Err: errors.Wrap(err, "[Monitor.RequestPermissions] foreground")}
	}
	if !fg.Granted() {
		log.Info().Msg("Monitor: foreground permission denied")
		return PermissionResult{Err: apperrors.ErrPermissionDenied}
	}

	result := PermissionResult{Granted: true}
	if strings.EqualFold(m.opts.Platform, PlatformIOS) {
		bg, err := m.provider.RequestBackgroundPermission(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Monitor: background permission request failed, continuing in foreground only")
		case !bg.Granted():
			log.Info().Msg("Monitor: background permission denied, continuing in foreground only")
		default:
			result.Background = true
		}
	}
	return result
}

// ForegroundPermissionGranted checks the current foreground grant without prompting.
func (m *Monitor) ForegroundPermissionGranted(ctx context.Context) bool {
	status, err := m.provider.ForegroundPermission(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Monitor: reading foreground permission")
		return false
	}
	return status.Granted()
}

// Start begins monitoring on behalf of userID, stopping any active session first.
func (m *Monitor) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.ErrMissingUserID
	}

	m.seq.Lock()
	defer m.seq.Unlock()

	if !m.CheckDeviceLocationEnabled(ctx) {
		return apperrors.ErrLocationServicesDisabled
	}

	if m.isActive(ctx) {
		log.Info().Str("previous_owner", m.Owner()).Str("user_id", userID).Msg("Monitor: already active, stopping first")
		if err := m.stop(ctx); err != nil {
			return errors.Wrap(err, "[Monitor.Start] stopping previous session")
		}
	}

	m.setState(StateStarting, userID)

	fg, err := m.provider.ForegroundPermission(ctx)
	if err != nil || !fg.Granted() {
		m.setState(StateStopped, "")
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrPermissionDenied, err)
		}
		return apperrors.ErrPermissionDenied
	}

	bg, err := m.provider.BackgroundPermission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Monitor: reading background permission")
	}

	inbox := NewInbox(m.opts.InboxSize)
	drainCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go m.drain(drainCtx, userID, inbox, done)

	// Best effort first sample so the session starts with a position.
	if fix, err := m.provider.CurrentPosition(ctx, AccuracyHigh); err != nil {
		log.Warn().Err(err).Msg("Monitor: could not get current position")
	} else if err := m.sink.Persist(ctx, SampleFromFix(userID, fix)); err != nil {
		log.Warn().Err(err).Msg("Monitor: could not persist current position")
	}

	watchOpts := WatchOptions{Accuracy: AccuracyBalanced, Interval: m.opts.Interval, Distance: m.opts.Distance}
	watch, err := m.provider.Watch(ctx, watchOpts, inbox)
	if err != nil {
		cancel()
		<-done
		m.setState(StateStopped, "")
		return errors.Wrap(err, "[Monitor.Start] watch")
	}

	backgroundRegistered := false
	if bg.Granted() {
		err := m.provider.StartBackgroundUpdates(ctx, m.opts.TaskName, BackgroundOptions{
			WatchOptions:             watchOpts,
			ShowsBackgroundIndicator: true,
			Notification:             m.opts.Notification,
		}, inbox)
		if err != nil {
			log.Warn().Err(err).Msg("Monitor: background task registration failed, continuing in foreground only")
		} else {
			backgroundRegistered = true
		}
	} else {
		log.Info().Msg("Monitor: no background permission, foreground only")
	}

	m.lock.Lock()
	m.watch = watch
	m.backgroundRegistered = backgroundRegistered
	m.cancelDrain = cancel
	m.drainDone = done
	m.state = StateActive
	m.owner = userID
	m.lock.Unlock()

	metrics.MonitorActive.Set(1)
	log.Info().Str("user_id", userID).Bool("background", backgroundRegistered).Msg("Monitor: started")
	return nil
}

// Stop ends the current session. Stopping a stopped monitor succeeds.
func (m *Monitor) Stop(ctx context.Context) error {
	m.seq.Lock()
	defer m.seq.Unlock()
	return m.stop(ctx)
}

func (m *Monitor) stop(ctx context.Context) error {
	m.lock.Lock()
	watch := m.watch
	cancel := m.cancelDrain
	done := m.drainDone
	m.watch = nil
	m.cancelDrain = nil
	m.drainDone = nil
	m.lock.Unlock()

	if watch != nil {
		watch.Remove()
	}

	var stopErr error
	registered, err := m.provider.IsTaskRegistered(ctx, m.opts.TaskName)
	if err != nil {
		log.Warn().Err(err).Msg("Monitor: checking background task")
	}
	if registered {
		if err := m.provider.StopBackgroundUpdates(ctx, m.opts.TaskName); err != nil {
			stopErr = errors.Wrap(err, "[Monitor.Stop] stop background updates")
		}
	}

	if cancel != nil {
		cancel()
		<-done
	}

	m.lock.Lock()
	m.backgroundRegistered = false
	m.setStateLocked(StateStopped, "")
	m.lock.Unlock()

	metrics.MonitorActive.Set(0)
	log.Debug().Msg("Monitor: stopped")
	return stopErr
}

// IsActive reports whether a foreground watch is live or the background
// task is registered with the OS.
func (m *Monitor) IsActive(ctx context.Context) bool {
	return m.isActive(ctx)
}

func (m *Monitor) isActive(ctx context.Context) bool {
	m.lock.RLock()
	watching := m.watch != nil
	m.lock.RUnlock()
	if watching {
		return true
	}
	registered, err := m.provider.IsTaskRegistered(ctx, m.opts.TaskName)
	if err != nil {
		log.Error().Err(err).Msg("Monitor: checking background task")
		return false
	}
	return registered
}

func (m *Monitor) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Owner returns the user id the monitor samples for, empty when stopped.
func (m *Monitor) Owner() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.owner
}

func (m *Monitor) setState(state State, owner string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.setStateLocked(state, owner)
}

func (m *Monitor) setStateLocked(state State, owner string) {
	m.state = state
	m.owner = owner
}

func (m *Monitor) drain(ctx context.Context, userID string, inbox *Inbox, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-inbox.C():
			m.handleBatch(ctx, userID, batch)
		}
	}
}

func (m *Monitor) handleBatch(ctx context.Context, userID string, batch Batch) {
	if batch.Err != nil {
		log.Error().Err(batch.Err).Str("source", string(batch.Source)).Msg("Monitor: location task error")
		return
	}
	if len(batch.Fixes) == 0 {
		log.Debug().Str("source", string(batch.Source)).Msg("Monitor: empty location batch")
		return
	}

	fixes := batch.Fixes
	if batch.Source == SourceBackground {
		fixes = fixes[len(fixes)-1:]
	}
	for _, fix := range fixes {
		// Failures are logged and counted by the sink.
		_ = m.sink.Persist(ctx, SampleFromFix(userID, fix))
	}
}

// Background reports whether the current session registered the background task.
func (m *Monitor) Background() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.backgroundRegistered
}
