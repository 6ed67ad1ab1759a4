package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/auth"
	"github.com/jrsteele09/go-punch-clock/coordinator"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/location"
	fakeprovider "github.com/jrsteele09/go-punch-clock/location/providerfake"
	fakelocationstore "github.com/jrsteele09/go-punch-clock/location/storefake"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testUser1 = "user-1"
	testUser2 = "user-2"
)

type fakeSessions struct {
	lock      sync.Mutex
	session   *sessions.Session
	listeners []auth.Listener
}

func (f *fakeSessions) GetSession(context.Context) (*sessions.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.session, nil
}

func (f *fakeSessions) OnSessionChange(listener auth.Listener) func() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.listeners = append(f.listeners, listener)
	return func() {}
}

func (f *fakeSessions) emit(event auth.Event, session *sessions.Session) {
	f.lock.Lock()
	f.session = session
	listeners := append([]auth.Listener(nil), f.listeners...)
	f.lock.Unlock()
	for _, l := range listeners {
		l(auth.SessionChange{Event: event, Session: session})
	}
}

func (f *fakeSessions) subscribed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.listeners) > 0
}

type fakeMonitor struct {
	lock            sync.Mutex
	servicesEnabled bool
	permissions     location.PermissionResult
	foreground      bool
	startErr        error
	active          bool
	starts          []string
	stops           int
	startEntered    chan struct{}
	startGate       chan struct{}
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		servicesEnabled: true,
		permissions:     location.PermissionResult{Granted: true, Background: true},
		foreground:      true,
	}
}

func (m *fakeMonitor) CheckDeviceLocationEnabled(context.Context) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.servicesEnabled
}

func (m *fakeMonitor) RequestPermissions(context.Context) location.PermissionResult {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.permissions
}

func (m *fakeMonitor) ForegroundPermissionGranted(context.Context) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.foreground
}

func (m *fakeMonitor) Start(_ context.Context, userID string) error {
	m.lock.Lock()
	entered, gate := m.startEntered, m.startGate
	m.lock.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.starts = append(m.starts, userID)
	if m.startErr != nil {
		return m.startErr
	}
	m.active = true
	return nil
}

func (m *fakeMonitor) Stop(context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stops++
	m.active = false
	return nil
}

func (m *fakeMonitor) IsActive(context.Context) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.active
}

func (m *fakeMonitor) set(update func(m *fakeMonitor)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	update(m)
}

func (m *fakeMonitor) startCalls() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]string(nil), m.starts...)
}

func (m *fakeMonitor) stopCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.stops
}

type fakeNotifier struct {
	lock   sync.Mutex
	alerts []string
}

func (n *fakeNotifier) Alert(title, message string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.alerts = append(n.alerts, title+": "+message)
}

func (n *fakeNotifier) all() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.alerts...)
}

func (n *fakeNotifier) count() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.alerts)
}

type testFixture struct {
	sessions    *fakeSessions
	monitor     *fakeMonitor
	notifier    *fakeNotifier
	coordinator *coordinator.Coordinator
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{sessions: &fakeSessions{}, monitor: newFakeMonitor(), notifier: &fakeNotifier{}}
	c, err := coordinator.New(f.sessions, f.monitor, coordinator.WithNotifier(f.notifier))
	require.NoError(t, err)
	f.coordinator = c
	return f
}

func signedIn(userID string) auth.SessionChange {
	return auth.SessionChange{Event: auth.EventSignedIn, Session: &sessions.Session{User: sessions.User{ID: userID}}}
}

var signedOut = auth.SessionChange{Event: auth.EventSignedOut}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := coordinator.New(nil, newFakeMonitor())
	require.Error(t, err)
	_, err = coordinator.New(&fakeSessions{}, nil)
	require.Error(t, err)
}

func TestSignedIn_StartsMonitoring(t *testing.T) {
	f := setupTestFixture(t)
	f.coordinator.HandleSessionEvent(context.Background(), signedIn(testUser1))

	require.Equal(t, []string{testUser1}, f.monitor.startCalls())
	require.Equal(t, coordinator.UIState{LocationEnabled: true, DeviceLocationServicesEnabled: true}, f.coordinator.State())
	require.Equal(t, testUser1, f.coordinator.UserID())
}

func TestSignedIn_ServicesDisabled(t *testing.T) {
	f := setupTestFixture(t)
	f.monitor.set(func(m *fakeMonitor) { m.servicesEnabled = false })

	f.coordinator.HandleSessionEvent(context.Background(), signedIn(testUser1))

	require.Empty(t, f.monitor.startCalls())
	require.Equal(t, coordinator.UIState{ShowPermissionModal: true}, f.coordinator.State())
}

func TestSignedIn_PermissionDenied(t *testing.T) {
	f := setupTestFixture(t)
	f.monitor.set(func(m *fakeMonitor) {
		m.permissions = location.PermissionResult{Err: apperrors.ErrPermissionDenied}
	})

	f.coordinator.HandleSessionEvent(context.Background(), signedIn(testUser1))

	require.Empty(t, f.monitor.startCalls())
	state := f.coordinator.State()
	require.False(t, state.LocationEnabled)
	require.True(t, state.ShowPermissionModal)
	require.Zero(t, f.notifier.count())
}

func TestSignedIn_StartFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		alerts int
	}{
		{"generic failure alerts", errors.New("watch failed"), 1},
		{"services disabled shows modal only", apperrors.ErrLocationServicesDisabled, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.monitor.set(func(m *fakeMonitor) { m.startErr = tt.err })

			f.coordinator.HandleSessionEvent(context.Background(), signedIn(testUser1))

			state := f.coordinator.State()
			require.False(t, state.LocationEnabled)
			require.True(t, state.ShowPermissionModal)
			require.Equal(t, tt.alerts, f.notifier.count())
		})
	}
}

func TestSignedIn_StartFailureAlertText(t *testing.T) {
	f := setupTestFixture(t)
	f.monitor.set(func(m *fakeMonitor) { m.startErr = errors.New("watch failed") })

	f.coordinator.HandleSessionEvent(context.Background(), signedIn(testUser1))

	require.Equal(t, []string{
		"Attention: There was a problem starting location monitoring. Some features may be limited.",
	}, f.notifier.all())
}

func TestSignedOut_StopsAndResets(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))

	f.coordinator.HandleSessionEvent(ctx, signedOut)

	require.Equal(t, 1, f.monitor.stopCalls())
	require.False(t, f.monitor.IsActive(ctx))
	require.Equal(t, coordinator.UIState{DeviceLocationServicesEnabled: true}, f.coordinator.State())
	require.Empty(t, f.coordinator.UserID())
	require.ErrorIs(t, f.coordinator.Retry(ctx), apperrors.ErrNotAuthenticated)

	// Stop is unconditional, even when nothing runs.
	f.coordinator.HandleSessionEvent(ctx, signedOut)
	require.Equal(t, 2, f.monitor.stopCalls())
}

func TestAppResume_RestartsDeadMonitor(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppBackground)

	// The OS killed the watch while the app was in the background.
	f.monitor.set(func(m *fakeMonitor) { m.active = false })
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppActive)

	require.Equal(t, []string{testUser1, testUser1}, f.monitor.startCalls())
	require.True(t, f.coordinator.State().LocationEnabled)
}

func TestAppResume_ActiveMonitorIsLeftAlone(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))

	f.coordinator.HandleAppStateChange(ctx, coordinator.AppInactive)
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppActive)
	// active to active is not a resume
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppActive)

	require.Len(t, f.monitor.startCalls(), 1)
}

func TestAppResume_WithoutPermissionShowsModal(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppBackground)
	f.monitor.set(func(m *fakeMonitor) {
		m.active = false
		m.foreground = false
	})

	f.coordinator.HandleAppStateChange(ctx, coordinator.AppActive)

	require.Len(t, f.monitor.startCalls(), 1)
	require.True(t, f.coordinator.State().ShowPermissionModal)
	require.False(t, f.coordinator.State().LocationEnabled)
}

func TestAppResume_ServicesDisabled(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	f.coordinator.HandleAppStateChange(ctx, coordinator.AppBackground)
	f.monitor.set(func(m *fakeMonitor) { m.servicesEnabled = false })

	f.coordinator.HandleAppStateChange(ctx, coordinator.AppActive)

	require.Equal(t, coordinator.UIState{ShowPermissionModal: true}, f.coordinator.State())
}

func TestRetryAndDismiss(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.monitor.set(func(m *fakeMonitor) { m.permissions = location.PermissionResult{} })
	f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	require.True(t, f.coordinator.State().ShowPermissionModal)

	f.coordinator.DismissPermissionModal()
	require.False(t, f.coordinator.State().ShowPermissionModal)

	f.monitor.set(func(m *fakeMonitor) { m.permissions = location.PermissionResult{Granted: true} })
	require.NoError(t, f.coordinator.Retry(ctx))
	require.Equal(t, []string{testUser1}, f.monitor.startCalls())
	require.True(t, f.coordinator.State().LocationEnabled)
}

func TestConcurrentTriggersCollapse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	entered := make(chan struct{}, 2)
	gate := make(chan struct{})
	f.monitor.set(func(m *fakeMonitor) {
		m.startEntered = entered
		m.startGate = gate
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.coordinator.HandleSessionEvent(ctx, signedIn(testUser1))
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, []string{testUser1}, f.monitor.startCalls())
}

func TestRun_FollowsSessionChanges(t *testing.T) {
	f := setupTestFixture(t)
	f.sessions.session = &sessions.Session{User: sessions.User{ID: testUser1}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.coordinator.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.sessions.subscribed() && len(f.monitor.startCalls()) == 1
	}, time.Second, 5*time.Millisecond)

	f.sessions.emit(auth.EventSignedOut, nil)
	require.Eventually(t, func() bool { return f.monitor.stopCalls() == 1 }, time.Second, 5*time.Millisecond)

	f.sessions.emit(auth.EventSignedIn, &sessions.Session{User: sessions.User{ID: testUser2}})
	require.Eventually(t, func() bool {
		starts := f.monitor.startCalls()
		return len(starts) == 2 && starts[1] == testUser2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	require.Equal(t, 2, f.monitor.stopCalls())
}

func TestRun_SignedOutAtStartStopsMonitor(t *testing.T) {
	f := setupTestFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coordinator.Run(ctx) }()

	require.Eventually(t, func() bool { return f.monitor.stopCalls() == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, f.monitor.startCalls())
	cancel()
	<-done
}

func TestWithLocationMonitor(t *testing.T) {
	provider := fakeprovider.NewFakeProvider()
	monitor, err := location.NewMonitor(provider, location.NewSink(fakelocationstore.NewFakeStore()), location.Options{TaskName: "coordinator-test-task"})
	require.NoError(t, err)
	c, err := coordinator.New(&fakeSessions{}, monitor)
	require.NoError(t, err)
	ctx := context.Background()
	t.Cleanup(func() { _ = monitor.Stop(ctx) })

	c.HandleSessionEvent(ctx, signedIn(testUser1))
	require.Equal(t, location.StateActive, monitor.State())
	require.Equal(t, testUser1, monitor.Owner())

	c.HandleSessionEvent(ctx, signedIn(testUser2))
	require.Equal(t, testUser2, monitor.Owner())
	require.Len(t, provider.Watches(), 2)
	require.True(t, provider.Watches()[0].Removed())

	c.HandleSessionEvent(ctx, signedOut)
	require.Equal(t, location.StateStopped, monitor.State())
	require.Empty(t, monitor.Owner())
}
