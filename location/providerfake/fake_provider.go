package fakeprovider

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-punch-clock/location"
)

var _ location.Provider = (*FakeProvider)(nil)

// FakeProvider is a scriptable location.Provider. Fixes are pushed into the
// active watch or background task with Emit and EmitBackground.
type FakeProvider struct {
	lock sync.Mutex

	servicesEnabled bool
	foreground      location.PermissionStatus
	background      location.PermissionStatus
	// what the request prompts resolve to
	foregroundAnswer location.PermissionStatus
	backgroundAnswer location.PermissionStatus

	current    location.Fix
	currentErr error
	watchErr   error
	taskErr    error

	watches       []*FakeSubscription
	tasks         map[string]*location.Inbox
	taskOptions   map[string]location.BackgroundOptions
	watchOptions  []location.WatchOptions
	backgroundReq int
}

// NewFakeProvider returns a provider with services enabled and every
// permission granted.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		servicesEnabled:  true,
		foreground:       location.PermissionGranted,
		background:       location.PermissionGranted,
		foregroundAnswer: location.PermissionGranted,
		backgroundAnswer: location.PermissionGranted,
		current:          location.Fix{Latitude: -23.5505, Longitude: -46.6333},
		tasks:            make(map[string]*location.Inbox),
		taskOptions:      make(map[string]location.BackgroundOptions),
	}
}

// FakeSubscription records whether the watch was removed.
type FakeSubscription struct {
	inbox   *location.Inbox
	lock    sync.Mutex
	removed bool
}

func (s *FakeSubscription) Remove() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removed = true
}

func (s *FakeSubscription) Removed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.removed
}

func (p *FakeProvider) ServicesEnabled(context.Context) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.servicesEnabled, nil
}

func (p *FakeProvider) RequestForegroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.foreground = p.foregroundAnswer
	return p.foreground, nil
}

func (p *FakeProvider) RequestBackgroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.backgroundReq++
	p.background = p.backgroundAnswer
	return p.background, nil
}

func (p *FakeProvider) ForegroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.foreground, nil
}

func (p *FakeProvider) BackgroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.background, nil
}

func (p *FakeProvider) CurrentPosition(context.Context, location.Accuracy) (location.Fix, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.current, p.currentErr
}

func (p *FakeProvider) Watch(_ context.Context, opts location.WatchOptions, inbox *location.Inbox) (location.Subscription, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	sub := &FakeSubscription{inbox: inbox}
	p.watches = append(p.watches, sub)
	p.watchOptions = append(p.watchOptions, opts)
	return sub, nil
}

func (p *FakeProvider) StartBackgroundUpdates(_ context.Context, task string, opts location.BackgroundOptions, inbox *location.Inbox) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.taskErr != nil {
		return p.taskErr
	}
	p.tasks[task] = inbox
	p.taskOptions[task] = opts
	return nil
}

func (p *FakeProvider) StopBackgroundUpdates(_ context.Context, task string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := p.tasks[task]; !ok {
		return errors.New("task not registered")
	}
	delete(p.tasks, task)
	return nil
}

func (p *FakeProvider) IsTaskRegistered(_ context.Context, task string) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, ok := p.tasks[task]
	return ok, nil
}

// Emit delivers fix to the most recent watch that has not been removed.
// Returns false when no live watch exists.
func (p *FakeProvider) Emit(fix location.Fix) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i := len(p.watches) - 1; i >= 0; i-- {
		if !p.watches[i].Removed() {
			return p.watches[i].inbox.Offer(location.Batch{Source: location.SourceForeground, Fixes: []location.Fix{fix}})
		}
	}
	return false
}

// EmitBackground delivers a batch through the registered task.
func (p *FakeProvider) EmitBackground(task string, fixes ...location.Fix) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	inbox, ok := p.tasks[task]
	if !ok {
		return false
	}
	return inbox.Offer(location.Batch{Source: location.SourceBackground, Fixes: fixes})
}

// KillWatches simulates the OS dropping every live watch and task.
func (p *FakeProvider) KillWatches() {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, w := range p.watches {
		w.Remove()
	}
	p.tasks = make(map[string]*location.Inbox)
}

func (p *FakeProvider) Watches() []*FakeSubscription {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]*FakeSubscription(nil), p.watches...)
}

func (p *FakeProvider) WatchOptions() []location.WatchOptions {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]location.WatchOptions(nil), p.watchOptions...)
}

func (p *FakeProvider) TaskOptions(task string) (location.BackgroundOptions, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	opts, ok := p.taskOptions[task]
	return opts, ok
}

func (p *FakeProvider) BackgroundRequests() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.backgroundReq
}

func (p *FakeProvider) SetServicesEnabled(enabled bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.servicesEnabled = enabled
}

// SetPermissions sets the current grants and what future prompts answer.
func (p *FakeProvider) SetPermissions(foreground, background location.PermissionStatus) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.foreground, p.foregroundAnswer = foreground, foreground
	p.background, p.backgroundAnswer = background, background
}

func (p *FakeProvider) SetCurrent(fix location.Fix, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current, p.currentErr = fix, err
}

func (p *FakeProvider) SetWatchError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.watchErr = err
}

func (p *FakeProvider) SetTaskError(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.taskErr = err
}
