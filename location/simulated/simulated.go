package simulated

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/rs/zerolog/log"
)

var _ location.Provider = (*Provider)(nil)

const earthRadiusMeters = 6371000.0

// Provider is a location.Provider that random-walks around a fixed origin.
// Watches and background tasks tick on their own goroutines and deliver
// fixes through the inbox they were started with.
type Provider struct {
	lock sync.Mutex

	servicesEnabled  bool
	foreground       location.PermissionStatus
	background       location.PermissionStatus
	foregroundAnswer location.PermissionStatus
	backgroundAnswer location.PermissionStatus

	position   location.Fix
	step       float64
	batchEvery int
	rnd        *rand.Rand
	now        func() time.Time

	tasks map[string]context.CancelFunc
}

type Option func(*Provider)

// WithStep sets how many meters the position drifts per tick.
func WithStep(meters float64) Option {
	return func(p *Provider) {
		p.step = meters
	}
}

// WithPermissionAnswers sets what the permission prompts resolve to.
func WithPermissionAnswers(foreground, background location.PermissionStatus) Option {
	return func(p *Provider) {
		p.foregroundAnswer = foreground
		p.backgroundAnswer = background
	}
}

func WithServicesEnabled(enabled bool) Option {
	return func(p *Provider) {
		p.servicesEnabled = enabled
	}
}

// WithBatchEvery sets how many ticks a background task buffers before delivery.
func WithBatchEvery(ticks int) Option {
	return func(p *Provider) {
		p.batchEvery = ticks
	}
}

func WithSeed(seed int64) Option {
	return func(p *Provider) {
		p.rnd = rand.New(rand.NewSource(seed))
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func New(latitude, longitude float64, opts ...Option) *Provider {
	accuracy := 5.0
	p := &Provider{
		servicesEnabled:  true,
		foreground:       location.PermissionUndetermined,
		background:       location.PermissionUndetermined,
		foregroundAnswer: location.PermissionGranted,
		backgroundAnswer: location.PermissionGranted,
		position:         location.Fix{Latitude: latitude, Longitude: longitude, Accuracy: &accuracy},
		step:             15,
		batchEvery:       3,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		now:              time.Now,
		tasks:            make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batchEvery < 1 {
		p.batchEvery = 1
	}
	return p
}

func (p *Provider) ServicesEnabled(context.Context) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.servicesEnabled, nil
}

func (p *Provider) RequestForegroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.foreground == location.PermissionUndetermined {
		p.foreground = p.foregroundAnswer
	}
	return p.foreground, nil
}

func (p *Provider) RequestBackgroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.background == location.PermissionUndetermined {
		p.background = p.backgroundAnswer
	}
	return p.background, nil
}

func (p *Provider) ForegroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.foreground, nil
}

// BackgroundPermission on platforms without a separate prompt follows the
// foreground grant once it has been given.
func (p *Provider) BackgroundPermission(context.Context) (location.PermissionStatus, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.background == location.PermissionUndetermined && p.foreground.Granted() {
		return p.backgroundAnswer, nil
	}
	return p.background, nil
}

func (p *Provider) CurrentPosition(ctx context.Context, _ location.Accuracy) (location.Fix, error) {
	if err := ctx.Err(); err != nil {
		return location.Fix{}, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	fix := p.position
	fix.Timestamp = p.now()
	return fix, nil
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Remove() {
	s.once.Do(s.cancel)
}

// Watch emits a foreground batch each interval in which the position moved
// at least opts.Distance meters from the last emitted fix.
func (p *Provider) Watch(_ context.Context, opts location.WatchOptions, inbox *location.Inbox) (location.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		var last *location.Fix
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix := p.advance()
				if last != nil && Distance(*last, fix) < opts.Distance {
					continue
				}
				last = &fix
				inbox.Offer(location.Batch{Source: location.SourceForeground, Fixes: []location.Fix{fix}})
			}
		}
	}()
	return &subscription{cancel: cancel}, nil
}

// StartBackgroundUpdates registers task. Fixes are buffered and delivered in
// batches, the way an OS defers background updates.
func (p *Provider) StartBackgroundUpdates(_ context.Context, task string, opts location.BackgroundOptions, inbox *location.Inbox) error {
	ctx, cancel := context.WithCancel(context.Background())

	p.lock.Lock()
	if prev, ok := p.tasks[task]; ok {
		prev()
	}
	p.tasks[task] = cancel
	batchEvery := p.batchEvery
	p.lock.Unlock()

	log.Info().Str("task", task).Str("notification", opts.Notification.Title).Msg("Simulated background task registered")

	go func() {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		var buffered []location.Fix
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				buffered = append(buffered, p.advance())
				if len(buffered) < batchEvery {
					continue
				}
				inbox.Offer(location.Batch{Source: location.SourceBackground, Fixes: buffered})
				buffered = nil
			}
		}
	}()
	return nil
}

func (p *Provider) StopBackgroundUpdates(_ context.Context, task string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if cancel, ok := p.tasks[task]; ok {
		cancel()
		delete(p.tasks, task)
	}
	return nil
}

func (p *Provider) IsTaskRegistered(_ context.Context, task string) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	_, ok := p.tasks[task]
	return ok, nil
}

// advance moves the position step meters in a random bearing.
func (p *Provider) advance() location.Fix {
	p.lock.Lock()
	defer p.lock.Unlock()

	bearing := p.rnd.Float64() * 2 * math.Pi
	p.position = offset(p.position, p.step, bearing)
	fix := p.position
	fix.Timestamp = p.now()
	return fix
}

func offset(from location.Fix, meters, bearing float64) location.Fix {
	lat := from.Latitude * math.Pi / 180
	dLat := meters * math.Cos(bearing) / earthRadiusMeters
	dLon := meters * math.Sin(bearing) / (earthRadiusMeters * math.Cos(lat))
	from.Latitude += dLat * 180 / math.Pi
	from.Longitude += dLon * 180 / math.Pi
	return from
}

// Distance returns the great-circle distance between two fixes in meters.
func Distance(a, b location.Fix) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
