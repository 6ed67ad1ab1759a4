package location

import (
	"context"
	"time"

	"github.com/jrsteele09/go-punch-clock/internal/config"
)

// Accuracy is the effort the provider spends on a fix.
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHigh
)

// PermissionStatus mirrors the OS permission states.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

func (p PermissionStatus) Granted() bool {
	return p == PermissionGranted
}

// PlatformIOS is the platform that requests background permission separately.
const PlatformIOS = "ios"

// Fix is a single position reported by the provider.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Timestamp time.Time
}

// WatchOptions configures continuous updates.
type WatchOptions struct {
	Accuracy Accuracy
	Interval time.Duration // minimum time between updates
	Distance float64       // minimum displacement in meters between updates
}

// BackgroundOptions configures the OS background task. The notification is
// mandatory while the task runs.
type BackgroundOptions struct {
	WatchOptions
	ShowsBackgroundIndicator bool
	Notification             config.Notification
}

// Subscription is a live foreground watch.
type Subscription interface {
	Remove()
}

// Provider is the device location API.
type Provider interface {
	// ServicesEnabled reports the device level GPS switch, independent of
	// app permissions.
	ServicesEnabled(ctx context.Context) (bool, error)

	RequestForegroundPermission(ctx context.Context) (PermissionStatus, error)
	RequestBackgroundPermission(ctx context.Context) (PermissionStatus, error)
	ForegroundPermission(ctx context.Context) (PermissionStatus, error)
	BackgroundPermission(ctx context.Context) (PermissionStatus, error)

	CurrentPosition(ctx context.Context, accuracy Accuracy) (Fix, error)

	// Watch delivers single-fix foreground batches into inbox until the
	// subscription is removed.
	Watch(ctx context.Context, opts WatchOptions, inbox *Inbox) (Subscription, error)

	// StartBackgroundUpdates registers an OS task named task that delivers
	// background batches into inbox, even while the app is not foregrounded.
	StartBackgroundUpdates(ctx context.Context, task string, opts BackgroundOptions, inbox *Inbox) error
	StopBackgroundUpdates(ctx context.Context, task string) error
	IsTaskRegistered(ctx context.Context, task string) (bool, error)
}

// Sample is one persisted position of a user.
type Sample struct {
	UserID    string    `json:"user_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"precisao"`
	Timestamp time.Time `json:"timestamp"`
}

// SampleFromFix builds the sample of userID for fix.
func SampleFromFix(userID string, fix Fix) Sample {
	ts := fix.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Sample{
		UserID:    userID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Timestamp: ts,
	}
}
