package simulated_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/location/simulated"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, inbox *location.Inbox) location.Batch {
	t.Helper()
	select {
	case b := <-inbox.C():
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return location.Batch{}
	}
}

func TestDistance(t *testing.T) {
	a := location.Fix{Latitude: 0, Longitude: 0}
	b := location.Fix{Latitude: 1, Longitude: 0}
	require.InDelta(t, 111195, simulated.Distance(a, b), 10)
	require.Zero(t, simulated.Distance(a, a))
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	p := simulated.New(-23.5505, -46.6333, simulated.WithPermissionAnswers(location.PermissionGranted, location.PermissionDenied))

	status, err := p.ForegroundPermission(ctx)
	require.NoError(t, err)
	require.Equal(t, location.PermissionUndetermined, status)

	status, err = p.RequestForegroundPermission(ctx)
	require.NoError(t, err)
	require.True(t, status.Granted())

	status, err = p.BackgroundPermission(ctx)
	require.NoError(t, err)
	require.Equal(t, location.PermissionDenied, status)
}

func TestWatch_EmitsUntilRemoved(t *testing.T) {
	p := simulated.New(-23.5505, -46.6333, simulated.WithSeed(1), simulated.WithStep(20))
	inbox := location.NewInbox(16)

	sub, err := p.Watch(context.Background(), location.WatchOptions{Interval: 5 * time.Millisecond, Distance: 10}, inbox)
	require.NoError(t, err)

	first := receive(t, inbox)
	require.Equal(t, location.SourceForeground, first.Source)
	require.Len(t, first.Fixes, 1)
	second := receive(t, inbox)
	require.GreaterOrEqual(t, simulated.Distance(first.Fixes[0], second.Fixes[0]), 10.0)

	sub.Remove()
	sub.Remove()
	time.Sleep(20 * time.Millisecond)
	for inbox.Len() > 0 {
		<-inbox.C()
	}
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, inbox.Len())
}

func TestBackgroundUpdates_DeliverBatches(t *testing.T) {
	ctx := context.Background()
	p := simulated.New(-23.5505, -46.6333, simulated.WithBatchEvery(3))
	inbox := location.NewInbox(16)

	opts := location.BackgroundOptions{WatchOptions: location.WatchOptions{Interval: 5 * time.Millisecond}}
	require.NoError(t, p.StartBackgroundUpdates(ctx, "task", opts, inbox))

	registered, err := p.IsTaskRegistered(ctx, "task")
	require.NoError(t, err)
	require.True(t, registered)

	batch := receive(t, inbox)
	require.Equal(t, location.SourceBackground, batch.Source)
	require.Len(t, batch.Fixes, 3)

	require.NoError(t, p.StopBackgroundUpdates(ctx, "task"))
	registered, err = p.IsTaskRegistered(ctx, "task")
	require.NoError(t, err)
	require.False(t, registered)
}
