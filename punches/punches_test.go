package punches_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/internal/utils"
	"github.com/jrsteele09/go-punch-clock/punches"
	fakepunchrepo "github.com/jrsteele09/go-punch-clock/punches/repofake"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

var brt = time.FixedZone("BRT", -3*60*60)

type fakeResolver struct {
	session *sessions.Session
	err     error
}

func (f *fakeResolver) GetSession(context.Context) (*sessions.Session, error) {
	return f.session, f.err
}

type fakeLocator struct {
	coords *punches.Coordinates
	err    error
	calls  int
}

func (f *fakeLocator) CurrentCoordinates(context.Context) (*punches.Coordinates, error) {
	f.calls++
	return f.coords, f.err
}

type testFixture struct {
	repo     *fakepunchrepo.FakePunchRepo
	resolver *fakeResolver
	locator  *fakeLocator
	recorder *punches.Recorder
	now      time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		repo:     fakepunchrepo.NewFakePunchRepo(),
		resolver: &fakeResolver{session: &sessions.Session{User: sessions.User{ID: testUserID}}},
		locator:  &fakeLocator{coords: &punches.Coordinates{Latitude: -23.55, Longitude: -46.63, Accuracy: utils.Ptr(5.0)}},
		now:      time.Date(2026, 10, 15, 9, 0, 0, 0, brt),
	}

	recorder, err := punches.NewRecorder(f.repo, f.resolver, f.locator,
		punches.WithNowTime(func() time.Time { return f.now }),
		punches.WithTimezone(brt),
	)
	require.NoError(t, err)
	f.recorder = recorder
	return f
}

func record(kind punches.Kind, at time.Time) punches.Record {
	return punches.Record{UserID: testUserID, Kind: kind, Timestamp: at}
}

func TestNextExpected_FixedOrder(t *testing.T) {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, brt)

	kind, ok := punches.NextExpected(nil)
	require.True(t, ok)
	require.Equal(t, punches.KindClockIn, kind)

	// Fetched out of order
	records := []punches.Record{
		record(punches.KindLunchStart, day.Add(12*time.Hour)),
		record(punches.KindClockIn, day.Add(8*time.Hour)),
	}
	kind, ok = punches.NextExpected(records)
	require.True(t, ok)
	require.Equal(t, punches.KindLunchEnd, kind)

	records = append(records, record(punches.KindClockOut, day.Add(18*time.Hour)))
	kind, ok = punches.NextExpected(records)
	require.True(t, ok)
	require.Equal(t, punches.KindLunchEnd, kind)

	records = append([]punches.Record{record(punches.KindLunchEnd, day.Add(13*time.Hour))}, records...)
	_, ok = punches.NextExpected(records)
	require.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := punches.ParseKind("entrada")
	require.NoError(t, err)
	require.Equal(t, punches.KindClockIn, k)

	k, err = punches.ParseKind("fim do almoço")
	require.NoError(t, err)
	require.Equal(t, punches.KindLunchEnd, k)

	_, err = punches.ParseKind("lunch")
	require.ErrorIs(t, err, apperrors.ErrInvalidKind)
}

func TestDayBounds(t *testing.T) {
	start, end := punches.DayBounds(time.Date(2026, 10, 15, 23, 30, 0, 0, brt), brt)
	require.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, brt), start)
	require.Equal(t, time.Date(2026, 10, 15, 23, 59, 59, 999000000, brt), end)
}

func TestRecordPunch_Success(t *testing.T) {
	f := setupTestFixture(t)

	rec, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, "", nil)
	require.NoError(t, err)
	require.Equal(t, testUserID, rec.UserID)
	require.Equal(t, punches.KindClockIn, rec.Kind)
	require.Equal(t, f.now, rec.Timestamp)
	require.Equal(t, -23.55, rec.Latitude)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, 1, f.locator.calls)

	kind, ok, err := f.recorder.NextExpectedPunch(context.Background(), testUserID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, punches.KindLunchStart, kind)
}

func TestRecordPunch_ProvidedCoordinatesSkipFetch(t *testing.T) {
	f := setupTestFixture(t)

	rec, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, &punches.Coordinates{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	require.Equal(t, 1.0, rec.Latitude)
	require.Zero(t, f.locator.calls)
}

func TestRecordPunch_AlreadyRecorded(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.recorder.RecordPunch(ctx, punches.KindClockIn, testUserID, nil)
	require.NoError(t, err)

	// Second call for the same kind, without any local state in between
	_, err = f.recorder.RecordPunch(ctx, punches.KindClockIn, testUserID, nil)
	require.ErrorIs(t, err, apperrors.ErrAlreadyRecorded)
	require.Equal(t, 1, f.repo.Count())
}

func TestRecordPunch_AlreadyRecordedBySeededSession(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Seed(record(punches.KindClockIn, f.now.Add(-time.Hour)))

	_, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, nil)
	require.ErrorIs(t, err, apperrors.ErrAlreadyRecorded)
	require.Zero(t, f.locator.calls, "duplicate is rejected before fetching a location")
}

func TestRecordPunch_YesterdayDoesNotCount(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.Seed(record(punches.KindClockIn, f.now.Add(-24*time.Hour)))

	_, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, nil)
	require.NoError(t, err)
}

func TestRecordPunch_LocationUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	f.locator.coords = nil
	f.locator.err = errors.New("timeout")

	_, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, nil)
	require.ErrorIs(t, err, apperrors.ErrLocationUnavailable)
	require.Equal(t, 1, f.locator.calls)
	require.Zero(t, f.repo.Count())
}

func TestRecordPunch_NotAuthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.resolver.session = nil

	_, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, nil)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestRecordPunch_InsertFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.repo.SetInsertError(apperrors.ErrNetwork)

	_, err := f.recorder.RecordPunch(context.Background(), punches.KindClockIn, testUserID, nil)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestNewRecorder_MissingDependencies(t *testing.T) {
	_, err := punches.NewRecorder(nil, &fakeResolver{}, &fakeLocator{})
	require.Error(t, err)
	_, err = punches.NewRecorder(fakepunchrepo.NewFakePunchRepo(), nil, &fakeLocator{})
	require.Error(t, err)
	_, err = punches.NewRecorder(fakepunchrepo.NewFakePunchRepo(), &fakeResolver{}, nil)
	require.Error(t, err)
}
