package punches

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/internal/metrics"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionResolver resolves the signed-in session, nil when signed out.
type SessionResolver interface {
	GetSession(ctx context.Context) (*sessions.Session, error)
}

// Locator performs a fresh high accuracy position fetch.
type Locator interface {
	CurrentCoordinates(ctx context.Context) (*Coordinates, error)
}

// Recorder writes punches for the signed-in user.
type Recorder struct {
	repo     Repo
	sessions SessionResolver
	locator  Locator
	loc      *time.Location
	nowTime  func() time.Time
}

// RecorderOption modifies a Recorder.
type RecorderOption func(*Recorder)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.nowTime = nowFunc
	}
}

// WithTimezone sets the zone that decides calendar days.
func WithTimezone(loc *time.Location) RecorderOption {
	return func(r *Recorder) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func NewRecorder(repo Repo, sessionResolver SessionResolver, locator Locator, options ...RecorderOption) (*Recorder, error) {
	if repo == nil {
		return nil, errors.New("[NewRecorder] repo is required")
	}
	if sessionResolver == nil {
		return nil, errors.New("[NewRecorder] session resolver is required")
	}
	if locator == nil {
		return nil, errors.New("[NewRecorder] locator is required")
	}

	r := &Recorder{
		repo:     repo,
		sessions: sessionResolver,
		locator:  locator,
		loc:      time.Local,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// TodaysRecords returns the user's punches for the current calendar day.
func (r *Recorder) TodaysRecords(ctx context.Context, userID string) ([]Record, error) {
	from, to := DayBounds(r.nowTime(), r.loc)
	records, err := r.repo.List(ctx, Query{UserID: userID, From: from, To: to})
	if err != nil {
		return nil, errors.Wrap(err, "[Recorder.TodaysRecords] list")
	}
	return records, nil
}

// NextExpectedPunch returns the next kind the user should punch today.
func (r *Recorder) NextExpectedPunch(ctx context.Context, userID string) (Kind, bool, error) {
	records, err := r.TodaysRecords(ctx, userID)
	if err != nil {
		return "", false, err
	}
	kind, ok := NextExpected(records)
	return kind, ok, nil
}

// RecordPunch writes a punch of kind for userID at the current time.
// An empty userID means the signed-in user. coords may be nil, in which case
// one fresh location fetch is attempted.
//
// The already-recorded check runs against the backend twice, the second time
// right before the insert. Two devices can still both pass it; nothing on the
// server rejects the duplicate.
func (r *Recorder) RecordPunch(ctx context.Context, kind Kind, userID string, coords *Coordinates) (*Record, error) {
	if !kind.Valid() {
		return nil, errors.Wrapf(apperrors.ErrInvalidKind, "[Recorder.RecordPunch] %q", kind)
	}

	session, err := r.sessions.GetSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Recorder.RecordPunch] get session")
	}
	if session == nil {
		metrics.PunchesRejected.WithLabelValues("not_authenticated").Inc()
		return nil, apperrors.ErrNotAuthenticated
	}
	if userID == "" {
		userID = session.UserID()
	}

	if err := r.ensureNotRecorded(ctx, kind, userID); err != nil {
		return nil, err
	}

	if coords == nil {
		coords, err = r.locator.CurrentCoordinates(ctx)
		if err != nil || coords == nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Punch: could not resolve location")
			metrics.PunchesRejected.WithLabelValues("location_unavailable").Inc()
			return nil, apperrors.Wrapf(apperrors.ErrLocationUnavailable, "[Recorder.RecordPunch] %v", err)
		}
	}

	if err := r.ensureNotRecorded(ctx, kind, userID); err != nil {
		return nil, err
	}

	record, err := r.repo.Insert(ctx, &Record{
		UserID:    userID,
		Kind:      kind,
		Timestamp: r.nowTime(),
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
		Accuracy:  coords.Accuracy,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Recorder.RecordPunch] insert")
	}

	metrics.PunchesRecorded.WithLabelValues(string(kind)).Inc()
	log.Info().Str("user_id", userID).Str("kind", string(kind)).Time("at", record.Timestamp).Msg("Punch recorded")
	return record, nil
}

func (r *Recorder) ensureNotRecorded(ctx context.Context, kind Kind, userID string) error {
	records, err := r.TodaysRecords(ctx, userID)
	if err != nil {
		return err
	}
	if HasKind(records, kind) {
		metrics.PunchesRejected.WithLabelValues("already_recorded").Inc()
		return errors.Wrapf(apperrors.ErrAlreadyRecorded, "[Recorder.RecordPunch] %s", kind.Label())
	}
	return nil
}
