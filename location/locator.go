package location

import (
	"context"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/pkg/errors"
)

var _ punches.Locator = (*Locator)(nil)

// Locator resolves the current coordinates for a punch with one high
// accuracy fetch. It asks for foreground permission if needed.
type Locator struct {
	provider Provider
}

func NewLocator(provider Provider) *Locator {
	return &Locator{provider: provider}
}

func (l *Locator) CurrentCoordinates(ctx context.Context) (*punches.Coordinates, error) {
	status, err := l.provider.RequestForegroundPermission(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Locator.CurrentCoordinates] permission")
	}
	if !status.Granted() {
		return nil, apperrors.ErrPermissionDenied
	}

	fix, err := l.provider.CurrentPosition(ctx, AccuracyHigh)
	if err != nil {
		return nil, errors.Wrap(err, "[Locator.CurrentCoordinates] current position")
	}
	return &punches.Coordinates{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
	}, nil
}
