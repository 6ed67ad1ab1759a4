package location

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-punch-clock/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Store is the remote side of location persistence.
type Store interface {
	// RegisterLocation calls the registrar_localizacao procedure.
	RegisterLocation(ctx context.Context, sample Sample) error
	// InsertLocation writes directly into the registros_localizacao table.
	InsertLocation(ctx context.Context, sample Sample) error
}

// Sink persists samples: procedure first, table insert when the procedure
// fails. A sample that fails both ways is dropped; there is no retry queue.
type Sink struct {
	store Store
}

func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

// Persist writes sample and returns the error of the last attempt when both fail.
func (s *Sink) Persist(ctx context.Context, sample Sample) error {
	rpcErr := s.store.RegisterLocation(ctx, sample)
	if rpcErr == nil {
		metrics.SamplesPersisted.WithLabelValues("rpc").Inc()
		return nil
	}
	log.Warn().Err(rpcErr).Str("user_id", sample.UserID).Msg("registrar_localizacao failed, falling back to table insert")

	insertErr := s.store.InsertLocation(ctx, sample)
	if insertErr == nil {
		metrics.SamplesPersisted.WithLabelValues("table").Inc()
		return nil
	}

	metrics.SamplesDropped.Inc()
	log.Error().Err(insertErr).Str("user_id", sample.UserID).
		Float64("latitude", sample.Latitude).Float64("longitude", sample.Longitude).
		Msg("Dropping location sample")
	return errors.Join(rpcErr, insertErr)
}
