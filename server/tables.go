package server

import (
	"sort"
	"sync"

	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/punches"
)

// Table names served under /rest/v1.
const (
	TablePunches   = "registros_ponto"
	TableLocations = "registros_localizacao"

	FunctionRegisterLocation = "registrar_localizacao"
)

// Tables holds the rows of the emulated tables. Like the hosted schema there
// is no unique constraint on (user_id, tipo, day): duplicates are stored.
type Tables struct {
	lock      sync.RWMutex
	punches   []punches.Record
	locations []location.Sample
}

func NewTables() *Tables {
	return &Tables{}
}

func (t *Tables) InsertPunches(records ...punches.Record) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.punches = append(t.punches, records...)
}

func (t *Tables) InsertLocations(samples ...location.Sample) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.locations = append(t.locations, samples...)
}

// SelectPunches returns the rows matching every filter, sorted by sortBy
// when set, else in insertion order.
func (t *Tables) SelectPunches(filters []filter, sortBy *ordering, limit int) []punches.Record {
	t.lock.RLock()
	defer t.lock.RUnlock()

	out := make([]punches.Record, 0)
	for _, r := range t.punches {
		if matchAll(filters, punchColumn(r)) {
			out = append(out, r)
		}
	}
	if sortBy != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return sortBy.less(punchColumn(out[i]), punchColumn(out[j]))
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Punches returns every punch row.
func (t *Tables) Punches() []punches.Record {
	return t.SelectPunches(nil, nil, 0)
}

func (t *Tables) SelectLocations(filters []filter, sortBy *ordering, limit int) []location.Sample {
	t.lock.RLock()
	defer t.lock.RUnlock()

	out := make([]location.Sample, 0)
	for _, s := range t.locations {
		if matchAll(filters, locationColumn(s)) {
			out = append(out, s)
		}
	}
	if sortBy != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return sortBy.less(locationColumn(out[i]), locationColumn(out[j]))
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Locations returns every location row.
func (t *Tables) Locations() []location.Sample {
	return t.SelectLocations(nil, nil, 0)
}
