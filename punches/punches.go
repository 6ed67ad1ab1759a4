package punches

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
)

// Kind is the type of a punch. Values are the backend's wire values.
type Kind string

const (
	KindClockIn    Kind = "entrada"
	KindLunchStart Kind = "inicio_almoco"
	KindLunchEnd   Kind = "fim_almoco"
	KindClockOut   Kind = "saida"
)

// Kinds lists the punch kinds in the order they are expected during a day.
var Kinds = []Kind{KindClockIn, KindLunchStart, KindLunchEnd, KindClockOut}

var kindLabels = map[Kind]string{
	KindClockIn:    "Entrada",
	KindLunchStart: "Início do Almoço",
	KindLunchEnd:   "Fim do Almoço",
	KindClockOut:   "Saída",
}

// Label returns the display name of the kind.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// ParseKind accepts either the wire value or the display label, case insensitive.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) || strings.EqualFold(s, k.Label()) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidKind, s)
}

// Coordinates is a resolved GPS position.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// Record is one row of the punch table. Records are immutable once written.
type Record struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"tipo"`
	Timestamp time.Time `json:"data_hora"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"precisao,omitempty"`
	Note      *string   `json:"observacao,omitempty"`
}

// NextExpected returns the first kind, in daily order, missing from records.
// The order of records does not matter. ok is false once the day is complete.
func NextExpected(records []Record) (kind Kind, ok bool) {
	seen := make(map[Kind]bool, len(Kinds))
	for _, r := range records {
		seen[r.Kind] = true
	}
	for _, k := range Kinds {
		if !seen[k] {
			return k, true
		}
	}
	return "", false
}

// HasKind reports whether records already contain kind.
func HasKind(records []Record, kind Kind) bool {
	for _, r := range records {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// DayBounds returns the first and last millisecond of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}
