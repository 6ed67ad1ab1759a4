package punches

import (
	"context"
	"time"
)

// Query selects punch records. Zero From/To leave that side unbounded.
type Query struct {
	UserID string
	From   time.Time
	To     time.Time
}

// Repo is the remote punch table. List returns records newest first.
type Repo interface {
	Insert(ctx context.Context, record *Record) (*Record, error)
	List(ctx context.Context, query Query) ([]Record, error)
}
