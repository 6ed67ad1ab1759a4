package sessions

import "context"

// StorageKey is the key the serialized session is stored under.
const StorageKey = "punchclock.auth.session"

// Storage persists the current session across process restarts.
// Load returns (nil, nil) when nothing is stored.
type Storage interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}
