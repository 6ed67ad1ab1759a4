package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var _ Storage = (*FileStorage)(nil)

// FileStorage keeps the session as a JSON document inside the data folder.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage stores the session in <folder>/session.json.
func NewFileStorage(folder string) *FileStorage {
	return &FileStorage{path: filepath.Join(folder, "session.json")}
}

func (fst *FileStorage) Load(_ context.Context) (*Session, error) {
	fst.mu.Lock()
	defer fst.mu.Unlock()

	data, err := os.ReadFile(fst.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[FileStorage.Load] read %s: %w", fst.path, err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("[FileStorage.Load] decode session: %w", err)
	}
	return &session, nil
}

func (fst *FileStorage) Save(_ context.Context, session *Session) error {
	if session == nil {
		return errors.New("[FileStorage.Save] session is required")
	}

	fst.mu.Lock()
	defer fst.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[FileStorage.Save] encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fst.path), 0o700); err != nil {
		return fmt.Errorf("[FileStorage.Save] create folder: %w", err)
	}

	// Write to a sibling file and rename so a crash never leaves half a session.
	tmp := fst.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("[FileStorage.Save] write: %w", err)
	}
	if err := os.Rename(tmp, fst.path); err != nil {
		return fmt.Errorf("[FileStorage.Save] rename: %w", err)
	}
	return nil
}

func (fst *FileStorage) Clear(_ context.Context) error {
	fst.mu.Lock()
	defer fst.mu.Unlock()

	if err := os.Remove(fst.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[FileStorage.Clear] remove: %w", err)
	}
	return nil
}
