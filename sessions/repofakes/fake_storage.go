package fakesessionstorage

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-punch-clock/sessions"
)

var _ sessions.Storage = (*FakeStorage)(nil)

type FakeStorage struct {
	session *sessions.Session
	saves   int
	lock    sync.RWMutex
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{}
}

func (fs *FakeStorage) Load(_ context.Context) (*sessions.Session, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if fs.session == nil {
		return nil, nil
	}
	copied := *fs.session
	return &copied, nil
}

func (fs *FakeStorage) Save(_ context.Context, session *sessions.Session) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	copied := *session
	fs.session = &copied
	fs.saves++
	return nil
}

func (fs *FakeStorage) Clear(_ context.Context) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.session = nil
	return nil
}

// Saves returns how many times Save was called.
func (fs *FakeStorage) Saves() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.saves
}
