package fakelocationstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-punch-clock/location"
)

var _ location.Store = (*FakeStore)(nil)

// FakeStore records samples per write path and can fail either path.
type FakeStore struct {
	lock      sync.Mutex
	rpc       []location.Sample
	table     []location.Sample
	rpcErr    error
	insertErr error
	notify    chan location.Sample
}

func NewFakeStore() *FakeStore {
	return &FakeStore{notify: make(chan location.Sample, 256)}
}

func (s *FakeStore) RegisterLocation(_ context.Context, sample location.Sample) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.rpcErr != nil {
		return s.rpcErr
	}
	s.rpc = append(s.rpc, sample)
	s.signal(sample)
	return nil
}

func (s *FakeStore) InsertLocation(_ context.Context, sample location.Sample) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.table = append(s.table, sample)
	s.signal(sample)
	return nil
}

func (s *FakeStore) signal(sample location.Sample) {
	select {
	case s.notify <- sample:
	default:
	}
}

// Persisted is signalled once per stored sample.
func (s *FakeStore) Persisted() <-chan location.Sample {
	return s.notify
}

func (s *FakeStore) SetErrors(rpcErr, insertErr error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rpcErr, s.insertErr = rpcErr, insertErr
}

func (s *FakeStore) RPCSamples() []location.Sample {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]location.Sample(nil), s.rpc...)
}

func (s *FakeStore) TableSamples() []location.Sample {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]location.Sample(nil), s.table...)
}
