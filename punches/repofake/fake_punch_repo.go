package fakepunchrepo

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-punch-clock/punches"
)

var _ punches.Repo = (*FakePunchRepo)(nil)

type FakePunchRepo struct {
	records   []punches.Record
	insertErr error
	listErr   error
	lock      sync.RWMutex
}

func NewFakePunchRepo() *FakePunchRepo {
	return &FakePunchRepo{}
}

func (pr *FakePunchRepo) Insert(_ context.Context, record *punches.Record) (*punches.Record, error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if pr.insertErr != nil {
		return nil, pr.insertErr
	}
	if record == nil {
		return nil, errors.New("nil record")
	}
	stored := *record
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	pr.records = append(pr.records, stored)
	return &stored, nil
}

func (pr *FakePunchRepo) List(_ context.Context, query punches.Query) ([]punches.Record, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	if pr.listErr != nil {
		return nil, pr.listErr
	}

	matches := make([]punches.Record, 0)
	for _, r := range pr.records {
		if query.UserID != "" && r.UserID != query.UserID {
			continue
		}
		if !query.From.IsZero() && r.Timestamp.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && r.Timestamp.After(query.To) {
			continue
		}
		matches = append(matches, r)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})
	return matches, nil
}

// Seed stores records as if they had been written by another session.
func (pr *FakePunchRepo) Seed(records ...punches.Record) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.records = append(pr.records, records...)
}

func (pr *FakePunchRepo) SetInsertError(err error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.insertErr = err
}

func (pr *FakePunchRepo) SetListError(err error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.listErr = err
}

func (pr *FakePunchRepo) Count() int {
	pr.lock.RLock()
	defer pr.lock.RUnlock()
	return len(pr.records)
}
