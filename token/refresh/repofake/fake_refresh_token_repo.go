package refreshrepofake

import (
	"sync"

	"github.com/jrsteele09/go-punch-clock/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens   map[string]*refresh.StoredRefreshToken
	sessions map[string]map[string]struct{} // session ID to its tokens
	lock     sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens:   make(map[string]*refresh.StoredRefreshToken),
		sessions: make(map[string]map[string]struct{}),
	}
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *refreshToken
	tr.tokens[stored.Token] = &stored
	if tr.sessions[stored.SessionID] == nil {
		tr.sessions[stored.SessionID] = make(map[string]struct{})
	}
	tr.sessions[stored.SessionID][stored.Token] = struct{}{}
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return refresh.ErrNotFound
	}
	delete(tr.tokens, token)
	delete(tr.sessions[rt.SessionID], token)
	if len(tr.sessions[rt.SessionID]) == 0 {
		delete(tr.sessions, rt.SessionID)
	}
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	out := *rt
	return &out, nil
}

func (tr *FakeRefreshTokenRepo) DeleteBySession(sessionID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for token := range tr.sessions[sessionID] {
		delete(tr.tokens, token)
	}
	delete(tr.sessions, sessionID)
	return nil
}
