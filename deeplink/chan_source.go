package deeplink

import (
	"context"
	"sync"
)

var _ Source = (*ChanSource)(nil)

// ChanSource is a Source fed by a channel, for the CLI and tests. Each URL
// sent on the channel is delivered to every subscriber.
type ChanSource struct {
	initial string
	urls    <-chan string

	lock     sync.Mutex
	handlers map[int]func(string)
	next     int
	started  bool
}

// NewChanSource serves initial as the launch URL and urls as live links.
func NewChanSource(initial string, urls <-chan string) *ChanSource {
	return &ChanSource{initial: initial, urls: urls, handlers: make(map[int]func(string))}
}

func (cs *ChanSource) InitialURL(_ context.Context) (string, error) {
	return cs.initial, nil
}

func (cs *ChanSource) Subscribe(handler func(string)) func() {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	id := cs.next
	cs.next++
	cs.handlers[id] = handler
	if !cs.started && cs.urls != nil {
		cs.started = true
		go cs.fanOut()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cs.lock.Lock()
			defer cs.lock.Unlock()
			delete(cs.handlers, id)
		})
	}
}

func (cs *ChanSource) fanOut() {
	for rawURL := range cs.urls {
		cs.lock.Lock()
		handlers := make([]func(string), 0, len(cs.handlers))
		for _, h := range cs.handlers {
			handlers = append(handlers, h)
		}
		cs.lock.Unlock()

		for _, h := range handlers {
			h(rawURL)
		}
	}
}
