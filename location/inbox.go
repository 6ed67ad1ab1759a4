package location

import (
	"github.com/jrsteele09/go-punch-clock/internal/metrics"
	"github.com/rs/zerolog/log"
)

// BatchSource tells where a batch was produced.
type BatchSource string

const (
	SourceForeground BatchSource = "foreground"
	SourceBackground BatchSource = "background"
)

// Batch is a message from the provider to the monitor.
type Batch struct {
	Source BatchSource
	Fixes  []Fix
	Err    error // set when the OS reported a task error instead of fixes
}

// Inbox is the bounded mailbox between provider callbacks, which run in
// provider controlled goroutines, and the monitor's drain goroutine. Offer
// never blocks: a full inbox drops the batch.
type Inbox struct {
	ch chan Batch
}

func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{ch: make(chan Batch, size)}
}

// Offer enqueues b and reports whether it was accepted.
func (in *Inbox) Offer(b Batch) bool {
	select {
	case in.ch <- b:
		return true
	default:
		metrics.InboxOverflow.Inc()
		log.Warn().Str("source", string(b.Source)).Int("fixes", len(b.Fixes)).Msg("Location inbox full, dropping batch")
		return false
	}
}

// C is the receive side drained by the monitor.
func (in *Inbox) C() <-chan Batch {
	return in.ch
}

// Len returns the number of queued batches.
func (in *Inbox) Len() int {
	return len(in.ch)
}
