package server

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Mail is a message the auth API would have sent.
type Mail struct {
	To      string
	Subject string
	Link    string
	SentAt  time.Time
}

// Outbox records sent mail in place of an SMTP relay.
type Outbox struct {
	lock  sync.RWMutex
	mails []Mail
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Send(m Mail) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.mails = append(o.mails, m)
	log.Info().Str("to", m.To).Str("subject", m.Subject).Str("link", m.Link).Msg("Emulator: mail sent")
}

// Messages returns every sent mail, oldest first.
func (o *Outbox) Messages() []Mail {
	o.lock.RLock()
	defer o.lock.RUnlock()
	out := make([]Mail, len(o.mails))
	copy(out, o.mails)
	return out
}

// Last returns the most recent mail sent to the address.
func (o *Outbox) Last(to string) (Mail, bool) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	for i := len(o.mails) - 1; i >= 0; i-- {
		if strings.EqualFold(o.mails[i].To, to) {
			return o.mails[i], true
		}
	}
	return Mail{}, false
}
