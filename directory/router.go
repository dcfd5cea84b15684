package directory

import (
	"time"

	"github.com/google/uuid"

	"nickchat/models"
)

// Outcome tells how a routed message reached its recipient.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// Router sends messages between users: straight to the recipient's
// connection when it is online, into its pending queue otherwise.
type Router struct {
	dir *Directory
	now func() time.Time
}

type RouterOption func(*Router)

// WithClock replaces the time source used to stamp messages.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

func NewRouter(dir *Directory, opts ...RouterOption) *Router {
	r := &Router{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send routes text from the user logged in on from to the user named to.
// When from carries several nicks the earliest registered one is the sender.
//
// The online check and the delivery or enqueue happen under the directory
// lock, so a concurrent Login of the recipient either drains the message from
// the queue or is already bound when the message is delivered. It never sees
// it twice or not at all.
func (r *Router) Send(from Endpoint, to, text string) (models.DeliveryMessage, Outcome, error) {
	d := r.dir
	d.mu.Lock()
	defer d.mu.Unlock()

	sender, ok := d.actingAs(from.ID())
	if !ok {
		return models.DeliveryMessage{}, 0, ErrUnauthorized
	}
	rcpt, ok := d.users[to]
	if !ok {
		return models.DeliveryMessage{}, 0, ErrNoSuchUser
	}

	msg := models.DeliveryMessage{
		ID:        uuid.NewString(),
		From:      sender,
		To:        to,
		Text:      text,
		Timestamp: r.now().UTC(),
	}

	if rcpt.online {
		err := rcpt.conn.Deliver(msg)
		if err == nil {
			return msg, OutcomeDelivered, nil
		}
		// The recipient connection is going away; keep the message for its
		// next login.
		d.logger.Warn("immediate delivery refused, queueing", "to", to, "conn", rcpt.conn.ID(), "error", err)
	}

	rcpt.pending = append(rcpt.pending, msg)
	return msg, OutcomeQueued, nil
}
