package directory

import (
	"log/slog"
	"sort"
	"sync"

	"nickchat/models"
)

// DefaultMaxUsers matches the fixed table size of the first server.
const DefaultMaxUsers = 100

// Endpoint is the handle of one live client connection.
//
// Deliver is called with the directory lock held, so it must hand the message
// to the connection's outbound path without blocking. A non-nil error means
// the connection refused the message and it was not delivered.
type Endpoint interface {
	ID() string
	Deliver(msg models.DeliveryMessage) error
}

type user struct {
	nick    string
	name    string
	online  bool
	conn    Endpoint
	pending []models.DeliveryMessage
	seq     uint64
}

// Directory is the table of registered users, their session state and their
// pending message queues. Every method runs under one mutex.
type Directory struct {
	mu       sync.Mutex
	users    map[string]*user
	bindings *Bindings
	nextSeq  uint64
	maxUsers int
	logger   *slog.Logger
}

// Stats is a point-in-time summary of the directory.
type Stats struct {
	Registered int
	Online     int
	Queued     int
}

// Option configures a Directory.
type Option func(*Directory)

// WithMaxUsers caps the number of registered users. Zero means no limit.
func WithMaxUsers(n int) Option {
	return func(d *Directory) {
		d.maxUsers = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func New(opts ...Option) *Directory {
	d := &Directory{
		users:    make(map[string]*user),
		bindings: newBindings(),
		maxUsers: DefaultMaxUsers,
		logger:   slog.Default().With("component", "directory"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register creates an offline user with an empty queue.
func (d *Directory) Register(nick, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[nick]; ok {
		return ErrNickTaken
	}
	if d.maxUsers > 0 && len(d.users) >= d.maxUsers {
		return ErrCapacityExceeded
	}

	d.nextSeq++
	d.users[nick] = &user{nick: nick, name: name, seq: d.nextSeq}
	d.logger.Debug("user registered", "nick", nick)
	return nil
}

// Delete removes an offline user and returns the messages that were still
// queued for it. An online user cannot be deleted: the owning connection gets
// ErrBadState, any other connection ErrUnauthorized.
func (d *Directory) Delete(nick string, requester Endpoint) ([]models.DeliveryMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[nick]
	if !ok {
		return nil, ErrNoSuchUser
	}
	if u.online && !sameEndpoint(u.conn, requester) {
		return nil, ErrUnauthorized
	}
	if u.online {
		return nil, ErrBadState
	}

	delete(d.users, nick)
	d.logger.Debug("user deleted", "nick", nick, "discarded", len(u.pending))
	return u.pending, nil
}

// Login binds conn to nick and hands every queued message to conn in the
// order it was queued. It returns the messages that were handed off. A
// connection may log in several nicks.
func (d *Directory) Login(nick string, conn Endpoint) ([]models.DeliveryMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[nick]
	if !ok {
		return nil, ErrNoSuchUser
	}
	if u.online {
		return nil, ErrAlreadyOnline
	}

	u.online = true
	u.conn = conn
	d.bindings.bind(conn.ID(), nick)

	var delivered []models.DeliveryMessage
	for len(u.pending) > 0 {
		msg := u.pending[0]
		if err := conn.Deliver(msg); err != nil {
			// the rest stays queued for the next login
			d.logger.Warn("queue drain interrupted", "nick", nick, "remaining", len(u.pending), "error", err)
			break
		}
		delivered = append(delivered, msg)
		u.pending = u.pending[1:]
	}
	if len(u.pending) == 0 {
		u.pending = nil
	}

	d.logger.Debug("user logged in", "nick", nick, "conn", conn.ID(), "drained", len(delivered))
	return delivered, nil
}

// Logout takes nick offline. conn must be the connection nick is bound to.
func (d *Directory) Logout(nick string, conn Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[nick]
	if !ok {
		return ErrNoSuchUser
	}
	if !u.online || !sameEndpoint(u.conn, conn) {
		return ErrBadState
	}

	d.setOffline(u)
	d.logger.Debug("user logged out", "nick", nick)
	return nil
}

// Disconnect is the cleanup for a connection that went away. Every user bound
// to conn goes offline as if it had logged out. It returns their nicks in
// registration order.
func (d *Directory) Disconnect(conn Endpoint) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	bound := d.boundUsers(conn.ID())
	nicks := make([]string, 0, len(bound))
	for _, u := range bound {
		d.setOffline(u)
		nicks = append(nicks, u.nick)
	}
	return nicks
}

// Whois returns the nick conn acts as: the earliest registered of the users
// logged in on it.
func (d *Directory) Whois(conn Endpoint) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actingAs(conn.ID())
}

// List returns all users in registration order.
func (d *Directory) List() []models.UserInfo {
	d.mu.Lock()
	ordered := make([]*user, 0, len(d.users))
	for _, u := range d.users {
		ordered = append(ordered, u)
	}
	infos := make([]models.UserInfo, 0, len(ordered))
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	for _, u := range ordered {
		infos = append(infos, models.UserInfo{Nick: u.nick, Online: u.online, Name: u.name})
	}
	d.mu.Unlock()
	return infos
}

func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Stats{Registered: len(d.users), Online: d.bindings.len()}
	for _, u := range d.users {
		st.Queued += len(u.pending)
	}
	return st
}

// Pending returns the number of messages queued for nick.
func (d *Directory) Pending(nick string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[nick]; ok {
		return len(u.pending)
	}
	return 0
}

// boundUsers returns the users bound to connID in registration order.
func (d *Directory) boundUsers(connID string) []*user {
	var bound []*user
	for _, nick := range d.bindings.lookup(connID) {
		if u, ok := d.users[nick]; ok {
			bound = append(bound, u)
		}
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].seq < bound[j].seq })
	return bound
}

func (d *Directory) actingAs(connID string) (string, bool) {
	bound := d.boundUsers(connID)
	if len(bound) == 0 {
		return "", false
	}
	return bound[0].nick, true
}

func (d *Directory) setOffline(u *user) {
	d.bindings.unbind(u.conn.ID(), u.nick)
	u.online = false
	u.conn = nil
}

func sameEndpoint(a, b Endpoint) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}
