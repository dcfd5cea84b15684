package directory

// Bindings is the reverse index from connection ID to the nicks logged in on
// it. A connection may carry several nicks. It is only touched inside the
// Directory critical section, together with the user records it mirrors.
type Bindings struct {
	byConn map[string]map[string]struct{}
	total  int
}

func newBindings() *Bindings {
	return &Bindings{byConn: make(map[string]map[string]struct{})}
}

func (b *Bindings) bind(connID, nick string) {
	nicks, ok := b.byConn[connID]
	if !ok {
		nicks = make(map[string]struct{})
		b.byConn[connID] = nicks
	}
	if _, dup := nicks[nick]; !dup {
		nicks[nick] = struct{}{}
		b.total++
	}
}

func (b *Bindings) unbind(connID, nick string) {
	nicks, ok := b.byConn[connID]
	if !ok {
		return
	}
	if _, bound := nicks[nick]; bound {
		delete(nicks, nick)
		b.total--
	}
	if len(nicks) == 0 {
		delete(b.byConn, connID)
	}
}

// lookup returns the nicks bound to connID, in no particular order.
func (b *Bindings) lookup(connID string) []string {
	nicks := b.byConn[connID]
	out := make([]string, 0, len(nicks))
	for nick := range nicks {
		out = append(out, nick)
	}
	return out
}

func (b *Bindings) isBound(connID, nick string) bool {
	_, ok := b.byConn[connID][nick]
	return ok
}

// len is the number of bound nicks over all connections.
func (b *Bindings) len() int {
	return b.total
}
