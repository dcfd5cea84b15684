package models

import "time"

// DeliveryMessage is a routed chat message. It is created once by the router
// and handed to the recipient's connection exactly once, either immediately or
// after it has waited in the recipient's pending queue.
type DeliveryMessage struct {
	ID        string // journal key, never sent on the wire
	From      string
	To        string
	Text      string
	Timestamp time.Time
}

// UserInfo is one row of a directory listing.
type UserInfo struct {
	Nick   string
	Online bool
	Name   string
}
