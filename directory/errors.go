package directory

import "errors"

var (
	ErrNickTaken        = errors.New("nick already registered")
	ErrCapacityExceeded = errors.New("user limit reached")
	ErrNoSuchUser       = errors.New("no such user")
	ErrAlreadyOnline    = errors.New("already online")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrBadState         = errors.New("operation not allowed in current state")
)
