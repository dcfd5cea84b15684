package server

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"nickchat/models"
	"nickchat/protocol"
)

// MaxFrameBytes bounds one inbound frame. The longest valid command, a
// SEND_MSG with fully escaped multi-byte text, fits well below it.
const MaxFrameBytes = 16 << 10

var errFrameTooLong = errors.New("frame too long")

// transport moves whole frames over one client connection. ReadFrame is only
// called by the session reader and WriteFrame only by its writer; Close may be
// called from anywhere and must unblock both.
type transport interface {
	ReadFrame() (string, error)
	WriteFrame(frame string) error
	Close() error
	RemoteAddr() string
}

// lineTransport carries newline-terminated frames over a byte stream.
type lineTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

func newLineTransport(conn net.Conn, idleTimeout, writeTimeout time.Duration) *lineTransport {
	return &lineTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

func (t *lineTransport) ReadFrame() (string, error) {
	if t.idleTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}

	var buf []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > MaxFrameBytes {
			return "", errFrameTooLong
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}

func (t *lineTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	_, err := t.conn.Write([]byte(frame))
	return err
}

func (t *lineTransport) Close() error {
	return t.conn.Close()
}

func (t *lineTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Session is one client connection. It is the directory.Endpoint the user
// logged in on it is bound to.
type Session struct {
	id        string
	transport transport
	out       *outbox
	logger    *slog.Logger
	connected time.Time
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(t transport, outboxSize int, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		transport: t,
		out:       newOutbox(outboxSize),
		logger:    logger.With("conn", id, "remote", t.RemoteAddr()),
		connected: time.Now(),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Deliver queues the push frame for msg. It never blocks.
func (s *Session) Deliver(msg models.DeliveryMessage) error {
	return s.send(protocol.FormatDelivery(msg))
}

func (s *Session) send(frame string) error {
	err := s.out.push(frame)
	if errors.Is(err, errOutboxFull) {
		s.logger.Warn("outbound queue full, dropping slow connection", "queued", s.out.len())
		s.kill()
	}
	return err
}

// kill tears the connection down without flushing. The reader fails on the
// closed transport and runs the regular cleanup.
func (s *Session) kill() {
	s.out.abort()
	s.closeTransport()
}

func (s *Session) closeTransport() {
	s.closeOnce.Do(func() {
		s.transport.Close()
	})
}

// writePump writes queued frames in order until the outbox is closed and
// drained, or a write fails.
func (s *Session) writePump() {
	defer close(s.done)

	for {
		frames, ok := s.out.take()
		if !ok {
			return
		}
		for _, frame := range frames {
			if err := s.transport.WriteFrame(frame); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.kill()
				return
			}
		}
	}
}
