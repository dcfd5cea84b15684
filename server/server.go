package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"nickchat/directory"
	"nickchat/journal"
)

const (
	DefaultOutboxSize   = 1024
	DefaultWriteTimeout = 30 * time.Second
)

type Server struct {
	dir     *directory.Directory
	router  *directory.Router
	journal *journal.Journal
	config  *ServerConfig
	logger  *slog.Logger

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	listeners []net.Listener
	httpSrv   *http.Server
	closing   bool
}

type ServerConfig struct {
	Addr          string
	WebSocketAddr string
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	OutboxSize    int
}

// Stats is a snapshot of server state for the control socket.
type Stats struct {
	Directory   directory.Stats
	Connections int
	Journal     *journal.Counts
}

// New creates a server over dir. j may be nil to run without a journal.
func New(dir *directory.Directory, j *journal.Journal, config *ServerConfig) *Server {
	if config.OutboxSize <= 0 {
		config.OutboxSize = DefaultOutboxSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	return &Server{
		dir:      dir,
		router:   directory.NewRouter(dir),
		journal:  j,
		config:   config,
		logger:   slog.Default().With("component", "server"),
		sessions: make(map[string]*Session),
	}
}

// ListenAndServe accepts TCP clients on config.Addr until Shutdown.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts clients on listener until Shutdown. Each connection is served
// by its own goroutine.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener) {
		listener.Close()
		return nil
	}
	defer listener.Close()

	s.logger.Info("chat server listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		go s.handleConnection(newLineTransport(conn, s.config.IdleTimeout, s.config.WriteTimeout))
	}
}

func (s *Server) trackListener(listener net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.listeners = append(s.listeners, listener)
	return true
}

// handleConnection serves one client until its transport fails or closes.
// Whatever ends the loop, every user bound to the connection is taken offline.
func (s *Server) handleConnection(t transport) {
	sess := newSession(t, s.config.OutboxSize, s.logger)
	if !s.addSession(sess) {
		t.Close()
		return
	}
	defer s.wg.Done()
	go sess.writePump()

	sess.logger.Info("client connected")

	defer func() {
		for _, nick := range s.dir.Disconnect(sess) {
			sess.logger.Info("user went offline with connection", "nick", nick)
		}
		s.removeSession(sess.id)

		// flush what is queued, then close
		sess.out.close()
		<-sess.done
		sess.closeTransport()
		sess.logger.Info("client disconnected", "duration", time.Since(sess.connected).Round(time.Millisecond))
	}()

	for {
		line, err := t.ReadFrame()
		if err != nil {
			if !isClosedError(err) {
				sess.logger.Warn("read failed", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		s.handleFrame(sess, line)
	}
}

func isClosedError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return isWebSocketClose(err)
}

// addSession registers sess with the running server. The session counts
// towards Shutdown's wait from here on, so the caller must call s.wg.Done
// once its cleanup is finished. It fails once Shutdown has begun.
func (s *Server) addSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	conns := len(s.sessions)
	s.mu.RUnlock()

	st := Stats{
		Directory:   s.dir.Stats(),
		Connections: conns,
	}
	if s.journal != nil {
		counts, err := s.journal.Counts()
		if err != nil {
			s.logger.Error("journal counts failed", "error", err)
		} else {
			st.Journal = &counts
		}
	}
	return st
}

// History returns the journaled messages addressed to nick.
func (s *Server) History(nick string, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, errors.New("journal disabled")
	}
	return s.journal.History(nick, limit)
}

// Shutdown stops accepting clients, closes every connection and waits for
// their cleanup to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	listeners := s.listeners
	s.listeners = nil
	httpSrv := s.httpSrv
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	if httpSrv != nil {
		// hijacked WebSocket connections are closed with the sessions below
		httpSrv.Close()
	}
	for _, sess := range sessions {
		sess.closeTransport()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("chat server stopped", "closed_connections", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
