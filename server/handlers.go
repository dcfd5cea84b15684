package server

import (
	"errors"
	"runtime/debug"

	"nickchat/directory"
	"nickchat/journal"
	"nickchat/models"
	"nickchat/protocol"
)

// handleFrame parses one inbound frame and answers it. Failures stay inside
// this request: they are mapped to an ERROR response for this client only.
func (s *Server) handleFrame(sess *Session, line string) {
	defer func() {
		if r := recover(); r != nil {
			sess.logger.Error("request handler panicked", "panic", r, "stack", string(debug.Stack()))
			sess.send(protocol.FormatError(protocol.CodeInternal))
		}
	}()

	sess.logger.Debug("received", "frame", line)

	req, err := protocol.ParseRequest(line)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	switch r := req.(type) {
	case protocol.RegisterRequest:
		s.handleRegister(sess, r)
	case protocol.LoginRequest:
		s.handleLogin(sess, r)
	case protocol.LogoutRequest:
		s.handleLogout(sess, r)
	case protocol.DeleteRequest:
		s.handleDelete(sess, r)
	case protocol.ListRequest:
		s.handleList(sess)
	case protocol.SendRequest:
		s.handleSendMessage(sess, r)
	case protocol.PingRequest:
		sess.send(protocol.FormatPacket(protocol.TypePong))
	default:
		s.sendError(sess, protocol.ErrUnknownCommand)
	}
}

func (s *Server) handleRegister(sess *Session, req protocol.RegisterRequest) {
	if err := s.dir.Register(req.Nick, req.Name); err != nil {
		s.sendError(sess, err)
		return
	}
	sess.logger.Info("user registered", "nick", req.Nick)
	s.sendOK(sess)
}

func (s *Server) handleLogin(sess *Session, req protocol.LoginRequest) {
	delivered, err := s.dir.Login(req.Nick, sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	sess.logger.Info("user logged in", "nick", req.Nick, "backlog", len(delivered))
	s.journalMark(delivered, journal.StatusDelivered)
	s.sendOK(sess, req.Nick)
}

func (s *Server) handleLogout(sess *Session, req protocol.LogoutRequest) {
	if err := s.dir.Logout(req.Nick, sess); err != nil {
		s.sendError(sess, err)
		return
	}
	sess.logger.Info("user logged out", "nick", req.Nick)
	s.sendOK(sess)
}

func (s *Server) handleDelete(sess *Session, req protocol.DeleteRequest) {
	discarded, err := s.dir.Delete(req.Nick, sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	sess.logger.Info("user deleted", "nick", req.Nick, "discarded", len(discarded))
	s.journalMark(discarded, journal.StatusDiscarded)
	s.sendOK(sess)
}

func (s *Server) handleList(sess *Session) {
	sess.send(protocol.FormatUsers(s.dir.List()))
}

func (s *Server) handleSendMessage(sess *Session, req protocol.SendRequest) {
	msg, outcome, err := s.router.Send(sess, req.To, req.Text)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	sess.logger.Debug("message routed", "from", msg.From, "to", msg.To, "outcome", outcome.String())

	status := journal.StatusDelivered
	if outcome == directory.OutcomeQueued {
		status = journal.StatusQueued
	}
	s.journalRecord(msg, status)
	s.sendOK(sess)
}

func (s *Server) sendOK(sess *Session, fields ...string) {
	sess.send(protocol.FormatOK(fields...))
}

func (s *Server) sendError(sess *Session, err error) {
	code := errorCode(err)
	if code == protocol.CodeInternal {
		sess.logger.Error("unexpected request error", "error", err)
	}
	sess.send(protocol.FormatError(code))
}

// errorCode maps a request error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrBadFormat):
		return protocol.CodeBadFormat
	case errors.Is(err, protocol.ErrUnknownCommand):
		return protocol.CodeUnknownCommand
	case errors.Is(err, directory.ErrNickTaken):
		return protocol.CodeNickTaken
	case errors.Is(err, directory.ErrCapacityExceeded):
		return protocol.CodeLimit
	case errors.Is(err, directory.ErrNoSuchUser):
		return protocol.CodeNoSuchUser
	case errors.Is(err, directory.ErrAlreadyOnline):
		return protocol.CodeAlreadyOnline
	case errors.Is(err, directory.ErrUnauthorized):
		return protocol.CodeUnauthorized
	case errors.Is(err, directory.ErrBadState):
		return protocol.CodeBadState
	default:
		return protocol.CodeInternal
	}
}

func (s *Server) journalRecord(msg models.DeliveryMessage, status string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(msg, status); err != nil {
		s.logger.Error("journal record failed", "id", msg.ID, "error", err)
	}
}

func (s *Server) journalMark(msgs []models.DeliveryMessage, status string) {
	if s.journal == nil || len(msgs) == 0 {
		return
	}
	if err := s.journal.Mark(msgs, status); err != nil {
		s.logger.Error("journal update failed", "status", status, "count", len(msgs), "error", err)
	}
}
