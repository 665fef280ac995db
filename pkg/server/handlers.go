package server

import (
	"errors"
	"log"
	"strings"

	"github.com/aeolun/linechat/pkg/protocol"
)

// dispatchCommand routes a parsed command to the appropriate handler. The
// returned error means the reply to the sender itself could not be written;
// the caller treats that as a transport failure.
func (s *Server) dispatchCommand(sess *Session, cmd protocol.Command) error {
	switch cmd.Verb {
	case protocol.VerbLogin:
		return s.handleLogin(sess, cmd)
	case protocol.VerbMsg:
		return s.handleMsg(sess, cmd)
	case protocol.VerbWho:
		return s.handleWho(sess, cmd)
	case protocol.VerbDM:
		return s.handleDM(sess, cmd)
	case protocol.VerbPing:
		return s.handlePing(sess, cmd)
	default:
		return sess.Conn.WriteLine(protocol.ErrUnknownCommand(cmd.Verb))
	}
}

// handleLogin handles LOGIN <username>.
func (s *Server) handleLogin(sess *Session, cmd protocol.Command) error {
	if len(cmd.Args) < 1 {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonMissingUsername))
	}

	name := cmd.Args[0]
	if err := s.registry.ClaimUsername(sess, name); err != nil {
		var reason string
		switch {
		case errors.Is(err, ErrAlreadyLoggedIn):
			reason = protocol.ReasonAlreadyLoggedIn
		case errors.Is(err, ErrInvalidUsername):
			reason = protocol.ReasonInvalidUsername
		case errors.Is(err, ErrUsernameTaken):
			reason = protocol.ReasonUsernameTaken
		default:
			reason = protocol.ReasonInvalidUsername
		}
		return sess.Conn.WriteLine(protocol.Err(reason))
	}

	log.Printf("Session %d logged in as %s", sess.ID, name)

	if err := sess.Conn.WriteLine(protocol.OK); err != nil {
		return err
	}

	s.registry.BroadcastLine(protocol.Joined(name), sess)
	return nil
}

// handleMsg handles MSG <text>. The message goes to every session, the
// sender included.
func (s *Server) handleMsg(sess *Session, cmd protocol.Command) error {
	if !sess.LoggedIn() {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonNotLoggedIn))
	}

	text := cmd.Rest(0)
	if strings.TrimSpace(text) == "" {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonEmptyMessage))
	}

	sender := sess.Username()
	debugLog.Printf("Session %d (%s) broadcast %d bytes", sess.ID, sender, len(text))

	s.registry.BroadcastLine(protocol.Broadcast(sender, text), nil)
	return nil
}

// handleWho handles WHO: one USER line per claimed username, in snapshot
// order.
func (s *Server) handleWho(sess *Session, cmd protocol.Command) error {
	if !sess.LoggedIn() {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonNotLoggedIn))
	}

	names := s.registry.ListUsernames()
	if len(names) == 0 {
		return sess.Conn.WriteLine(protocol.InfoNoUsers)
	}

	for _, name := range names {
		if err := sess.Conn.WriteLine(protocol.UserLine(name)); err != nil {
			return err
		}
	}
	return nil
}

// handleDM handles DM <username> <text>.
func (s *Server) handleDM(sess *Session, cmd protocol.Command) error {
	if !sess.LoggedIn() {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonNotLoggedIn))
	}

	text := cmd.Rest(1)
	if len(cmd.Args) < 2 || strings.TrimSpace(text) == "" {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonInvalidDMFormat))
	}

	target := cmd.Args[0]
	sender := sess.Username()
	if target == sender {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonCannotDMSelf))
	}

	targetSess, ok := s.registry.LookupByUsername(target)
	if !ok {
		return sess.Conn.WriteLine(protocol.Err(protocol.ReasonUserNotFound))
	}

	// Delivery is best-effort: a dead target fails its own write without
	// becoming the sender's problem.
	if err := targetSess.Conn.WriteLine(protocol.DirectMessage(sender, text)); err != nil {
		debugLog.Printf("Session %d: DM delivery to %s failed: %v", sess.ID, target, err)
	}

	log.Printf("Session %d (%s) sent DM to %s", sess.ID, sender, target)

	if s.metrics != nil {
		s.metrics.RecordDirectMessage()
	}

	return sess.Conn.WriteLine(protocol.DMSent(target))
}

// handlePing handles PING. No login required.
func (s *Server) handlePing(sess *Session, cmd protocol.Command) error {
	return sess.Conn.WriteLine(protocol.Pong)
}
