package server

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aeolun/linechat/pkg/protocol"
)

// Username claim errors.
var (
	ErrAlreadyLoggedIn = errors.New("session already logged in")
	ErrInvalidUsername = errors.New("invalid username")
	ErrUsernameTaken   = errors.New("username already taken")
)

// Session represents an active client connection. The Registry owns the
// session record and holds the connection only for sending; opening and
// closing the transport belongs to the connection handler.
type Session struct {
	ID         uint64
	Conn       *SafeConn
	RemoteAddr string

	mu       sync.RWMutex // protects username
	username string

	lastActivity int64 // UnixMilli, atomic
}

// Username returns the session's username, or "" before login.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.username
}

// LoggedIn reports whether the session has completed LOGIN.
func (s *Session) LoggedIn() bool {
	return s.Username() != ""
}

// setUsername is called exactly once, under the Registry lock.
func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// Registry is the shared store of all live sessions and the username index.
// One lock guards both maps so no operation ever observes them in a mutually
// inconsistent state (a claimed username always points at a session that is
// also present in the session map).
type Registry struct {
	mu         sync.RWMutex
	sessions   map[uint64]*Session
	byUsername map[string]*Session
	nextID     uint64
	metrics    *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:   make(map[uint64]*Session),
		byUsername: make(map[string]*Session),
		nextID:     1,
	}
}

// SetMetrics attaches metrics to the registry.
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// CreateSession allocates a session for conn with no username and current
// activity, and adds it to the session map. Never fails.
func (r *Registry) CreateSession(conn *SafeConn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID := atomic.AddUint64(&r.nextID, 1) - 1

	sess := &Session{
		ID:           sessionID,
		Conn:         conn,
		RemoteAddr:   conn.RemoteAddr(),
		lastActivity: time.Now().UnixMilli(),
	}

	r.sessions[sessionID] = sess

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(len(r.sessions))
		r.metrics.RecordSessionCreated()
	}

	return sess
}

// ClaimUsername atomically validates name, checks it is free, and assigns it
// to sess. At most one of any number of concurrent claimants of the same
// name succeeds; the rest get ErrUsernameTaken.
func (r *Registry) ClaimUsername(sess *Session, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess.Username() != "" {
		return ErrAlreadyLoggedIn
	}
	if !protocol.ValidUsername(name) {
		return ErrInvalidUsername
	}
	if other, ok := r.byUsername[name]; ok && other != sess {
		return ErrUsernameTaken
	}

	sess.setUsername(name)
	r.byUsername[name] = sess

	if r.metrics != nil {
		r.metrics.RecordLoggedInUsers(len(r.byUsername))
	}

	return nil
}

// LookupByUsername returns the session holding name, if any. Usernames are
// case-sensitive.
func (r *Registry) LookupByUsername(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.byUsername[name]
	return sess, ok
}

// ListUsernames returns a point-in-time snapshot of all claimed usernames,
// sorted for a deterministic WHO listing.
func (r *Registry) ListUsernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byUsername))
	for name := range r.byUsername {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// TouchActivity marks sess as active now.
func (r *Registry) TouchActivity(sess *Session) {
	atomic.StoreInt64(&sess.lastActivity, time.Now().UnixMilli())
}

// IdleFor returns how long ago sess last showed activity.
func (r *Registry) IdleFor(sess *Session) time.Duration {
	last := atomic.LoadInt64(&sess.lastActivity)
	return time.Duration(time.Now().UnixMilli()-last) * time.Millisecond
}

// RemoveSession removes sess from both indexes. Idempotent: the second call
// for the same session is a no-op. Returns the released username (and true)
// so the caller can decide whether to announce a departure. The transport is
// not closed here; the connection handler owns that.
func (r *Registry) RemoveSession(sess *Session) (string, bool) {
	r.mu.Lock()

	if _, ok := r.sessions[sess.ID]; !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.sessions, sess.ID)

	released := false
	name := sess.Username()
	if name != "" {
		if cur, ok := r.byUsername[name]; ok && cur == sess {
			delete(r.byUsername, name)
			released = true
		}
	}

	sessionCount := len(r.sessions)
	userCount := len(r.byUsername)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveSessions(sessionCount)
		r.metrics.RecordLoggedInUsers(userCount)
		r.metrics.RecordSessionDisconnected()
	}

	if !released {
		return "", false
	}
	return name, true
}

// SnapshotSessions returns all live sessions, ordered by session ID, for
// broadcast fan-out, the idle sweep and the shutdown notice.
func (r *Registry) SnapshotSessions() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

// CountOnline returns the number of live sessions.
func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CountLoggedIn returns the number of sessions holding a username.
func (r *Registry) CountLoggedIn() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUsername)
}

// BroadcastLine sends line to every live session except the one given (pass
// nil to reach everyone). A failed send is isolated to its recipient: the
// dead session is removed afterwards without a departure announcement, and
// delivery to the remaining sessions proceeds.
func (r *Registry) BroadcastLine(line string, except *Session) {
	deadSessions := make([]*Session, 0)
	delivered := 0

	r.mu.RLock()
	for _, sess := range r.sessions {
		if sess == except {
			continue
		}
		if err := sess.Conn.WriteLine(line); err != nil {
			debugLog.Printf("Session %d: broadcast write failed: %v", sess.ID, err)
			deadSessions = append(deadSessions, sess)
			continue
		}
		delivered++
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordBroadcast(delivered)
	}

	for _, sess := range deadSessions {
		sess.Conn.Close()
		r.RemoveSession(sess)
	}
}

// CloseAll force-closes every transport and empties both indexes. Used on
// shutdown, after the shutdown notice has been broadcast.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		sess.Conn.Close()
	}

	r.sessions = make(map[uint64]*Session)
	r.byUsername = make(map[string]*Session)
}
