package server

import (
	"sync/atomic"
	"testing"
	"time"
)

func backdate(sess *Session, d time.Duration) {
	atomic.StoreInt64(&sess.lastActivity, time.Now().Add(-d).UnixMilli())
}

func TestReapIdleSessions(t *testing.T) {
	srv := newHandlerTestServer()

	idle, idleConn := srv.newMockSession(t)
	srv.loginAs(t, idle, "sleeper")

	active, activeConn := srv.newMockSession(t)
	srv.loginAs(t, active, "watcher")

	backdate(idle, 2*srv.config.IdleTimeout())
	srv.reapIdleSessions()

	if got := idleConn.LastLine(); got != "ERR idle-timeout" {
		t.Errorf("expected timeout notice, got %q", got)
	}
	if !idleConn.Closed() {
		t.Error("idle session's transport not closed")
	}
	if got := activeConn.LastLine(); got != "INFO sleeper disconnected" {
		t.Errorf("expected departure announcement, got %q", got)
	}

	if srv.registry.CountOnline() != 1 {
		t.Errorf("expected 1 session left, got %d", srv.registry.CountOnline())
	}
	if _, ok := srv.registry.LookupByUsername("sleeper"); ok {
		t.Error("evicted session still in username index")
	}
}

func TestReapSkipsActiveSessions(t *testing.T) {
	srv := newHandlerTestServer()

	sess, conn := srv.newMockSession(t)
	srv.loginAs(t, sess, "alice")

	srv.reapIdleSessions()

	if conn.Closed() {
		t.Error("fresh session was evicted")
	}
	if srv.registry.CountOnline() != 1 {
		t.Errorf("expected session to survive, got %d online", srv.registry.CountOnline())
	}
}

func TestReapAnonymousSessionNoAnnouncement(t *testing.T) {
	srv := newHandlerTestServer()

	anon, anonConn := srv.newMockSession(t)
	observer, observerConn := srv.newMockSession(t)
	srv.loginAs(t, observer, "watcher")

	backdate(anon, 2*srv.config.IdleTimeout())
	srv.reapIdleSessions()

	if got := anonConn.LastLine(); got != "ERR idle-timeout" {
		t.Errorf("expected timeout notice, got %q", got)
	}
	for _, line := range observerConn.Lines() {
		if line != "" && line != "ERR idle-timeout" {
			t.Errorf("anonymous eviction must not announce, observer saw %q", line)
		}
	}
	if srv.registry.CountOnline() != 1 {
		t.Errorf("expected 1 session left, got %d", srv.registry.CountOnline())
	}
}

func TestReapRacesWithTeardown(t *testing.T) {
	srv := newHandlerTestServer()

	sess, _ := srv.newMockSession(t)
	srv.loginAs(t, sess, "alice")
	observer, observerConn := srv.newMockSession(t)
	srv.loginAs(t, observer, "watcher")

	backdate(sess, 2*srv.config.IdleTimeout())

	// Command-path teardown wins the race; the sweep must not announce a
	// second departure.
	srv.teardown(sess, true)
	srv.reapIdleSessions()

	departures := 0
	for _, line := range observerConn.Lines() {
		if line == "INFO alice disconnected" {
			departures++
		}
	}
	if departures != 1 {
		t.Errorf("expected exactly 1 departure announcement, got %d", departures)
	}
}

func TestTouchActivityResetsIdleClock(t *testing.T) {
	srv := newHandlerTestServer()

	sess, conn := srv.newMockSession(t)
	srv.loginAs(t, sess, "alice")

	backdate(sess, 2*srv.config.IdleTimeout())
	// An arriving command counts as activity even if it errors.
	srv.sendLine(t, sess, "MSG")

	srv.reapIdleSessions()

	if conn.Closed() {
		t.Error("session evicted despite recent activity")
	}
}
