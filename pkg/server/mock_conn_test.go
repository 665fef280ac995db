package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// mockAddr is a fake net.Addr for mock connections
type mockAddr string

func (a mockAddr) Network() string { return "mock" }
func (a mockAddr) String() string  { return string(a) }

// mockConn is a net.Conn that records writes and never blocks. Reads report
// EOF; the unit tests drive the handlers directly instead of through the
// read loop.
type mockConn struct {
	mu         sync.Mutex
	writes     bytes.Buffer
	closed     bool
	failWrites bool
}

func newMockConn() *mockConn {
	return &mockConn{}
}

func (c *mockConn) Read(b []byte) (int, error) {
	return 0, io.EOF
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if c.failWrites {
		return 0, errors.New("mock write failure")
	}

	return c.writes.Write(b)
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *mockConn) LocalAddr() net.Addr                { return mockAddr("local") }
func (c *mockConn) RemoteAddr() net.Addr               { return mockAddr("remote") }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// Closed reports whether Close was called.
func (c *mockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Lines returns every complete line written so far.
func (c *mockConn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := strings.TrimSuffix(c.writes.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// LastLine returns the most recent line written, or "".
func (c *mockConn) LastLine() string {
	lines := c.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
